package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/signing"
	"github.com/lazypower/ltm/internal/store"
)

func TestShouldCompact(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	th := DefaultThresholds()

	tests := []struct {
		impact model.Impact
		idle   time.Duration
		want   bool
	}{
		{model.ImpactLow, 23 * time.Hour, false},
		{model.ImpactLow, 25 * time.Hour, true},
		{model.ImpactMedium, 6 * 24 * time.Hour, false},
		{model.ImpactMedium, 8 * 24 * time.Hour, true},
		{model.ImpactHigh, 29 * 24 * time.Hour, false},
		{model.ImpactHigh, 31 * 24 * time.Hour, true},
		{model.ImpactCritical, 10 * 365 * 24 * time.Hour, false},
	}
	for _, tt := range tests {
		m := &model.Memory{Impact: tt.impact, LastAccessed: now.Add(-tt.idle)}
		assert.Equal(t, tt.want, ShouldCompact(m, th, now), "%s idle %s", tt.impact, tt.idle)
	}

	superseded := &model.Memory{Impact: model.ImpactLow, LastAccessed: now.Add(-72 * time.Hour), SupersededBy: "x"}
	assert.False(t, ShouldCompact(superseded, th, now))
}

func TestCompactStripsFillers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"I think we should use tabs", "we should use tabs"},
		{"It turns out the cache was never warmed", "the cache was never warmed"},
		{"After investigation the flake is a timezone bug", "the flake is a timezone bug"},
		{"We discussed moving to WAL in order to allow readers", "moving to WAL to allow readers"},
		{"i THINK lowercase fillers match too", "lowercase fillers match too"},
		{"short text", "short text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Compact(tt.in), tt.in)
	}
}

func TestCompactKeepsCodeSpans(t *testing.T) {
	in := "I think `I think  spaced` stays verbatim in code"
	got := Compact(in)
	assert.Equal(t, "`I think  spaced` stays verbatim in code", got)
}

func TestCompactAllFillerKeepsContent(t *testing.T) {
	in := "I think I believe We discussed "
	assert.Equal(t, in, Compact(in))
}

func TestCompactElidesLongText(t *testing.T) {
	first := "The ingest pipeline batches writes per tenant"
	middle := strings.Repeat("Intermediate detail that is not needed later. ", 5)
	last := "Flush interval is 250ms"
	in := first + ". " + middle + last

	got := Compact(in)
	assert.Equal(t, first+". [...] "+last, got)
	assert.LessOrEqual(t, len(got), MaxCompactLength)
}

func TestCompactTruncatesSingleSentence(t *testing.T) {
	in := strings.Repeat("word ", 80)
	got := Compact(in)
	assert.LessOrEqual(t, len(got), MaxCompactLength)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.False(t, strings.Contains(got, "wor..."), "cut on a word boundary")
}

func TestCompactIdempotent(t *testing.T) {
	inputs := []string{
		"I think we should use tabs",
		"I I think think nested fillers collapse fully",
		strings.Repeat("Long sentence about retries and backoff. ", 10),
		strings.Repeat("x", 500),
		"Learned that `go test -race` catches it, and It turns out CI never ran it",
	}
	for _, in := range inputs {
		once := Compact(in)
		assert.Equal(t, once, Compact(once), in)
	}
}

func TestSessionEndSweepScenarioB(t *testing.T) {
	h := newHarness(t, "k1")
	m := h.save(t, "I think we should use tabs", model.KindEmotional, model.ImpactLow, h.clock.Add(-48*time.Hour))
	crit := h.save(t, "I think production deploys need approval", model.KindLearnings, model.ImpactCritical, h.clock.Add(-400*24*time.Hour))
	fresh := h.save(t, "I think this is recent enough", model.KindLearnings, model.ImpactLow, h.clock.Add(-time.Hour))

	preview, err := h.engine.SessionEndSweep(h.agent.ID, true)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	unchanged, err := h.db.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Content, unchanged.Content, "dry run writes nothing")

	done, err := h.engine.SessionEndSweep(h.agent.ID, false)
	require.NoError(t, err)
	require.Len(t, done, 1)

	got, err := h.db.Get(m.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Content, "I think")
	assert.Contains(t, got.OriginalContent, "I think")
	assert.Equal(t, model.EstimateTokens(got.Content), got.TokenCount)
	assert.Equal(t, m.Version, got.Version)
	assert.Equal(t, m.Signature, got.Signature)
	assert.True(t, signing.Verify(got, got.Signature, "k1"), "signature survives decay")

	for _, id := range []string{crit.ID, fresh.ID} {
		untouched, err := h.db.Get(id)
		require.NoError(t, err)
		assert.Equal(t, untouched.OriginalContent, untouched.Content)
	}

	again, err := h.engine.SessionEndSweep(h.agent.ID, false)
	require.NoError(t, err)
	assert.Empty(t, again, "second sweep is a no-op")
}

func TestSweepSkipsSuperseded(t *testing.T) {
	h := newHarness(t, "")
	old := h.save(t, "I think the old approach works", model.KindLearnings, model.ImpactLow, h.clock.Add(-72*time.Hour))
	_, _, err := h.engine.Forget(h.agent, old.ID, "", "")
	require.NoError(t, err)

	_, err = h.engine.SessionEndSweep(h.agent.ID, false)
	require.NoError(t, err)

	all, err := h.db.FetchAll(h.agent.ID, store.Filter{})
	require.NoError(t, err)
	for _, m := range all {
		if m.ID == old.ID {
			assert.Equal(t, m.OriginalContent, m.Content)
		}
	}
}

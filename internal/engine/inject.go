package engine

import (
	"sort"

	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/signing"
)

// Less orders memories for injection: impact (CRITICAL first), then kind
// (EMOTIONAL first), then newest first, then id.
func Less(a, b *model.Memory) bool {
	if ra, rb := a.Impact.Rank(), b.Impact.Rank(); ra != rb {
		return ra < rb
	}
	if ra, rb := a.Kind.Rank(), b.Kind.Rank(); ra != rb {
		return ra < rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Cost returns the budget cost of m, falling back to an estimate when no
// count has been cached.
func Cost(m *model.Memory) int {
	if m.TokenCount > 0 {
		return m.TokenCount
	}
	return model.EstimateTokens(m.Content)
}

// Plan selects which candidates to inject within budget tokens. Superseded
// candidates are dropped, the rest are ranked with Less and added greedily.
// A memory that does not fit is skipped and smaller lower-ranked ones are
// still tried. Each selected memory is verified against agent; failures are
// flagged, never excluded.
func Plan(candidates []model.Memory, agent *model.Agent, budget int) []model.Injected {
	ranked := make([]model.Memory, 0, len(candidates))
	for _, m := range candidates {
		if m.IsActive() {
			ranked = append(ranked, m)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return Less(&ranked[i], &ranked[j])
	})

	var out []model.Injected
	used := 0
	for i := range ranked {
		m := &ranked[i]
		cost := Cost(m)
		if used+cost > budget {
			continue
		}
		used += cost
		out = append(out, model.Injected{
			Memory:       *m,
			Verification: signing.Check(m, agent),
		})
	}
	return out
}

// Tokens sums the budget cost of a selection.
func Tokens(selected []model.Injected) int {
	n := 0
	for i := range selected {
		n += Cost(&selected[i].Memory)
	}
	return n
}

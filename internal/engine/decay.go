package engine

// Decay compacts the displayable content of a memory once it has gone
// unaccessed for longer than its impact's threshold:
//   - LOW after 1 day, MEDIUM after 7, HIGH after 30 (configurable)
//   - CRITICAL never decays
//   - original_content is never touched, so signatures stay valid
//   - injection resets the clock through last_accessed
//   - compaction is idempotent: Compact(Compact(s)) == Compact(s)

import (
	"log"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/store"
)

const (
	// MinContentLength is the size below which content is left alone.
	MinContentLength = 20
	// MaxCompactLength caps compacted content.
	MaxCompactLength = 200

	maxCompactPasses = 8
)

// Thresholds are the unaccessed durations after which each impact decays.
type Thresholds struct {
	Low    time.Duration
	Medium time.Duration
	High   time.Duration
}

// DefaultThresholds returns 1, 7 and 30 days.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:    24 * time.Hour,
		Medium: 7 * 24 * time.Hour,
		High:   30 * 24 * time.Hour,
	}
}

// For returns the threshold for impact. CRITICAL has none.
func (t Thresholds) For(impact model.Impact) (time.Duration, bool) {
	switch impact {
	case model.ImpactLow:
		return t.Low, true
	case model.ImpactMedium:
		return t.Medium, true
	case model.ImpactHigh:
		return t.High, true
	}
	return 0, false
}

// ShouldCompact reports whether m has crossed its decay threshold at now.
func ShouldCompact(m *model.Memory, t Thresholds, now time.Time) bool {
	if m.IsSuperseded() {
		return false
	}
	threshold, ok := t.For(m.Impact)
	if !ok {
		return false
	}
	return now.Sub(m.LastAccessed) > threshold
}

var fillerPattern = regexp.MustCompile(`(?i)\b(?:I think|I believe|we discussed|it turns out|after investigation|spent time|was frustrating|learned that)\b,?[ \t]*`)

var verbosePhrases = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?i)\bin order to\b`), "to"},
	{regexp.MustCompile(`(?i)\bdue to the fact that\b`), "because"},
	{regexp.MustCompile(`(?i)\bat this point in time\b`), "now"},
	{regexp.MustCompile(`(?i)\bfor the purpose of\b`), "for"},
	{regexp.MustCompile(`(?i)\bin the event that\b`), "if"},
	{regexp.MustCompile(`(?i)\bis able to\b`), "can"},
	{regexp.MustCompile(`(?i)\ba number of\b`), "several"},
}

var spaceRun = regexp.MustCompile(`\s+`)

// Compact shortens content deterministically. Filler phrases are stripped,
// verbose phrasing is shortened and long text is elided to its first and
// last sentence. Text inside backtick code spans is kept verbatim. Content
// that would compact to nothing is returned unchanged.
func Compact(content string) string {
	out := content
	for i := 0; i < maxCompactPasses; i++ {
		next := compactOnce(out)
		if next == out {
			break
		}
		out = next
	}
	if strings.TrimSpace(out) == "" {
		return content
	}
	return out
}

func compactOnce(content string) string {
	if len(content) <= MinContentLength {
		return content
	}

	// Odd segments are inside code spans.
	parts := strings.Split(content, "`")
	for i := 0; i < len(parts); i += 2 {
		p := fillerPattern.ReplaceAllString(parts[i], "")
		for _, v := range verbosePhrases {
			p = v.re.ReplaceAllString(p, v.with)
		}
		parts[i] = spaceRun.ReplaceAllString(p, " ")
	}
	out := strings.TrimSpace(strings.Join(parts, "`"))

	if len(out) > MaxCompactLength {
		out = elide(out)
	}
	return out
}

// elide keeps the first and last sentence when that fits, otherwise cuts at
// a word boundary.
func elide(s string) string {
	sentences := strings.Split(s, ". ")
	if len(sentences) > 1 {
		first := strings.TrimSuffix(sentences[0], ".")
		joined := first + ". [...] " + sentences[len(sentences)-1]
		if len(joined) <= MaxCompactLength && len(joined) < len(s) {
			return joined
		}
	}
	return truncateClean(s, MaxCompactLength-3) + "..."
}

// truncateClean cuts s to at most maxLen bytes, backing up to the last word
// boundary so words are not split.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	for len(cut) > 0 && !utf8Boundary(s, len(cut)) {
		cut = cut[:len(cut)-1]
	}
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func utf8Boundary(s string, i int) bool {
	return i >= len(s) || s[i]&0xC0 != 0x80
}

// Compaction is a content rewrite applied (or proposed) by a sweep.
type Compaction struct {
	Memory  model.Memory
	Content string
}

// SessionEndSweep compacts every active, non-CRITICAL memory of the agent
// that has crossed its threshold. With dryRun set nothing is written.
func (e *Engine) SessionEndSweep(agentID string, dryRun bool) ([]Compaction, error) {
	mems, err := e.DB.FetchActive(agentID, store.Filter{})
	if err != nil {
		return nil, err
	}

	now := e.now()
	var out []Compaction
	for i := range mems {
		m := &mems[i]
		if !ShouldCompact(m, e.Thresholds, now) {
			continue
		}
		next := Compact(m.Content)
		if next == m.Content {
			continue
		}
		out = append(out, Compaction{Memory: *m, Content: next})
		if dryRun {
			continue
		}
		if err := e.DB.UpdateContent(m.ID, next); err != nil {
			return out, err
		}
	}
	if len(out) > 0 && !dryRun {
		log.Printf("decay: compacted %d memories for %s", len(out), agentID)
	}
	return out, nil
}

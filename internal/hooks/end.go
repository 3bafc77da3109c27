package hooks

import (
	"fmt"
	"unicode/utf8"
)

// previewLen is how much of each compacted memory the summary shows.
const previewLen = 50

func (h *Handler) handleEnd(input *HookInput) {
	s, err := h.open(input)
	if err != nil {
		reportError(h.Stderr, err)
		return
	}
	defer s.close()

	done, err := s.Engine.SessionEndSweep(s.Agent.ID, false)
	if err != nil {
		reportError(h.Stderr, err)
		return
	}
	if len(done) == 0 {
		fmt.Fprintln(h.Stdout, "# LTM Session End: No memories needed compaction")
		return
	}
	fmt.Fprintf(h.Stdout, "# LTM Session End: Compacted %d memories\n", len(done))
	for _, c := range done {
		fmt.Fprintf(h.Stdout, "#   - %s: %s\n", c.Memory.Kind, preview(c.Content))
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	r := []rune(s)
	return string(r[:previewLen]) + "..."
}

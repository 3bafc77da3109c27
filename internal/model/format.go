package model

import (
	"fmt"
	"strings"
)

// Verification is the outcome of checking a memory's signature at injection.
type Verification int

const (
	// Unchecked means the owning agent has no key, so nothing was verified.
	Unchecked Verification = iota
	Verified
	// Failed covers both a mismatched signature and a missing one when the
	// agent expects signing.
	Failed
)

func (v Verification) String() string {
	switch v {
	case Verified:
		return "verified"
	case Failed:
		return "unverified"
	default:
		return "unchecked"
	}
}

// UntrustedMarker prefixes memories whose signature check failed.
const UntrustedMarker = "⚠"

// Injected is a memory selected for injection together with its
// verification outcome.
type Injected struct {
	Memory       Memory
	Verification Verification
}

// Line renders the memory as one DSL line:
//
//	[⚠]~KIND:IMPACT[?]| content
func (in Injected) Line() string {
	var b strings.Builder
	if in.Verification == Failed {
		b.WriteString(UntrustedMarker)
	}
	m := in.Memory
	fmt.Fprintf(&b, "~%s:%s", m.Kind.Abbr(), m.Impact.Abbr())
	if m.IsLowConfidence() {
		b.WriteByte('?')
	}
	b.WriteString("| ")
	b.WriteString(strings.ReplaceAll(m.Content, "\n", " "))
	return b.String()
}

// BlockHeader returns the opening tag of an injection block.
func BlockHeader(agentName, projectName string) string {
	if projectName == "" {
		return "[LTM:" + agentName + "]"
	}
	return "[LTM:" + agentName + "@" + projectName + "]"
}

// BlockFooter closes an injection block.
const BlockFooter = "[/LTM]"

// FormatBlock renders the delimited injection block. Superseded memories are
// skipped. An empty selection renders as "".
func FormatBlock(agentName, projectName string, selected []Injected) string {
	var lines []string
	for _, in := range selected {
		if in.Memory.IsSuperseded() {
			continue
		}
		lines = append(lines, in.Line())
	}
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(BlockHeader(agentName, projectName))
	b.WriteByte('\n')
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(BlockFooter)
	return b.String()
}

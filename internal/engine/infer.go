package engine

import (
	"strings"
	"unicode"

	"github.com/lazypower/ltm/internal/model"
)

// Inference rules are checked in order; the first table with a matching
// word wins. Matching is on whole words, case-insensitively.

var impactRules = []struct {
	impact model.Impact
	words  []string
}{
	{model.ImpactCritical, []string{"crucial", "critical", "never", "always", "must", "essential", "vital"}},
	{model.ImpactHigh, []string{"important", "significant", "key", "major", "remember"}},
	{model.ImpactLow, []string{"minor", "small", "trivial", "maybe", "possibly", "might"}},
}

var kindRules = []struct {
	kind  model.Kind
	words []string
}{
	{model.KindArchitectural, []string{
		"architecture", "pattern", "structure", "layer", "service",
		"repository", "router", "dependency", "injection", "solid",
		"separation", "concern", "module", "component", "interface",
		"api", "endpoint", "database", "schema",
	}},
	{model.KindAchievements, []string{
		"completed", "finished", "done", "implemented", "shipped",
		"released", "deployed", "launched", "achieved", "built",
	}},
	{model.KindEmotional, []string{
		"prefer", "like", "enjoy", "appreciate", "style", "tone",
		"humor", "formal", "casual", "communication", "relationship",
	}},
}

var agentWideMarkers = []string{
	"always", "general", "in general", "all projects", "everywhere",
	"universally", "as a rule",
}

// InferImpact guesses an impact level from text. Default MEDIUM.
func InferImpact(text string) model.Impact {
	t := normalize(text)
	for _, r := range impactRules {
		if t.hasAny(r.words) {
			return r.impact
		}
	}
	return model.ImpactMedium
}

// InferKind guesses a kind from text. Default LEARNINGS.
func InferKind(text string) model.Kind {
	t := normalize(text)
	for _, r := range kindRules {
		if t.hasAny(r.words) {
			return r.kind
		}
	}
	return model.KindLearnings
}

// InferRegion returns AGENT for text that reads as a general rule, PROJECT
// when a project is known, and AGENT otherwise.
func InferRegion(text string, hasProject bool) model.Region {
	if normalize(text).hasAny(agentWideMarkers) {
		return model.RegionAgent
	}
	if hasProject {
		return model.RegionProject
	}
	return model.RegionAgent
}

// words is lowercased text reduced to single-space separated words, padded
// with a space on each side so phrases match on word boundaries.
type words string

func normalize(text string) words {
	f := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return words(" " + strings.Join(f, " ") + " ")
}

func (w words) hasAny(phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(string(w), " "+p+" ") {
			return true
		}
	}
	return false
}

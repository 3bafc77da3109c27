// Package model defines the memory, agent, and project data types shared by
// the store, signing, and engine packages.
package model

import (
	"fmt"
	"strings"
)

// Region is the scope of a memory.
type Region string

const (
	RegionAgent   Region = "AGENT"   // cross-project
	RegionProject Region = "PROJECT" // single workspace
)

// Regions lists every valid region.
var Regions = []Region{RegionAgent, RegionProject}

// Valid reports whether r is a known region.
func (r Region) Valid() bool {
	return r == RegionAgent || r == RegionProject
}

// ParseRegion parses a region name case-insensitively.
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRegion, s)
	}
	return r, nil
}

// Kind classifies what a memory is about.
type Kind string

const (
	KindEmotional     Kind = "EMOTIONAL"
	KindArchitectural Kind = "ARCHITECTURAL"
	KindLearnings     Kind = "LEARNINGS"
	KindAchievements  Kind = "ACHIEVEMENTS"
)

// Kinds lists every valid kind in injection precedence order.
var Kinds = []Kind{KindEmotional, KindArchitectural, KindLearnings, KindAchievements}

var kindAbbr = map[Kind]string{
	KindEmotional:     "EMOT",
	KindArchitectural: "ARCH",
	KindLearnings:     "LEARN",
	KindAchievements:  "ACHV",
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindAbbr[k]
	return ok
}

// Abbr returns the short form used in the injection DSL.
func (k Kind) Abbr() string {
	return kindAbbr[k]
}

// Rank returns the injection precedence of k; lower ranks are injected first.
func (k Kind) Rank() int {
	for i, kk := range Kinds {
		if kk == k {
			return i
		}
	}
	return len(Kinds)
}

// ParseKind parses a kind name or its DSL abbreviation case-insensitively.
func ParseKind(s string) (Kind, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if k := Kind(up); k.Valid() {
		return k, nil
	}
	for k, abbr := range kindAbbr {
		if abbr == up {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Impact is the importance tier of a memory. It controls decay speed and
// injection priority.
type Impact string

const (
	ImpactLow      Impact = "LOW"
	ImpactMedium   Impact = "MEDIUM"
	ImpactHigh     Impact = "HIGH"
	ImpactCritical Impact = "CRITICAL"
)

// Impacts lists every valid impact from most to least important.
var Impacts = []Impact{ImpactCritical, ImpactHigh, ImpactMedium, ImpactLow}

var impactAbbr = map[Impact]string{
	ImpactLow:      "LOW",
	ImpactMedium:   "MED",
	ImpactHigh:     "HIGH",
	ImpactCritical: "CRIT",
}

// Valid reports whether i is a known impact level.
func (i Impact) Valid() bool {
	_, ok := impactAbbr[i]
	return ok
}

// Abbr returns the short form used in the injection DSL.
func (i Impact) Abbr() string {
	return impactAbbr[i]
}

// Rank returns the injection precedence of i; CRITICAL is 0.
func (i Impact) Rank() int {
	for n, ii := range Impacts {
		if ii == i {
			return n
		}
	}
	return len(Impacts)
}

// ParseImpact parses an impact name or its DSL abbreviation case-insensitively.
func ParseImpact(s string) (Impact, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if i := Impact(up); i.Valid() {
		return i, nil
	}
	for i, abbr := range impactAbbr {
		if abbr == up {
			return i, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidImpact, s)
}

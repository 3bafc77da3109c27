package store

import (
	"errors"
	"fmt"
)

// Integrity errors. The store rejects the write; nothing is dropped silently.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadySuperseded = errors.New("memory already superseded")
	ErrUnknownAgent      = errors.New("unknown agent")
	ErrUnknownProject    = errors.New("unknown project")
	ErrBrokenChain       = errors.New("broken memory chain")
	ErrImmutable         = errors.New("immutable memory field changed")
	ErrAmbiguousID       = errors.New("ambiguous memory id")
)

// Limits caps how many active memories may exist. Zero means unlimited.
type Limits struct {
	PerAgent   int `json:"max_memories_per_agent"`
	PerProject int `json:"max_memories_per_project"`
	PerKind    int `json:"max_memories_per_kind"`
}

// DefaultLimits are generous enough to never trigger in normal use.
var DefaultLimits = Limits{
	PerAgent:   10000,
	PerProject: 5000,
	PerKind:    2000,
}

// LimitError reports that creating a memory would exceed a limit.
type LimitError struct {
	Scope   string
	Current int
	Limit   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("memory limit exceeded: %s (current: %d, limit: %d)", e.Scope, e.Current, e.Limit)
}

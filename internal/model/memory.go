package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// LowConfidence is the threshold below which a memory is shown with a "?"
// marker.
const LowConfidence = 0.7

// Agent is an identity namespace. SigningKey is empty when signing is off.
type Agent struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DefinitionPath string    `json:"definition_path,omitempty"`
	SigningKey     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasSigningKey reports whether memories of this agent are signed.
func (a *Agent) HasSigningKey() bool {
	return a != nil && a.SigningKey != ""
}

// Project is a workspace scope for PROJECT region memories.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Memory is a single stored memory. Rows are never deleted: corrections
// create a new memory and point the old one at it through SupersededBy.
//
// Only Content (decay), Confidence (contradiction), LastAccessed,
// SupersededBy and Version change after creation. Impact is corrected by
// superseding, since it is covered by the signature.
type Memory struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`

	Region    Region `json:"region"`
	ProjectID string `json:"project_id,omitempty"`

	Kind            Kind    `json:"kind"`
	Content         string  `json:"content"`
	OriginalContent string  `json:"original_content"`
	Impact          Impact  `json:"impact"`
	Confidence      float64 `json:"confidence"`

	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`

	PreviousMemoryID string `json:"previous_memory_id,omitempty"`
	Version          int    `json:"version"`
	SupersededBy     string `json:"superseded_by,omitempty"`

	Signature  string `json:"signature,omitempty"`
	TokenCount int    `json:"token_count"`
}

// NewID returns a new time-ordered memory id.
func NewID() string {
	return strings.ToLower(ulid.Make().String())
}

// Timestamp normalizes t to the precision the store persists (UTC
// milliseconds), so values survive a round trip unchanged.
func Timestamp(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// IsSuperseded reports whether a correction has replaced this memory.
func (m *Memory) IsSuperseded() bool {
	return m.SupersededBy != ""
}

// IsActive is the inverse of IsSuperseded.
func (m *Memory) IsActive() bool {
	return m.SupersededBy == ""
}

// IsLowConfidence reports whether the memory may have been contradicted.
func (m *Memory) IsLowConfidence() bool {
	return m.Confidence < LowConfidence
}

// IsCompacted reports whether decay has rewritten the displayable content.
func (m *Memory) IsCompacted() bool {
	return m.Content != m.OriginalContent
}

// ShortID returns the id fragment shown in listings. It is the tail of the
// id: the leading characters only encode the creation time and are shared by
// memories made in the same burst.
func (m *Memory) ShortID() string {
	if len(m.ID) <= 8 {
		return m.ID
	}
	return m.ID[len(m.ID)-8:]
}

// Validate checks enum membership and the region/project invariant.
func (m *Memory) Validate() error {
	switch {
	case m.ID == "":
		return ErrMissingID
	case m.AgentID == "":
		return ErrMissingAgent
	case strings.TrimSpace(m.OriginalContent) == "":
		return ErrEmptyContent
	case !m.Region.Valid():
		return ErrInvalidRegion
	case !m.Kind.Valid():
		return ErrInvalidKind
	case !m.Impact.Valid():
		return ErrInvalidImpact
	case m.Confidence < 0 || m.Confidence > 1:
		return ErrInvalidConfidence
	case m.Region == RegionAgent && m.ProjectID != "":
		return ErrRegionProject
	case m.Region == RegionProject && m.ProjectID == "":
		return ErrRegionProject
	}
	return nil
}

// EstimateTokens approximates the model token count of text at roughly
// four characters per token. Non-empty text always costs at least one.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

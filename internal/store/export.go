package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/ltm/internal/model"
)

// ExportFormat identifies the JSON layout written by Export.
const ExportFormat = "ltm-export/1"

// Export is a portable snapshot of one agent's memories, superseded rows
// included.
type Export struct {
	Format     string          `json:"format"`
	ExportedAt time.Time       `json:"exported_at"`
	Agent      model.Agent     `json:"agent"`
	Projects   []model.Project `json:"projects"`
	Memories   []model.Memory  `json:"memories"`
}

// ImportResult reports what Import wrote.
type ImportResult struct {
	Imported int
	Skipped  int
	Projects int
}

// Export collects every memory of the agent matching f, plus the projects
// they reference. Signing keys are never exported.
func (db *DB) Export(agentID string, f Filter) (*Export, error) {
	agent, err := db.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	mems, err := db.FetchAll(agentID, f)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var projects []model.Project
	for _, m := range mems {
		if m.ProjectID == "" || seen[m.ProjectID] {
			continue
		}
		seen[m.ProjectID] = true
		p, err := db.GetProject(m.ProjectID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			projects = append(projects, *p)
		}
	}

	out := *agent
	out.SigningKey = ""
	return &Export{
		Format:     ExportFormat,
		ExportedAt: model.Timestamp(db.now()),
		Agent:      out,
		Projects:   projects,
		Memories:   mems,
	}, nil
}

// Import writes an export back in a single transaction. Rows keep their ids,
// chain links and signatures; ids that already exist are skipped. Limits do
// not apply because the rows were admitted once already.
func (db *DB) Import(e *Export) (*ImportResult, error) {
	if e.Format != "" && e.Format != ExportFormat {
		return nil, fmt.Errorf("import: unsupported format %q", e.Format)
	}
	if e.Agent.ID == "" {
		return nil, model.ErrMissingAgent
	}

	res := &ImportResult{}
	err := db.withTx(func(tx *sql.Tx) error {
		// Rows may reference rows later in the file.
		if _, err := tx.Exec(`PRAGMA defer_foreign_keys = ON`); err != nil {
			return fmt.Errorf("defer foreign keys: %w", err)
		}

		created := e.Agent.CreatedAt
		if created.IsZero() {
			created = db.now()
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO agents (id, name, definition_path, signing_key, created_at)
			VALUES (?, ?, ?, NULL, ?)`,
			e.Agent.ID, e.Agent.Name, nullString(e.Agent.DefinitionPath), toMillis(created)); err != nil {
			return fmt.Errorf("import agent: %w", err)
		}

		for _, p := range e.Projects {
			r, err := tx.Exec(`INSERT OR IGNORE INTO projects (id, name, path, created_at) VALUES (?, ?, ?, ?)`,
				p.ID, p.Name, p.Path, toMillis(p.CreatedAt))
			if err != nil {
				return fmt.Errorf("import project %s: %w", p.ID, err)
			}
			if n, _ := r.RowsAffected(); n > 0 {
				res.Projects++
			}
		}

		for i := range e.Memories {
			m := &e.Memories[i]
			if m.AgentID != e.Agent.ID {
				return fmt.Errorf("import memory %s: belongs to agent %s, not %s", m.ID, m.AgentID, e.Agent.ID)
			}
			if err := m.Validate(); err != nil {
				return fmt.Errorf("import memory %s: %w", m.ID, err)
			}
			if m.Version == 0 {
				m.Version = 1
			}
			if m.TokenCount == 0 {
				m.TokenCount = model.EstimateTokens(m.Content)
			}
			if m.LastAccessed.IsZero() {
				m.LastAccessed = m.CreatedAt
			}
			r, err := tx.Exec(`INSERT OR IGNORE INTO memories (`+memoryColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.AgentID, string(m.Region), nullString(m.ProjectID), string(m.Kind),
				m.Content, m.OriginalContent, string(m.Impact), m.Confidence,
				toMillis(m.CreatedAt), toMillis(m.LastAccessed), nullString(m.PreviousMemoryID),
				m.Version, nullString(m.SupersededBy), nullString(m.Signature), m.TokenCount)
			if err != nil {
				return fmt.Errorf("import memory %s: %w", m.ID, err)
			}
			if n, _ := r.RowsAffected(); n > 0 {
				res.Imported++
			} else {
				res.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

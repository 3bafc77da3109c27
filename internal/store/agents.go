package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/lazypower/ltm/internal/model"
)

// SaveAgent inserts or updates an agent. Agents are never deleted.
func (db *DB) SaveAgent(a *model.Agent) error {
	if a.ID == "" {
		return model.ErrMissingAgent
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = model.Timestamp(db.now())
	}
	_, err := db.Exec(`
		INSERT INTO agents (id, name, definition_path, signing_key, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			definition_path = excluded.definition_path,
			signing_key = excluded.signing_key
	`, a.ID, a.Name, nullString(a.DefinitionPath), nullString(a.SigningKey), toMillis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent returns the agent with the given id, or nil if not found.
func (db *DB) GetAgent(id string) (*model.Agent, error) {
	a, err := getAgent(db, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

func getAgent(q queryer, id string) (*model.Agent, error) {
	var a model.Agent
	var defPath, key sql.NullString
	var created int64
	err := q.QueryRow(`SELECT id, name, definition_path, signing_key, created_at FROM agents WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &defPath, &key, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	a.DefinitionPath = defPath.String
	a.SigningKey = key.String
	a.CreatedAt = fromMillis(created)
	return &a, nil
}

// SaveProject inserts or updates a project by id.
func (db *DB) SaveProject(p *model.Project) error {
	if p.ID == "" || p.Path == "" {
		return fmt.Errorf("save project: id and path are required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = model.Timestamp(db.now())
	}
	_, err := db.Exec(`
		INSERT INTO projects (id, name, path, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path
	`, p.ID, p.Name, p.Path, toMillis(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

// EnsureProject returns the project registered for p.Path, creating it on
// first use. When p.ID is already taken by a different path, a suffix
// derived from the path keeps ids unique.
func (db *DB) EnsureProject(p *model.Project) (*model.Project, error) {
	existing, err := db.GetProjectByPath(p.Path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	clash, err := db.GetProject(p.ID)
	if err != nil {
		return nil, err
	}
	if clash != nil {
		sum := sha256.Sum256([]byte(p.Path))
		p.ID = p.ID + "-" + hex.EncodeToString(sum[:3])
	}
	if err := db.SaveProject(p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject returns the project with the given id, or nil if not found.
func (db *DB) GetProject(id string) (*model.Project, error) {
	return db.scanProject(`SELECT id, name, path, created_at FROM projects WHERE id = ?`, id)
}

// GetProjectByPath returns the project registered for path, or nil.
func (db *DB) GetProjectByPath(path string) (*model.Project, error) {
	return db.scanProject(`SELECT id, name, path, created_at FROM projects WHERE path = ?`, path)
}

// ListProjects returns all projects ordered by name.
func (db *DB) ListProjects() ([]model.Project, error) {
	rows, err := db.Query(`SELECT id, name, path, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var p model.Project
		var created int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &created); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = fromMillis(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) scanProject(query string, arg string) (*model.Project, error) {
	var p model.Project
	var created int64
	err := db.QueryRow(query, arg).Scan(&p.ID, &p.Name, &p.Path, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return &p, nil
}

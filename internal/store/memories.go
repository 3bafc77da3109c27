package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/signing"
)

const memoryColumns = `id, agent_id, region, project_id, kind, content, original_content,
	impact, confidence, created_at, last_accessed, previous_memory_id,
	version, superseded_by, signature, token_count`

// Filter narrows memory queries. Zero values mean "any".
type Filter struct {
	Region model.Region
	Kind   model.Kind
	// ProjectID restricts PROJECT memories to one project. AGENT-region
	// memories still match unless Region excludes them.
	ProjectID string
}

// Save inserts m or updates the mutable fields of an existing row with the
// same id. New memories get defaults, a chronological back-link, a token
// count, and a signature when the owning agent has a key. A signed memory is
// never re-signed.
func (db *DB) Save(m *model.Memory) error {
	return db.withTx(func(tx *sql.Tx) error {
		existing, err := getMemory(tx, m.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if existing == nil {
			if err := db.checkLimits(tx, m); err != nil {
				return err
			}
			return db.insert(tx, m)
		}
		return db.update(tx, existing, m)
	})
}

// Supersede atomically inserts replacement and marks oldID as superseded by
// it. The replacement's version is one past the old memory's. Either both
// writes land or neither does.
func (db *DB) Supersede(oldID string, replacement *model.Memory) error {
	return db.withTx(func(tx *sql.Tx) error {
		old, err := getMemory(tx, oldID)
		if err != nil {
			return err
		}
		if old.IsSuperseded() {
			return fmt.Errorf("%w: %s by %s", ErrAlreadySuperseded, old.ID, old.SupersededBy)
		}
		if replacement.AgentID == "" {
			replacement.AgentID = old.AgentID
		}
		if replacement.AgentID != old.AgentID {
			return fmt.Errorf("supersede %s: replacement belongs to agent %s, not %s", old.ID, replacement.AgentID, old.AgentID)
		}
		if replacement.ID == "" {
			replacement.ID = model.NewID()
		}
		replacement.Version = old.Version + 1
		replacement.SupersededBy = ""

		if err := db.insert(tx, replacement); err != nil {
			return err
		}

		res, err := tx.Exec(`UPDATE memories SET superseded_by = ? WHERE id = ? AND superseded_by IS NULL`,
			replacement.ID, old.ID)
		if err != nil {
			return fmt.Errorf("mark superseded %s: %w", old.ID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("%w: %s", ErrAlreadySuperseded, old.ID)
		}
		return nil
	})
}

func (db *DB) insert(tx *sql.Tx, m *model.Memory) error {
	now := model.Timestamp(db.now())
	if m.ID == "" {
		m.ID = model.NewID()
	}
	if m.OriginalContent == "" {
		m.OriginalContent = m.Content
	}
	if m.Content == "" {
		m.Content = m.OriginalContent
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.CreatedAt = model.Timestamp(m.CreatedAt)
	if m.LastAccessed.IsZero() {
		m.LastAccessed = m.CreatedAt
	}
	m.LastAccessed = model.Timestamp(m.LastAccessed)
	if m.Version == 0 {
		m.Version = 1
	}
	if err := m.Validate(); err != nil {
		return err
	}

	agent, err := getAgent(tx, m.AgentID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, m.AgentID)
	}
	if err != nil {
		return err
	}
	if m.Region == model.RegionProject {
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM projects WHERE id = ?`, m.ProjectID).Scan(&n); err != nil {
			return fmt.Errorf("check project: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownProject, m.ProjectID)
		}
	}

	if err := linkPrevious(tx, m); err != nil {
		return err
	}

	m.TokenCount = model.EstimateTokens(m.Content)
	if m.Signature == "" && signing.ShouldSign(agent) {
		m.Signature = signing.Sign(m, agent.SigningKey)
	}

	_, err = tx.Exec(`INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, string(m.Region), nullString(m.ProjectID), string(m.Kind),
		m.Content, m.OriginalContent, string(m.Impact), m.Confidence,
		toMillis(m.CreatedAt), toMillis(m.LastAccessed), nullString(m.PreviousMemoryID),
		m.Version, nullString(m.SupersededBy), nullString(m.Signature), m.TokenCount)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// linkPrevious sets or checks the back-reference to the chronologically
// latest prior memory with the same owner, kind and scope. Ordering is by
// (created_at, id), so a link always points strictly backwards.
func linkPrevious(tx *sql.Tx, m *model.Memory) error {
	created := toMillis(m.CreatedAt)
	if m.PreviousMemoryID != "" {
		prev, err := getMemory(tx, m.PreviousMemoryID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: previous memory %s does not exist", ErrBrokenChain, m.PreviousMemoryID)
		}
		if err != nil {
			return err
		}
		pc := toMillis(prev.CreatedAt)
		if prev.AgentID != m.AgentID || pc > created || (pc == created && prev.ID >= m.ID) {
			return fmt.Errorf("%w: %s cannot precede %s", ErrBrokenChain, prev.ID, m.ID)
		}
		return nil
	}

	var prevID string
	err := tx.QueryRow(`
		SELECT id FROM memories
		WHERE agent_id = ? AND kind = ? AND region = ? AND project_id IS ?
		  AND (created_at < ? OR (created_at = ? AND id < ?))
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		m.AgentID, string(m.Kind), string(m.Region), nullString(m.ProjectID),
		created, created, m.ID).Scan(&prevID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find previous memory: %w", err)
	}
	m.PreviousMemoryID = prevID
	return nil
}

func (db *DB) update(tx *sql.Tx, existing, m *model.Memory) error {
	if m.OriginalContent == "" {
		m.OriginalContent = existing.OriginalContent
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = existing.CreatedAt
	}
	if m.Content == "" {
		m.Content = existing.Content
	}
	if m.PreviousMemoryID == "" {
		m.PreviousMemoryID = existing.PreviousMemoryID
	}
	if m.Version == 0 {
		m.Version = existing.Version
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if changed := immutableChange(existing, m); changed != "" {
		return fmt.Errorf("%w: %s on %s", ErrImmutable, changed, m.ID)
	}
	// Supersession only happens through Supersede.
	m.SupersededBy = existing.SupersededBy

	if m.Content != existing.Content || existing.TokenCount == 0 {
		m.TokenCount = model.EstimateTokens(m.Content)
	} else {
		m.TokenCount = existing.TokenCount
	}
	m.LastAccessed = model.Timestamp(db.now())

	// Existing signatures are evidence and stay byte-identical.
	if existing.Signature != "" {
		m.Signature = existing.Signature
	} else {
		m.Signature = ""
		agent, err := getAgent(tx, m.AgentID)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if agent != nil && signing.ShouldSign(agent) {
			m.Signature = signing.Sign(m, agent.SigningKey)
		}
	}

	_, err := tx.Exec(`
		UPDATE memories SET
			content = ?, confidence = ?, last_accessed = ?, version = ?,
			superseded_by = ?, signature = ?, token_count = ?
		WHERE id = ?`,
		m.Content, m.Confidence, toMillis(m.LastAccessed), m.Version,
		nullString(m.SupersededBy), nullString(m.Signature), m.TokenCount, m.ID)
	if err != nil {
		return fmt.Errorf("update memory %s: %w", m.ID, err)
	}
	return nil
}

func immutableChange(old, m *model.Memory) string {
	switch {
	case old.AgentID != m.AgentID:
		return "agent_id"
	case old.Region != m.Region:
		return "region"
	case old.ProjectID != m.ProjectID:
		return "project_id"
	case old.Kind != m.Kind:
		return "kind"
	case old.OriginalContent != m.OriginalContent:
		return "original_content"
	case old.Impact != m.Impact:
		return "impact"
	case !old.CreatedAt.Equal(model.Timestamp(m.CreatedAt)):
		return "created_at"
	case old.PreviousMemoryID != m.PreviousMemoryID:
		return "previous_memory_id"
	}
	return ""
}

// Get returns the memory with the given id.
func (db *DB) Get(id string) (*model.Memory, error) {
	return getMemory(db, id)
}

func getMemory(q queryer, id string) (*model.Memory, error) {
	row := q.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return &m, nil
}

// ResolveID expands an id fragment among the agent's active memories. The
// fragment may be a prefix of the id or a suffix, such as a short id.
func (db *DB) ResolveID(agentID, fragment string) (string, error) {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return "", fmt.Errorf("memory id: %w", ErrNotFound)
	}
	esc := escapeLike(fragment)
	rows, err := db.Query(`SELECT id FROM memories
		WHERE agent_id = ? AND superseded_by IS NULL
			AND (id LIKE ? ESCAPE '\' OR id LIKE ? ESCAPE '\')
		ORDER BY id LIMIT 2`, agentID, esc+"%", "%"+esc)
	if err != nil {
		return "", fmt.Errorf("resolve id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("memory %s: %w", fragment, ErrNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches more than one memory", ErrAmbiguousID, fragment)
	}
}

// FetchActive returns the agent's memories that have not been superseded.
// Order is unspecified; ranking belongs to the injection planner.
func (db *DB) FetchActive(agentID string, f Filter) ([]model.Memory, error) {
	return db.fetch(agentID, f, false)
}

// FetchAll is FetchActive including superseded rows, for audit, export and
// graph use.
func (db *DB) FetchAll(agentID string, f Filter) ([]model.Memory, error) {
	return db.fetch(agentID, f, true)
}

func (db *DB) fetch(agentID string, f Filter, includeSuperseded bool) ([]model.Memory, error) {
	where, args := f.clause(agentID)
	if !includeSuperseded {
		where = append(where, "superseded_by IS NULL")
	}

	rows, err := db.Query(`SELECT `+memoryColumns+` FROM memories WHERE `+
		strings.Join(where, " AND ")+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (f Filter) clause(agentID string) ([]string, []any) {
	where := []string{"agent_id = ?"}
	args := []any{agentID}
	if f.Region != "" {
		where = append(where, "region = ?")
		args = append(args, string(f.Region))
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.ProjectID != "" {
		where = append(where, "(project_id = ? OR region = 'AGENT')")
		args = append(args, f.ProjectID)
	}
	return where, args
}

// LatestOfKind returns the newest active memory of kind in the given scope,
// or nil when there is none.
func (db *DB) LatestOfKind(agentID string, kind model.Kind, region model.Region, projectID string) (*model.Memory, error) {
	row := db.QueryRow(`SELECT `+memoryColumns+` FROM memories
		WHERE agent_id = ? AND kind = ? AND region = ? AND project_id IS ?
		  AND superseded_by IS NULL
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		agentID, string(kind), string(region), nullString(projectID))
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest of kind: %w", err)
	}
	return &m, nil
}

// MarkAccessed sets last_accessed on the given memories. Content, version
// and signature are untouched.
func (db *DB) MarkAccessed(at time.Time, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	ms := toMillis(model.Timestamp(at))
	return db.withTx(func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.Exec(`UPDATE memories SET last_accessed = ? WHERE id = ?`, ms, id)
			if err != nil {
				return fmt.Errorf("mark accessed %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("mark accessed %s: %w", id, ErrNotFound)
			}
		}
		return nil
	})
}

// UpdateConfidence records an explicit contradiction event.
func (db *DB) UpdateConfidence(id string, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return model.ErrInvalidConfidence
	}
	res, err := db.Exec(`UPDATE memories SET confidence = ? WHERE id = ?`, confidence, id)
	if err != nil {
		return fmt.Errorf("update confidence %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}

// SignUnsigned signs every memory of the agent whose signature is null,
// including superseded rows, and returns the memories it signed. Memories
// that already carry a signature are left byte-identical. With dryRun set
// nothing is written.
func (db *DB) SignUnsigned(agentID, key string, dryRun bool) ([]model.Memory, error) {
	if key == "" {
		return nil, fmt.Errorf("sign memories: agent %s has no signing key", agentID)
	}
	var signed []model.Memory
	err := db.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT `+memoryColumns+` FROM memories
			WHERE agent_id = ? AND signature IS NULL
			ORDER BY created_at, id`, agentID)
		if err != nil {
			return fmt.Errorf("select unsigned: %w", err)
		}
		pending, err := scanMemories(rows)
		rows.Close()
		if err != nil {
			return err
		}

		for i := range pending {
			m := &pending[i]
			m.Signature = signing.Sign(m, key)
			if !dryRun {
				if _, err := tx.Exec(`UPDATE memories SET signature = ? WHERE id = ? AND signature IS NULL`,
					m.Signature, m.ID); err != nil {
					return fmt.Errorf("sign %s: %w", m.ID, err)
				}
			}
			signed = append(signed, *m)
		}
		return nil
	})
	return signed, err
}

// Search finds active memories whose content or original content contains
// query, case-insensitively. Free-text meaning is left to the caller.
func (db *DB) Search(agentID, query, projectID string, limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + escapeLike(query) + "%"
	where := `agent_id = ? AND superseded_by IS NULL
		AND (content LIKE ? ESCAPE '\' OR original_content LIKE ? ESCAPE '\')`
	args := []any{agentID, pattern, pattern}
	if projectID != "" {
		where += ` AND (project_id = ? OR region = 'AGENT')`
		args = append(args, projectID)
	}
	args = append(args, limit)

	rows, err := db.Query(`SELECT `+memoryColumns+` FROM memories WHERE `+where+
		` ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (db *DB) checkLimits(tx *sql.Tx, m *model.Memory) error {
	count := func(query string, args ...any) (int, error) {
		var n int
		err := tx.QueryRow(query, args...).Scan(&n)
		return n, err
	}

	if db.Limits.PerAgent > 0 {
		n, err := count(`SELECT COUNT(*) FROM memories WHERE agent_id = ? AND superseded_by IS NULL`, m.AgentID)
		if err != nil {
			return fmt.Errorf("count memories: %w", err)
		}
		if n >= db.Limits.PerAgent {
			return &LimitError{Scope: "agent total", Current: n, Limit: db.Limits.PerAgent}
		}
	}
	if db.Limits.PerProject > 0 && m.ProjectID != "" {
		n, err := count(`SELECT COUNT(*) FROM memories WHERE agent_id = ? AND project_id = ? AND superseded_by IS NULL`,
			m.AgentID, m.ProjectID)
		if err != nil {
			return fmt.Errorf("count project memories: %w", err)
		}
		if n >= db.Limits.PerProject {
			return &LimitError{Scope: fmt.Sprintf("project %q", m.ProjectID), Current: n, Limit: db.Limits.PerProject}
		}
	}
	if db.Limits.PerKind > 0 {
		n, err := count(`SELECT COUNT(*) FROM memories WHERE agent_id = ? AND kind = ? AND superseded_by IS NULL`,
			m.AgentID, string(m.Kind))
		if err != nil {
			return fmt.Errorf("count kind memories: %w", err)
		}
		if n >= db.Limits.PerKind {
			return &LimitError{Scope: fmt.Sprintf("kind %q", m.Kind), Current: n, Limit: db.Limits.PerKind}
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var region, kind, impact string
	var projectID, prevID, supersededBy, signature sql.NullString
	var created, accessed int64

	err := row.Scan(
		&m.ID, &m.AgentID, &region, &projectID, &kind, &m.Content, &m.OriginalContent,
		&impact, &m.Confidence, &created, &accessed, &prevID,
		&m.Version, &supersededBy, &signature, &m.TokenCount,
	)
	if err != nil {
		return m, err
	}
	m.Region = model.Region(region)
	m.Kind = model.Kind(kind)
	m.Impact = model.Impact(impact)
	m.ProjectID = projectID.String
	m.PreviousMemoryID = prevID.String
	m.SupersededBy = supersededBy.String
	m.Signature = signature.String
	m.CreatedAt = fromMillis(created)
	m.LastAccessed = fromMillis(accessed)
	return m, nil
}

func scanMemories(rows *sql.Rows) ([]model.Memory, error) {
	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateContent rewrites the displayable content of a memory and refreshes
// its token count. It is the decay write path: last_accessed, version and
// signature stay as they are.
func (db *DB) UpdateContent(id, content string) error {
	if strings.TrimSpace(content) == "" {
		return model.ErrEmptyContent
	}
	res, err := db.Exec(`UPDATE memories SET content = ?, token_count = ? WHERE id = ?`,
		content, model.EstimateTokens(content), id)
	if err != nil {
		return fmt.Errorf("update content %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}

// Count returns the number of active memories of the agent matching f.
func (db *DB) Count(agentID string, f Filter) (int, error) {
	where, args := f.clause(agentID)
	where = append(where, "superseded_by IS NULL")
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM memories WHERE `+strings.Join(where, " AND "), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

package store

import (
	"fmt"
	"os"

	"github.com/lazypower/ltm/internal/model"
)

// Stats summarizes an agent's memories.
type Stats struct {
	Active        int
	Superseded    int
	LowConfidence int
	Signed        int
	ByRegion      map[model.Region]int
	ByKind        map[model.Kind]int
	ByImpact      map[model.Impact]int
	Tokens        int
	SizeBytes     int64
}

// Stats counts the agent's memories. Breakdowns cover active memories only.
func (db *DB) Stats(agentID string) (*Stats, error) {
	s := &Stats{
		ByRegion: make(map[model.Region]int),
		ByKind:   make(map[model.Kind]int),
		ByImpact: make(map[model.Impact]int),
	}

	err := db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN superseded_by IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN superseded_by IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN superseded_by IS NULL AND confidence < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN signature IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN superseded_by IS NULL THEN token_count ELSE 0 END), 0)
		FROM memories WHERE agent_id = ?`, model.LowConfidence, agentID).
		Scan(&s.Active, &s.Superseded, &s.LowConfidence, &s.Signed, &s.Tokens)
	if err != nil {
		return nil, fmt.Errorf("memory totals: %w", err)
	}

	rows, err := db.Query(`
		SELECT region, kind, impact, COUNT(*) FROM memories
		WHERE agent_id = ? AND superseded_by IS NULL
		GROUP BY region, kind, impact`, agentID)
	if err != nil {
		return nil, fmt.Errorf("memory breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var region, kind, impact string
		var n int
		if err := rows.Scan(&region, &kind, &impact, &n); err != nil {
			return nil, fmt.Errorf("scan breakdown: %w", err)
		}
		s.ByRegion[model.Region(region)] += n
		s.ByKind[model.Kind(kind)] += n
		s.ByImpact[model.Impact(impact)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if db.Path != ":memory:" {
		if fi, err := os.Stat(db.Path); err == nil {
			s.SizeBytes = fi.Size()
		}
	}
	return s, nil
}

package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/ltm/internal/model"
)

func TestExportImportRoundTrip(t *testing.T) {
	src := newFixture(t, "k1")
	old := src.memory("first take", model.KindArchitectural, model.ImpactHigh)
	old.Region, old.ProjectID = model.RegionProject, src.project.ID
	require.NoError(t, src.db.Save(old))
	src.advance(time.Hour)
	repl := src.memory("second take", model.KindArchitectural, model.ImpactHigh)
	repl.Region, repl.ProjectID = model.RegionProject, src.project.ID
	require.NoError(t, src.db.Supersede(old.ID, repl))

	exp, err := src.db.Export(src.agent.ID, Filter{})
	require.NoError(t, err)
	assert.Len(t, exp.Memories, 2)
	assert.Len(t, exp.Projects, 1)

	raw, err := json.Marshal(exp)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "k1", "signing keys stay local")

	dst, err := OpenMemory()
	require.NoError(t, err)
	defer dst.Close()

	var in Export
	require.NoError(t, json.Unmarshal(raw, &in))
	res, err := dst.Import(&in)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Projects)

	got, err := dst.Get(old.ID)
	require.NoError(t, err)
	assert.Equal(t, repl.ID, got.SupersededBy)
	assert.Equal(t, old.Signature, got.Signature)

	active, err := dst.FetchActive(src.agent.ID, Filter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, repl.ID, active[0].ID)

	again, err := dst.Import(&in)
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
	assert.Equal(t, 2, again.Skipped)
}

func TestImportRejectsForeignAgentRows(t *testing.T) {
	f := newFixture(t, "")
	exp := &Export{
		Agent: model.Agent{ID: "anima", Name: "Anima"},
		Memories: []model.Memory{{
			ID: "01x", AgentID: "someone-else", Region: model.RegionAgent,
			Kind: model.KindLearnings, Impact: model.ImpactLow, Confidence: 1,
			Content: "x", OriginalContent: "x", CreatedAt: epoch,
		}},
	}
	_, err := f.db.Import(exp)
	assert.Error(t, err)
}

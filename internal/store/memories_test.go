package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/signing"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *DB
	agent   *model.Agent
	project *model.Project
	clock   time.Time
}

func newFixture(t *testing.T, key string) *fixture {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, clock: epoch}
	db.Now = func() time.Time { return f.clock }

	f.agent = &model.Agent{ID: "anima", Name: "Anima", SigningKey: key}
	require.NoError(t, db.SaveAgent(f.agent))
	f.project = &model.Project{ID: "ltm", Name: "ltm", Path: "/src/ltm"}
	require.NoError(t, db.SaveProject(f.project))
	return f
}

func (f *fixture) memory(content string, kind model.Kind, impact model.Impact) *model.Memory {
	return &model.Memory{
		AgentID:         f.agent.ID,
		Region:          model.RegionAgent,
		Kind:            kind,
		Impact:          impact,
		Confidence:      1.0,
		Content:         content,
		OriginalContent: content,
	}
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestSchemaVersion(t *testing.T) {
	f := newFixture(t, "")
	v, err := f.db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	for _, table := range []string{"schema_versions", "agents", "projects", "memories"} {
		var name string
		err := f.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpenFileReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memories.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveAgent(&model.Agent{ID: "anima", Name: "Anima"}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	a, err := db.GetAgent("anima")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Anima", a.Name)
}

func TestSaveDefaults(t *testing.T) {
	f := newFixture(t, "")
	m := f.memory("use SQLite for local storage", model.KindArchitectural, model.ImpactMedium)
	m.OriginalContent = ""
	require.NoError(t, f.db.Save(m))

	got, err := f.db.Get(m.ID)
	require.NoError(t, err)
	assert.Len(t, got.ID, 26)
	assert.Equal(t, "use SQLite for local storage", got.OriginalContent)
	assert.Equal(t, epoch, got.CreatedAt)
	assert.Equal(t, epoch, got.LastAccessed)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, model.EstimateTokens(got.Content), got.TokenCount)
	assert.Empty(t, got.Signature)
	assert.Empty(t, got.PreviousMemoryID)
}

func TestSaveRejectsInvalid(t *testing.T) {
	f := newFixture(t, "")

	tests := []struct {
		name   string
		mutate func(m *model.Memory)
		want   error
	}{
		{"agent region with project", func(m *model.Memory) { m.ProjectID = f.project.ID }, model.ErrRegionProject},
		{"project region without project", func(m *model.Memory) { m.Region = model.RegionProject }, model.ErrRegionProject},
		{"bad kind", func(m *model.Memory) { m.Kind = "GOSSIP" }, model.ErrInvalidKind},
		{"bad impact", func(m *model.Memory) { m.Impact = "URGENT" }, model.ErrInvalidImpact},
		{"bad confidence", func(m *model.Memory) { m.Confidence = 1.5 }, model.ErrInvalidConfidence},
		{"unknown agent", func(m *model.Memory) { m.AgentID = "ghost" }, ErrUnknownAgent},
		{"unknown project", func(m *model.Memory) {
			m.Region = model.RegionProject
			m.ProjectID = "nowhere"
		}, ErrUnknownProject},
		{"broken chain", func(m *model.Memory) { m.PreviousMemoryID = "01missing" }, ErrBrokenChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := f.memory("some memory text", model.KindLearnings, model.ImpactLow)
			tt.mutate(m)
			err := f.db.Save(m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	n, err := f.db.Count(f.agent.ID, Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegionProjectCheckConstraint(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.db.Exec(`INSERT INTO memories (id, agent_id, region, project_id, kind, content, original_content,
		impact, confidence, created_at, last_accessed) VALUES ('x', 'anima', 'AGENT', 'ltm', 'LEARNINGS', 'a', 'a', 'LOW', 1, 0, 0)`)
	assert.Error(t, err)
}

func TestChronologicalChain(t *testing.T) {
	f := newFixture(t, "")

	first := f.memory("first lesson", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(first))
	f.advance(time.Minute)

	other := f.memory("unrelated architecture note", model.KindArchitectural, model.ImpactLow)
	require.NoError(t, f.db.Save(other))
	f.advance(time.Minute)

	second := f.memory("second lesson", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(second))

	assert.Equal(t, first.ID, second.PreviousMemoryID)
	assert.Empty(t, other.PreviousMemoryID)

	scoped := f.memory("project lesson", model.KindLearnings, model.ImpactLow)
	scoped.Region = model.RegionProject
	scoped.ProjectID = f.project.ID
	require.NoError(t, f.db.Save(scoped))
	assert.Empty(t, scoped.PreviousMemoryID, "chains do not cross scopes")
}

func TestExplicitPreviousMustBeEarlier(t *testing.T) {
	f := newFixture(t, "")
	a := f.memory("earlier memory", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(a))

	b := f.memory("backdated memory", model.KindLearnings, model.ImpactLow)
	b.CreatedAt = epoch.Add(-time.Hour)
	b.PreviousMemoryID = a.ID
	err := f.db.Save(b)
	assert.ErrorIs(t, err, ErrBrokenChain)
}

func TestSupersedeScenarioC(t *testing.T) {
	f := newFixture(t, "")
	old := f.memory("prefer tabs", model.KindEmotional, model.ImpactMedium)
	require.NoError(t, f.db.Save(old))
	f.advance(time.Hour)

	repl := f.memory("prefer spaces", model.KindEmotional, model.ImpactMedium)
	require.NoError(t, f.db.Supersede(old.ID, repl))

	assert.Equal(t, 2, repl.Version)
	assert.Equal(t, old.ID, repl.PreviousMemoryID)

	active, err := f.db.FetchActive(f.agent.ID, Filter{Kind: model.KindEmotional})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, repl.ID, active[0].ID)

	all, err := f.db.FetchAll(f.agent.ID, Filter{Kind: model.KindEmotional})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := f.db.Get(old.ID)
	require.NoError(t, err)
	assert.Equal(t, repl.ID, got.SupersededBy)
	assert.Equal(t, 1, got.Version, "superseded version is unchanged")
}

func TestSupersedeTwiceFails(t *testing.T) {
	f := newFixture(t, "")
	old := f.memory("original", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(old))
	require.NoError(t, f.db.Supersede(old.ID, f.memory("first fix", model.KindLearnings, model.ImpactLow)))

	second := f.memory("second fix", model.KindLearnings, model.ImpactLow)
	err := f.db.Supersede(old.ID, second)
	assert.ErrorIs(t, err, ErrAlreadySuperseded)

	_, err = f.db.Get(second.ID)
	assert.ErrorIs(t, err, ErrNotFound, "replacement must not be written")
}

func TestSupersedeIsAtomic(t *testing.T) {
	f := newFixture(t, "")
	old := f.memory("original", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(old))

	bad := f.memory("invalid replacement", model.KindLearnings, model.ImpactLow)
	bad.Region = model.RegionProject
	bad.ProjectID = "nowhere"
	require.Error(t, f.db.Supersede(old.ID, bad))

	got, err := f.db.Get(old.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())

	all, err := f.db.FetchAll(f.agent.ID, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoriesAreNeverDeleted(t *testing.T) {
	f := newFixture(t, "")
	m := f.memory("keep me forever", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(m))

	_, err := f.db.Exec(`DELETE FROM memories WHERE id = ?`, m.ID)
	assert.Error(t, err)

	_, err = f.db.Get(m.ID)
	assert.NoError(t, err)
}

func TestImmutableFields(t *testing.T) {
	f := newFixture(t, "")
	m := f.memory("immutable original", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(m))

	changed := *m
	changed.Impact = model.ImpactCritical
	assert.ErrorIs(t, f.db.Save(&changed), ErrImmutable)

	_, err := f.db.Exec(`UPDATE memories SET original_content = 'rewritten' WHERE id = ?`, m.ID)
	assert.Error(t, err, "trigger guards raw writes too")
}

func TestSaveUpdateKeepsSignature(t *testing.T) {
	f := newFixture(t, "k1")
	m := f.memory("signed at birth", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(m))
	require.NotEmpty(t, m.Signature)
	sig := m.Signature

	f.agent.SigningKey = "k2"
	require.NoError(t, f.db.SaveAgent(f.agent))

	f.advance(time.Hour)
	m.Content = "signed"
	m.Confidence = 0.5
	require.NoError(t, f.db.Save(m))

	got, err := f.db.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, sig, got.Signature)
	assert.Equal(t, "signed", got.Content)
	assert.Equal(t, "signed at birth", got.OriginalContent)
	assert.Equal(t, epoch.Add(time.Hour), got.LastAccessed)
	assert.Equal(t, model.EstimateTokens("signed"), got.TokenCount)
}

func TestMarkAccessed(t *testing.T) {
	f := newFixture(t, "k1")
	m := f.memory("touch me", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(m))

	at := epoch.Add(48 * time.Hour)
	require.NoError(t, f.db.MarkAccessed(at, m.ID))

	got, err := f.db.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, at, got.LastAccessed)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.Version, got.Version)
	assert.Equal(t, m.Signature, got.Signature)

	assert.ErrorIs(t, f.db.MarkAccessed(at, "missing"), ErrNotFound)
}

func TestUpdateContentKeepsBookkeeping(t *testing.T) {
	f := newFixture(t, "k1")
	m := f.memory("I think the cache layer should be write-through", model.KindArchitectural, model.ImpactLow)
	require.NoError(t, f.db.Save(m))

	require.NoError(t, f.db.UpdateContent(m.ID, "cache layer should be write-through"))
	got, err := f.db.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "cache layer should be write-through", got.Content)
	assert.Equal(t, m.OriginalContent, got.OriginalContent)
	assert.Equal(t, m.LastAccessed, got.LastAccessed)
	assert.Equal(t, m.Version, got.Version)
	assert.Equal(t, m.Signature, got.Signature)
	assert.True(t, signing.Verify(got, got.Signature, "k1"))
}

func TestSignUnsignedNeverResigns(t *testing.T) {
	f := newFixture(t, "")
	a := f.memory("before key one", model.KindLearnings, model.ImpactLow)
	b := f.memory("before key two", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(a))
	require.NoError(t, f.db.Save(b))

	preview, err := f.db.SignUnsigned(f.agent.ID, "k1", true)
	require.NoError(t, err)
	assert.Len(t, preview, 2)
	got, err := f.db.Get(a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Signature, "dry run writes nothing")

	signed, err := f.db.SignUnsigned(f.agent.ID, "k1", false)
	require.NoError(t, err)
	assert.Len(t, signed, 2)
	first, err := f.db.Get(a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first.Signature)

	again, err := f.db.SignUnsigned(f.agent.ID, "k2", false)
	require.NoError(t, err)
	assert.Empty(t, again)
	second, err := f.db.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Signature, second.Signature)
}

func TestResolveID(t *testing.T) {
	f := newFixture(t, "")
	m := f.memory("resolvable", model.KindLearnings, model.ImpactLow)
	m.ID = "01aaaaaaaaaaaaaaaaaaaaaaaa"
	n := f.memory("also resolvable", model.KindLearnings, model.ImpactLow)
	n.ID = "01aaaaaaaabbbbbbbbbbbbbbbb"
	require.NoError(t, f.db.Save(m))
	require.NoError(t, f.db.Save(n))

	id, err := f.db.ResolveID(f.agent.ID, "01AAAAAAAAB")
	require.NoError(t, err)
	assert.Equal(t, n.ID, id)

	_, err = f.db.ResolveID(f.agent.ID, "01aaaa")
	assert.ErrorIs(t, err, ErrAmbiguousID)

	id, err = f.db.ResolveID(f.agent.ID, m.ShortID())
	require.NoError(t, err)
	assert.Equal(t, m.ID, id, "short ids resolve by suffix")

	_, err = f.db.ResolveID(f.agent.ID, "zz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchActiveProjectFilter(t *testing.T) {
	f := newFixture(t, "")
	other := &model.Project{ID: "other", Name: "other", Path: "/src/other"}
	require.NoError(t, f.db.SaveProject(other))

	global := f.memory("agent-wide memory", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(global))
	local := f.memory("project memory", model.KindLearnings, model.ImpactLow)
	local.Region, local.ProjectID = model.RegionProject, f.project.ID
	require.NoError(t, f.db.Save(local))
	foreign := f.memory("other project memory", model.KindLearnings, model.ImpactLow)
	foreign.Region, foreign.ProjectID = model.RegionProject, other.ID
	require.NoError(t, f.db.Save(foreign))

	got, err := f.db.FetchActive(f.agent.ID, Filter{ProjectID: f.project.ID})
	require.NoError(t, err)
	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{global.ID, local.ID}, ids)

	got, err = f.db.FetchActive(f.agent.ID, Filter{Region: model.RegionProject})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLatestOfKind(t *testing.T) {
	f := newFixture(t, "")
	none, err := f.db.LatestOfKind(f.agent.ID, model.KindLearnings, model.RegionAgent, "")
	require.NoError(t, err)
	assert.Nil(t, none)

	a := f.memory("older", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(a))
	f.advance(time.Second)
	b := f.memory("newer", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(b))

	got, err := f.db.LatestOfKind(f.agent.ID, model.KindLearnings, model.RegionAgent, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)
}

func TestSearchEscapesWildcards(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.db.Save(f.memory("coverage hit 100% on the parser", model.KindAchievements, model.ImpactLow)))
	require.NoError(t, f.db.Save(f.memory("coverage hit 1000 lines", model.KindAchievements, model.ImpactLow)))

	got, err := f.db.Search(f.agent.ID, "100%", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Content, "100%")

	got, err = f.db.Search(f.agent.ID, "COVERAGE", "", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUpdateConfidence(t *testing.T) {
	f := newFixture(t, "")
	m := f.memory("possibly wrong", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(m))

	require.NoError(t, f.db.UpdateConfidence(m.ID, 0.4))
	got, err := f.db.Get(m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLowConfidence())

	assert.ErrorIs(t, f.db.UpdateConfidence(m.ID, -1), model.ErrInvalidConfidence)
}

func TestLimits(t *testing.T) {
	f := newFixture(t, "")
	f.db.Limits = Limits{PerAgent: 10, PerProject: 10, PerKind: 2}

	require.NoError(t, f.db.Save(f.memory("one", model.KindLearnings, model.ImpactLow)))
	require.NoError(t, f.db.Save(f.memory("two", model.KindLearnings, model.ImpactLow)))

	err := f.db.Save(f.memory("three", model.KindLearnings, model.ImpactLow))
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 2, le.Limit)

	require.NoError(t, f.db.Save(f.memory("different kind", model.KindEmotional, model.ImpactLow)))
}

func TestEnsureProject(t *testing.T) {
	f := newFixture(t, "")

	same, err := f.db.EnsureProject(&model.Project{ID: "ltm", Name: "ltm", Path: "/src/ltm"})
	require.NoError(t, err)
	assert.Equal(t, "ltm", same.ID)

	clash, err := f.db.EnsureProject(&model.Project{ID: "ltm", Name: "ltm", Path: "/work/ltm"})
	require.NoError(t, err)
	assert.NotEqual(t, "ltm", clash.ID)
	assert.Regexp(t, `^ltm-[0-9a-f]{6}$`, clash.ID)

	projects, err := f.db.ListProjects()
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestStats(t *testing.T) {
	f := newFixture(t, "k1")
	old := f.memory("stale fact", model.KindLearnings, model.ImpactLow)
	require.NoError(t, f.db.Save(old))
	require.NoError(t, f.db.Supersede(old.ID, f.memory("fresh fact", model.KindLearnings, model.ImpactHigh)))
	shaky := f.memory("shaky preference", model.KindEmotional, model.ImpactMedium)
	shaky.Confidence = 0.3
	require.NoError(t, f.db.Save(shaky))

	s, err := f.db.Stats(f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Active)
	assert.Equal(t, 1, s.Superseded)
	assert.Equal(t, 1, s.LowConfidence)
	assert.Equal(t, 3, s.Signed)
	assert.Equal(t, 1, s.ByKind[model.KindLearnings])
	assert.Equal(t, 1, s.ByImpact[model.ImpactHigh])
	assert.Equal(t, 2, s.ByRegion[model.RegionAgent])
}

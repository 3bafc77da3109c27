package engine

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/store"
)

// Messages appended to the injected context.
const (
	ConflictAdvisory  = "# Project memories override agent memories when they conflict."
	NoMemoriesMessage = "# LTM: No memories found for this agent/project yet."
	usageHint         = "# These are your long-term memories from previous sessions. Use them to inform your responses."
)

// DefaultBudget is 10% of a 200k token context.
const DefaultBudget = 20000

// Engine orchestrates memory creation, correction, decay and injection.
type Engine struct {
	DB         *store.DB
	Thresholds Thresholds
	// Budget is the token budget for one injection.
	Budget int
	// Now is the clock used for new memories, access times and decay.
	Now func() time.Time
}

// New creates an Engine with default thresholds and budget.
func New(db *store.DB) *Engine {
	return &Engine{
		DB:         db,
		Thresholds: DefaultThresholds(),
		Budget:     DefaultBudget,
		Now:        time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Register records the agent and, when given, the project, so memories can
// reference them. The returned project carries the id actually stored.
func (e *Engine) Register(agent *model.Agent, project *model.Project) (*model.Project, error) {
	if err := e.DB.SaveAgent(agent); err != nil {
		return nil, err
	}
	if project == nil {
		return nil, nil
	}
	return e.DB.EnsureProject(project)
}

// CreateRequest describes a new memory. Empty Kind, Impact and Region are
// inferred from Text.
type CreateRequest struct {
	Text   string
	Kind   model.Kind
	Impact model.Impact
	Region model.Region
}

// Create infers unset metadata and saves a new memory for agent. project may
// be nil for agent-wide memories.
func (e *Engine) Create(agent *model.Agent, project *model.Project, req CreateRequest) (*model.Memory, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, model.ErrEmptyContent
	}

	m := &model.Memory{
		ID:              model.NewID(),
		AgentID:         agent.ID,
		Kind:            req.Kind,
		Impact:          req.Impact,
		Region:          req.Region,
		Content:         text,
		OriginalContent: text,
		Confidence:      1.0,
		CreatedAt:       e.now(),
	}
	if m.Kind == "" {
		m.Kind = InferKind(text)
	}
	if m.Impact == "" {
		m.Impact = InferImpact(text)
	}
	if m.Region == "" {
		m.Region = InferRegion(text, project != nil)
	}
	if m.Region == model.RegionProject {
		if project == nil {
			return nil, fmt.Errorf("%w: PROJECT memory outside a project", model.ErrRegionProject)
		}
		m.ProjectID = project.ID
	}

	if err := e.DB.Save(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Forget supersedes the memory addressed by ref with a zero-confidence
// correction. The correction's content is reason, or a "[FORGOTTEN]" note
// when reason is empty. impact overrides the inherited impact when set.
// Nothing is deleted.
func (e *Engine) Forget(agent *model.Agent, ref, reason string, impact model.Impact) (old, correction *model.Memory, err error) {
	old, err = e.resolve(agent, ref)
	if err != nil {
		return nil, nil, err
	}

	content := strings.TrimSpace(reason)
	if content == "" {
		content = "[FORGOTTEN] " + truncateRunes(old.Content, 50) + "..."
	}
	correction = e.correction(old, content, impact)
	correction.OriginalContent = "Correction: requested to forget memory " + old.ID
	correction.Confidence = 0.0

	if err := e.DB.Supersede(old.ID, correction); err != nil {
		return nil, nil, fmt.Errorf("forget %s: %w", old.ShortID(), err)
	}
	return old, correction, nil
}

// Replace supersedes a memory with corrected text. It is also how an impact
// is corrected, since impact is covered by the signature.
func (e *Engine) Replace(agent *model.Agent, ref, text string, impact model.Impact) (old, replacement *model.Memory, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, model.ErrEmptyContent
	}
	old, err = e.resolve(agent, ref)
	if err != nil {
		return nil, nil, err
	}
	replacement = e.correction(old, text, impact)
	if err := e.DB.Supersede(old.ID, replacement); err != nil {
		return nil, nil, fmt.Errorf("replace %s: %w", old.ShortID(), err)
	}
	return old, replacement, nil
}

func (e *Engine) resolve(agent *model.Agent, ref string) (*model.Memory, error) {
	id, err := e.DB.ResolveID(agent.ID, ref)
	if err != nil {
		return nil, err
	}
	return e.DB.Get(id)
}

// correction builds a memory in the same scope and kind as old.
func (e *Engine) correction(old *model.Memory, content string, impact model.Impact) *model.Memory {
	if impact == "" {
		impact = old.Impact
	}
	now := e.now()
	return &model.Memory{
		ID:              model.NewID(),
		AgentID:         old.AgentID,
		Region:          old.Region,
		ProjectID:       old.ProjectID,
		Kind:            old.Kind,
		Content:         content,
		OriginalContent: content,
		Impact:          impact,
		Confidence:      1.0,
		CreatedAt:       now,
		LastAccessed:    now,
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Injection is the result of a session-start injection.
type Injection struct {
	Selected     []model.Injected
	AgentCount   int
	ProjectCount int
	Budget       int
	Used         int
	Unverified   int
	Block        string
	Context      string
}

// SessionStartInjection selects the agent's AGENT memories and, with a
// project, that project's PROJECT memories, plans them within the budget,
// marks the selected ones accessed and formats the context to inject.
func (e *Engine) SessionStartInjection(agent *model.Agent, project *model.Project) (*Injection, error) {
	candidates, err := e.DB.FetchActive(agent.ID, store.Filter{Region: model.RegionAgent})
	if err != nil {
		return nil, err
	}
	projectName := ""
	if project != nil {
		projectName = project.Name
		local, err := e.DB.FetchActive(agent.ID, store.Filter{Region: model.RegionProject, ProjectID: project.ID})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, local...)
	}

	// The block's own lines count against the budget.
	overhead := model.EstimateTokens(model.BlockHeader(agent.Name, projectName) + "\n" + model.BlockFooter)
	if project != nil {
		overhead += model.EstimateTokens(ConflictAdvisory + "\n")
	}
	budget := e.Budget - overhead
	if budget < 0 {
		budget = 0
	}

	inj := &Injection{Budget: e.Budget}
	inj.Selected = Plan(candidates, agent, budget)
	inj.Used = Tokens(inj.Selected) + overhead

	ids := make([]string, 0, len(inj.Selected))
	for _, s := range inj.Selected {
		ids = append(ids, s.Memory.ID)
		switch s.Memory.Region {
		case model.RegionAgent:
			inj.AgentCount++
		case model.RegionProject:
			inj.ProjectCount++
		}
		if s.Verification == model.Failed {
			inj.Unverified++
		}
	}
	if err := e.DB.MarkAccessed(e.now(), ids...); err != nil {
		return nil, err
	}

	inj.Block = model.FormatBlock(agent.Name, projectName, inj.Selected)
	if inj.Block == "" {
		inj.Context = NoMemoriesMessage
		return inj, nil
	}
	if inj.AgentCount > 0 && inj.ProjectCount > 0 {
		inj.Block = strings.Replace(inj.Block, "\n", "\n"+ConflictAdvisory+"\n", 1)
	}
	inj.Context = fmt.Sprintf("%s\n\n# LTM: Loaded %d memories (%d agent, %d project)\n%s",
		inj.Block, len(inj.Selected), inj.AgentCount, inj.ProjectCount, usageHint)
	return inj, nil
}

// SignUnsigned signs the agent's unsigned memories with its current key.
func (e *Engine) SignUnsigned(agent *model.Agent, dryRun bool) ([]model.Memory, error) {
	if !agent.HasSigningKey() {
		return nil, fmt.Errorf("agent %s has no signing key; run keygen first", agent.ID)
	}
	return e.DB.SignUnsigned(agent.ID, agent.SigningKey, dryRun)
}

// Recall searches active memories of the agent, scoped to project when one
// is given.
func (e *Engine) Recall(agent *model.Agent, project *model.Project, query string, limit int) ([]model.Memory, error) {
	projectID := ""
	if project != nil {
		projectID = project.ID
	}
	return e.DB.Search(agent.ID, query, projectID, limit)
}

package hooks

import "github.com/lazypower/ltm/internal/engine"

func (h *Handler) handleStart(input *HookInput) {
	context := engine.NoMemoriesMessage
	defer func() { WriteSessionStartOutput(h.Stdout, context) }()

	s, err := h.open(input)
	if err != nil {
		reportError(h.Stderr, err)
		return
	}
	defer s.close()

	project, err := s.Engine.Register(s.Agent, s.Project)
	if err != nil {
		reportError(h.Stderr, err)
		return
	}
	inj, err := s.Engine.SessionStartInjection(s.Agent, project)
	if err != nil {
		reportError(h.Stderr, err)
		return
	}
	context = inj.Context
}

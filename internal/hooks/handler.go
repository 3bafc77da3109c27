package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lazypower/ltm/internal/engine"
	"github.com/lazypower/ltm/internal/model"
)

// Session is everything a hook needs to act for one working directory.
type Session struct {
	Engine  *engine.Engine
	Agent   *model.Agent
	Project *model.Project
	// Close releases the store. May be nil.
	Close func() error
}

// Opener prepares a Session for the hook's working directory.
type Opener func(cwd string) (*Session, error)

// Handler dispatches hook events. Failures are reported on Stderr and never
// returned: a broken memory store must not break the host session.
type Handler struct {
	Open   Opener
	Stdout io.Writer
	Stderr io.Writer
}

// NewHandler returns a Handler writing to the process stdout and stderr.
func NewHandler(open Opener) *Handler {
	return &Handler{Open: open, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Handle reads HookInput from stdin and runs the handler for event.
func (h *Handler) Handle(event string, stdin io.Reader) {
	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		// A start hook still answers so the host gets valid JSON.
		reportError(h.Stderr, fmt.Errorf("decode stdin: %w", err))
		if event == "start" {
			WriteSessionStartOutput(h.Stdout, engine.NoMemoriesMessage)
		}
		return
	}
	if input.CWD == "" {
		input.CWD, _ = os.Getwd()
	}

	switch event {
	case "start":
		h.handleStart(&input)
	case "end":
		h.handleEnd(&input)
	default:
		reportError(h.Stderr, fmt.Errorf("unknown hook event: %s", event))
	}
}

func (h *Handler) open(input *HookInput) (*Session, error) {
	s, err := h.Open(input.CWD)
	if err != nil {
		return nil, fmt.Errorf("open session for %s: %w", input.CWD, err)
	}
	return s, nil
}

func (s *Session) close() {
	if s.Close != nil {
		s.Close()
	}
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/agent"
	"github.com/lazypower/ltm/internal/config"
	"github.com/lazypower/ltm/internal/engine"
	"github.com/lazypower/ltm/internal/hooks"
	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/store"
)

// options are the global flags that locate the config, store, agent and
// project for a command.
type options struct {
	ConfigPath string
	DBPath     string
	Agent      string
	Dir        string
}

func optionsFrom(cmd *cobra.Command) options {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return options{
		ConfigPath: get("config"),
		DBPath:     get("db"),
		Agent:      get("agent"),
		Dir:        get("dir"),
	}
}

// app is an open store plus the resolved agent and project.
type app struct {
	cfg     config.Config
	cfgPath string
	home    string
	dir     string
	db      *store.DB
	engine  *engine.Engine
	agent   *model.Agent
	project *model.Project
}

// open loads config, resolves the agent and project for o.Dir, opens the
// store and registers both. The caller must Close the app.
func open(o options) (*app, error) {
	a := &app{cfgPath: o.ConfigPath, dir: o.Dir}

	if a.cfgPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		a.cfgPath = p
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg

	if a.dir == "" {
		if a.dir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("get working dir: %w", err)
		}
	}
	if a.home, err = os.UserHomeDir(); err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	a.agent, err = agent.ResolveFromDisk(a.dir, a.home, o.Agent, cfg.Agent)
	if err != nil {
		return nil, err
	}
	project, err := agent.ProjectFor(a.dir)
	if err != nil {
		return nil, err
	}

	dbPath := o.DBPath
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	a.db, err = store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db.Limits = store.Limits{
		PerAgent:   cfg.Limits.PerAgent,
		PerProject: cfg.Limits.PerProject,
		PerKind:    cfg.Limits.PerKind,
	}

	a.engine = engine.New(a.db)
	a.engine.Budget = cfg.BudgetTokens()
	low, medium, high := cfg.DecayAfter()
	a.engine.Thresholds = engine.Thresholds{Low: low, Medium: medium, High: high}

	if a.project, err = a.engine.Register(a.agent, project); err != nil {
		a.db.Close()
		return nil, err
	}
	return a, nil
}

func openCmd(cmd *cobra.Command) (*app, error) {
	return open(optionsFrom(cmd))
}

func (a *app) Close() error {
	return a.db.Close()
}

// hookOpener opens a fresh app for each hook invocation, rooted at the
// directory the host reports.
func hookOpener(o options) hooks.Opener {
	return func(cwd string) (*hooks.Session, error) {
		if o.Dir == "" {
			o.Dir = cwd
		}
		a, err := open(o)
		if err != nil {
			return nil, err
		}
		return &hooks.Session{Engine: a.engine, Agent: a.agent, Project: a.project, Close: a.Close}, nil
	}
}

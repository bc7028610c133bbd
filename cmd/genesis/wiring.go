package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/cache"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/config"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/execengine"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/metrics"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/orchestrator"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/permstore"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/prompt"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/provider"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/registry"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/scheduler"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/store"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
)

// app bundles every long-lived collaborator the CLI drives, closed
// together via app.Close when the process exits.
type app struct {
	cfg    config.Config
	layout config.Layout

	store       *store.Store
	permissions *permstore.Store
	registry    *registry.Registry
	engine      *execengine.Engine
	orch        *orchestrator.Orchestrator
	scheduler   *scheduler.Scheduler
	taskStore   *scheduler.TaskStore
}

// loadApp reads the config file (falling back to spec defaults if it does
// not exist, matching the teacher's tolerant-first-run posture) and wires
// every collaborator the spec's components define.
func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Default()
	}
	layout := cfg.NewLayout()

	for _, dir := range []string{
		layout.SystemPluginsDir(),
		filepath.Dir(layout.ChatStoreDB()),
		filepath.Dir(layout.PermissionsDB()),
		filepath.Dir(layout.TasksFile()),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("preparing storage layout: %w", err)
		}
	}

	st, err := store.Open(layout.ChatStoreDB())
	if err != nil {
		return nil, fmt.Errorf("opening chat store: %w", err)
	}

	perms, err := permstore.Open(layout.PermissionsDB())
	if err != nil {
		return nil, fmt.Errorf("opening permission store: %w", err)
	}

	reg := registry.New(layout, slog.Default())
	engine := execengine.New(layout, cfg.WorkerPoolSize, "python3")

	templates, err := prompt.Load(layout.PromptsFile())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading prompt templates: %w", err)
		}
		templates = prompt.Templates{
			prompt.GeneralChatPromptID:    "You are [bot_name]. [bot_personality]\n\n[actions]\n\n[action_data]",
			prompt.ActionFormaterPromptID: "Summarize these action results for the user: [action_data]",
		}
	}

	taskStore, err := scheduler.OpenTaskStore(layout.TasksFile())
	if err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	sched := scheduler.New(taskStore, reg, engine,
		scheduler.WithTickInterval(cfg.SchedulerTick),
		scheduler.WithMetrics(m),
	)

	credentials := provider.FileCredentialSource{
		Path: func(providerName string) string {
			return layout.UserSecretFile(currentUserID, providerName)
		},
		EnvVar: func(providerName string) string {
			cfg, _ := cfg.Provider(providerName)
			return cfg.APIKeyEnv
		},
	}

	orch := orchestrator.New(st, reg, engine, cache.New(), perms, templates, prompt.BotConfig{Name: "Genesis"}, cfg, credentials,
		orchestrator.WithMetrics(m),
	)

	return &app{
		cfg: cfg, layout: layout,
		store: st, permissions: perms, registry: reg, engine: engine,
		orch: orch, scheduler: sched, taskStore: taskStore,
	}, nil
}

func (a *app) Close() error {
	var result *multierror.Error
	result = multierror.Append(result, a.store.Close())
	result = multierror.Append(result, a.permissions.Close())
	return result.ErrorOrNil()
}

// currentUserID is set by /user before any credential resolution happens;
// the FileCredentialSource closures above read it lazily per call.
var currentUserID = "local"

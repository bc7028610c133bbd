// Package execengine implements the Plugin Execution Engine (spec §4.3):
// dispatch of a plugin action by its declared type, environment
// construction, a bounded worker pool, and cooperative cancellation by
// execution id. The subprocess plumbing is grounded on the teacher
// repository's internal/tools/exec.Manager (command construction, bounded
// output capture, context-based cancellation via exec.CommandContext);
// the three dispatch types and the streaming stdout protocol are grounded
// on the original Python implementation's modules/actions/executor.py.
package execengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/config"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// Status is the outcome discriminator of a Result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the Execution Engine's public return shape (spec §4.3).
type Result struct {
	Status        Status
	Output        any
	Error         string
	ExitCode      int
	PartialOutput string
}

// Context carries the caller identity an execution runs under.
type Context struct {
	UserID      string
	ChatID      string
	ExecutionID string
}

// ProgressFunc receives verbatim progress/match JSON objects as they
// stream off a child's stdout.
type ProgressFunc func(event map[string]any)

// Engine dispatches plugin actions per spec §4.3, bounding concurrent
// executions to a worker pool and tracking in-flight executions so they
// can be cancelled by id.
type Engine struct {
	layout     config.Layout
	pythonBin  string
	workerSem  chan struct{}
	installDir string

	mu     sync.Mutex
	active map[string]context.CancelFunc

	venvMu   sync.Mutex
	venvDone map[string]bool

	inprocMu    sync.Mutex
	inprocCache map[string]InprocPlugin
}

// New constructs an Engine. workers bounds concurrent plugin executions
// (spec §5 default 4); pythonBin is the ambient interpreter used when a
// plugin carries no dependency manifest.
func New(layout config.Layout, workers int, pythonBin string) *Engine {
	if workers <= 0 {
		workers = 4
	}
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &Engine{
		layout:      layout,
		pythonBin:   pythonBin,
		workerSem:   make(chan struct{}, workers),
		active:      make(map[string]context.CancelFunc),
		venvDone:    make(map[string]bool),
		inprocCache: make(map[string]InprocPlugin),
	}
}

// Execute runs one action to completion, blocking the caller's goroutine
// until a worker slot is free and the child process exits (or is
// cancelled). Callers that want §5's bounded-pool behavior across many
// actions should invoke Execute from their own fan-out goroutines; Execute
// itself just acquires one slot of the shared pool.
func (e *Engine) Execute(ctx context.Context, plugin models.Plugin, action models.ActionSpec, args map[string]any, execCtx Context, progress ProgressFunc) Result {
	select {
	case e.workerSem <- struct{}{}:
	case <-ctx.Done():
		return Result{Status: StatusError, Error: ctx.Err().Error()}
	}
	defer func() { <-e.workerSem }()

	runCtx, cancel := context.WithCancel(ctx)
	if execCtx.ExecutionID != "" {
		e.mu.Lock()
		e.active[execCtx.ExecutionID] = cancel
		e.mu.Unlock()
		defer func() {
			e.mu.Lock()
			delete(e.active, execCtx.ExecutionID)
			e.mu.Unlock()
		}()
	}
	defer cancel()

	env, err := e.buildEnv(plugin, action, args, execCtx)
	if err != nil {
		return Result{Status: StatusError, Error: err.Error()}
	}

	var result Result
	switch action.Type {
	case models.ActionTypePython:
		result = e.executePython(runCtx, plugin, action, args, env)
	case models.ActionTypeProcess:
		result = e.executeProcess(runCtx, plugin, action, args, env, progress)
	case models.ActionTypePythonInproc:
		result = e.executeInproc(runCtx, plugin, action, args, execCtx)
	default:
		result = Result{Status: StatusError, Error: fmt.Sprintf("unknown action type %q", action.Type)}
	}

	if runCtx.Err() == context.Canceled {
		return Result{Status: StatusError, Error: "cancelled", PartialOutput: result.PartialOutput}
	}
	return unwrapOutput(result)
}

// Cancel kills the execution's child process, if still running, and stops
// reading its output. Processes that the child itself started are not
// signalled and keep running.
func (e *Engine) Cancel(executionID string) bool {
	e.mu.Lock()
	cancel, ok := e.active[executionID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// buildEnv constructs the per-call environment of spec §4.3.
func (e *Engine) buildEnv(plugin models.Plugin, action models.ActionSpec, args map[string]any, execCtx Context) (map[string]string, error) {
	var home string
	switch plugin.Role {
	case models.PluginRoleSystem:
		home = e.layout.SystemHome()
	case models.PluginRoleUser:
		if execCtx.UserID == "" {
			home = e.layout.TmpHome()
		} else {
			home = e.layout.UserHome(execCtx.UserID)
		}
	default:
		home = e.layout.TmpHome()
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, fmt.Errorf("creating genesis home: %w", err)
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding action args: %w", err)
	}

	return map[string]string{
		"GENESIS_HOME":        home,
		"GENESIS_PLUGIN_PATH": plugin.Path,
		"ACTION_ARGS":         string(argsJSON),
	}, nil
}

// unwrapOutput implements spec §4.3's "avoid double-wrapping" convention:
// a {"output": "<string>"} result collapses to the bare string.
func unwrapOutput(r Result) Result {
	if r.Status != StatusSuccess {
		return r
	}
	m, ok := r.Output.(map[string]any)
	if !ok || len(m) != 1 {
		return r
	}
	if s, ok := m["output"].(string); ok {
		r.Output = s
	}
	return r
}

func scriptPath(plugin models.Plugin, action models.ActionSpec) string {
	script := action.Script
	if script == "" {
		script = "main.py"
	}
	return filepath.Join(plugin.Path, script)
}

func mergedEnv(extra map[string]string) []string {
	base := os.Environ()
	for k, v := range extra {
		base = append(base, k+"="+v)
	}
	return base
}

const dependencyInstallDeadline = 120 * time.Second

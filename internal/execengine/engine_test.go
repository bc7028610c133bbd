package execengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/config"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

func newTestLayout(t *testing.T) config.Layout {
	t.Helper()
	return config.Config{StorageRoot: t.TempDir()}.NewLayout()
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func systemPlugin(t *testing.T, pluginDir, script string) models.Plugin {
	t.Helper()
	return models.Plugin{
		Manifest: models.PluginManifest{ID: "p", Name: "p", Version: "1.0.0"},
		Path:     pluginDir,
		Role:     models.PluginRoleSystem,
	}
}

func TestEngine_ExecuteProcess_UnwrapsOutputString(t *testing.T) {
	layout := newTestLayout(t)
	dir := filepath.Join(t.TempDir(), "plugin")
	writeScript(t, dir, "run.sh", "#!/bin/sh\necho '{\"output\": \"hello\"}'\n")

	engine := New(layout, 2, "python3")
	plugin := systemPlugin(t, dir, "run.sh")
	action := models.ActionSpec{Name: "greet", Type: models.ActionTypeProcess, Script: "run.sh"}

	result := engine.Execute(context.Background(), plugin, action, nil, Context{ExecutionID: "e1"}, nil)
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Output != "hello" {
		t.Errorf("expected unwrapped string output, got %#v", result.Output)
	}
}

func TestEngine_ExecuteProcess_NonZeroExit(t *testing.T) {
	layout := newTestLayout(t)
	dir := filepath.Join(t.TempDir(), "plugin")
	writeScript(t, dir, "run.sh", "#!/bin/sh\necho 'boom' 1>&2\nexit 1\n")

	engine := New(layout, 2, "python3")
	plugin := systemPlugin(t, dir, "run.sh")
	action := models.ActionSpec{Name: "fails", Type: models.ActionTypeProcess, Script: "run.sh"}

	result := engine.Execute(context.Background(), plugin, action, nil, Context{}, nil)
	if result.Status != StatusError {
		t.Fatalf("expected error status, got %+v", result)
	}
	if result.Error == "" {
		t.Error("expected a non-empty stderr-derived error message")
	}
}

func TestEngine_ExecuteProcess_ForwardsProgressAndMatch(t *testing.T) {
	layout := newTestLayout(t)
	dir := filepath.Join(t.TempDir(), "plugin")
	script := "#!/bin/sh\n" +
		"echo '{\"status\": \"progress\", \"scanned\": 1}'\n" +
		"echo '{\"status\": \"progress\", \"scanned\": 2}'\n" +
		"echo '{\"status\": \"match\", \"file\": \"a.txt\"}'\n" +
		"echo '{\"output\": \"done\"}'\n"
	writeScript(t, dir, "run.sh", script)

	engine := New(layout, 2, "python3")
	plugin := systemPlugin(t, dir, "run.sh")
	action := models.ActionSpec{Name: "scan", Type: models.ActionTypeProcess, Script: "run.sh"}

	var progressEvents []map[string]any
	result := engine.Execute(context.Background(), plugin, action, nil, Context{}, func(ev map[string]any) {
		progressEvents = append(progressEvents, ev)
	})
	if result.Status != StatusSuccess || result.Output != "done" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(progressEvents) != 3 {
		t.Fatalf("expected 3 progress/match events, got %d: %+v", len(progressEvents), progressEvents)
	}
}

func TestEngine_Cancel_KillsLongRunningChild(t *testing.T) {
	layout := newTestLayout(t)
	dir := filepath.Join(t.TempDir(), "plugin")
	writeScript(t, dir, "run.sh", "#!/bin/sh\necho '{\"status\": \"progress\", \"n\": 1}'\nsleep 30\necho '{\"output\": \"too late\"}'\n")

	engine := New(layout, 2, "python3")
	plugin := systemPlugin(t, dir, "run.sh")
	action := models.ActionSpec{Name: "slow", Type: models.ActionTypeProcess, Script: "run.sh"}

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- engine.Execute(context.Background(), plugin, action, nil, Context{ExecutionID: "exec-1"}, func(map[string]any) {})
	}()

	// Give the child a moment to start and emit its progress line before killing it.
	time.Sleep(200 * time.Millisecond)
	if ok := engine.Cancel("exec-1"); !ok {
		t.Fatal("expected Cancel to find the active execution")
	}

	select {
	case result := <-resultCh:
		if result.Status != StatusError || result.Error != "cancelled" {
			t.Fatalf("expected cancelled error result, got %+v", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancelled execution to return")
	}
}

func TestEngine_Cancel_UnknownExecutionID(t *testing.T) {
	engine := New(newTestLayout(t), 2, "python3")
	if engine.Cancel("does-not-exist") {
		t.Error("expected Cancel on an unknown id to report false")
	}
}

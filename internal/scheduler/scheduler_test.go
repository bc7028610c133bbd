package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/config"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/execengine"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/registry"
)

func newTestLayout(t *testing.T) config.Layout {
	t.Helper()
	return config.Config{StorageRoot: t.TempDir()}.NewLayout()
}

// writeEchoPlugin installs a "process"-type plugin whose script writes a
// JSON result line to stdout, incrementing a counter file each run so
// tests can assert fire-count.
func writeEchoPlugin(t *testing.T, layout config.Layout, counterPath string) {
	t.Helper()
	dir := filepath.Join(layout.SystemPluginsDir(), "ticker")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := map[string]any{
		"id": "ticker", "name": "Ticker", "version": "1.0.0",
		"actions": []map[string]any{
			{"name": "tick", "type": "process", "script": "run.sh", "trigger": "manual"},
		},
	}
	raw, _ := json.Marshal(manifest)
	if err := os.WriteFile(filepath.Join(dir, registry.ManifestFilename), raw, 0o644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\necho -n x >> " + counterPath + "\necho '{\"output\": \"ok\"}'\n"
	scriptPath := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestScheduler_RunDue_FiresOncePerMinute(t *testing.T) {
	layout := newTestLayout(t)
	counter := filepath.Join(t.TempDir(), "counter")
	writeEchoPlugin(t, layout, counter)

	reg := registry.New(layout, nil)
	if err := reg.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}
	engine := execengine.New(layout, 2, "python3")

	store, err := OpenTaskStore(layout.TasksFile())
	if err != nil {
		t.Fatalf("open task store: %v", err)
	}
	task, err := store.Create("tick every 5", "tick", "*/5 * * * *", "", nil)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	clockTime := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	sched := New(store, reg, engine, WithNow(func() time.Time { return clockTime }))

	fired := sched.RunDue(context.Background())
	if fired != 1 {
		t.Fatalf("expected 1 fire at 12:05, got %d", fired)
	}

	// Same minute: ticking again must not double-fire (spec §8 S6).
	fired = sched.RunDue(context.Background())
	if fired != 0 {
		t.Fatalf("expected 0 fires on second tick within same minute, got %d", fired)
	}

	got, err := os.ReadFile(counter)
	if err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	if string(got) != "x" {
		t.Errorf("expected plugin to have run exactly once, counter=%q", got)
	}

	updated, ok := store.Get(task.ID)
	if !ok {
		t.Fatal("expected task to still exist")
	}
	if updated.LastRun == nil || !updated.LastRun.Equal(clockTime) {
		t.Errorf("expected LastRun to be stamped %v, got %v", clockTime, updated.LastRun)
	}

	// Next clock minute: schedule doesn't match 12:06 for */5, no fire.
	clockTime = time.Date(2026, 1, 1, 12, 6, 0, 0, time.UTC)
	fired = sched.RunDue(context.Background())
	if fired != 0 {
		t.Errorf("expected 0 fires at 12:06 for */5 schedule, got %d", fired)
	}

	// 12:10 matches again.
	clockTime = time.Date(2026, 1, 1, 12, 10, 0, 0, time.UTC)
	fired = sched.RunDue(context.Background())
	if fired != 1 {
		t.Errorf("expected 1 fire at 12:10, got %d", fired)
	}
}

func TestScheduler_RunTask_BypassesSchedule(t *testing.T) {
	layout := newTestLayout(t)
	counter := filepath.Join(t.TempDir(), "counter")
	writeEchoPlugin(t, layout, counter)

	reg := registry.New(layout, nil)
	if err := reg.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}
	engine := execengine.New(layout, 2, "python3")

	store, err := OpenTaskStore(layout.TasksFile())
	if err != nil {
		t.Fatalf("open task store: %v", err)
	}
	// No schedule: manual-only task.
	task, err := store.Create("manual tick", "tick", "", "", nil)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	sched := New(store, reg, engine)
	result, err := sched.RunTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("run task: %v", err)
	}
	if result.Status != execengine.StatusSuccess {
		t.Errorf("expected success, got %+v", result)
	}

	got, err := os.ReadFile(counter)
	if err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	if string(got) != "x" {
		t.Errorf("expected manual run to execute once, counter=%q", got)
	}
}

func TestScheduler_SkipsPausedTasks(t *testing.T) {
	layout := newTestLayout(t)
	counter := filepath.Join(t.TempDir(), "counter")
	writeEchoPlugin(t, layout, counter)

	reg := registry.New(layout, nil)
	if err := reg.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}
	engine := execengine.New(layout, 2, "python3")

	store, err := OpenTaskStore(layout.TasksFile())
	if err != nil {
		t.Fatalf("open task store: %v", err)
	}
	task, err := store.Create("paused", "tick", "* * * * *", "", nil)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := store.SetStatus(task.ID, "paused"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	sched := New(store, reg, engine, WithNow(func() time.Time {
		return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}))
	if fired := sched.RunDue(context.Background()); fired != 0 {
		t.Errorf("expected paused task not to fire, got %d fires", fired)
	}
}

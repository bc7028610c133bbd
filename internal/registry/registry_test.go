package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/config"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

func writeManifest(t *testing.T, dir string, manifest map[string]any) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFilename), raw, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newLayout(t *testing.T) config.Layout {
	t.Helper()
	root := t.TempDir()
	return config.Config{StorageRoot: root}.NewLayout()
}

func TestScanLoadsValidManifest(t *testing.T) {
	layout := newLayout(t)
	writeManifest(t, filepath.Join(layout.SystemPluginsDir(), "weather"), map[string]any{
		"id": "weather", "name": "Weather", "version": "1.0.0",
		"actions": []map[string]any{
			{"name": "get_weather", "type": "python", "trigger": "manual",
				"parameters": map[string]string{"city": "string"}},
		},
	})

	r := New(layout, nil)
	if err := r.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}

	spec, plugin, ok := r.GetAction("get_weather")
	if !ok {
		t.Fatal("expected get_weather to be registered")
	}
	if plugin.Manifest.ID != "weather" {
		t.Fatalf("unexpected owning plugin: %+v", plugin)
	}
	if len(spec.ParametersOrder) != 1 || spec.ParametersOrder[0] != "city" {
		t.Fatalf("expected parameter order [city], got %v", spec.ParametersOrder)
	}
}

func TestScanSkipsInvalidManifest(t *testing.T) {
	layout := newLayout(t)
	writeManifest(t, filepath.Join(layout.SystemPluginsDir(), "broken"), map[string]any{
		"id": "broken", "name": "Broken",
		// missing version and actions
	})

	r := New(layout, nil)
	if err := r.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, ok := r.GetPlugin("broken"); ok {
		t.Fatal("invalid manifest should not be registered")
	}
}

func TestDuplicatePluginIDRejected(t *testing.T) {
	layout := newLayout(t)
	writeManifest(t, filepath.Join(layout.SystemPluginsDir(), "first"), map[string]any{
		"id": "dup", "name": "First", "version": "1.0.0", "actions": []map[string]any{
			{"name": "action_one", "type": "python", "trigger": "manual"},
		},
	})
	writeManifest(t, filepath.Join(layout.SystemPluginsDir(), "second"), map[string]any{
		"id": "dup", "name": "Second", "version": "1.0.0", "actions": []map[string]any{
			{"name": "action_two", "type": "python", "trigger": "manual"},
		},
	})

	r := New(layout, nil)
	if err := r.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}

	// Exactly one of the two should have won; the loser's action must not
	// shadow the winner's plugin identity.
	_, plugin, ok := r.GetAction("action_one")
	if !ok {
		_, plugin, ok = r.GetAction("action_two")
	}
	if !ok {
		t.Fatal("expected exactly one duplicate-id plugin to register")
	}
	if plugin.Manifest.ID != "dup" {
		t.Fatalf("unexpected plugin id: %s", plugin.Manifest.ID)
	}
	countActions := 0
	for _, a := range r.GetAllActions() {
		if a.Name == "action_one" || a.Name == "action_two" {
			countActions++
		}
	}
	if countActions != 1 {
		t.Fatalf("expected exactly one action registered from the duplicate-id pair, got %d", countActions)
	}
}

func TestDuplicateActionNameShadowsByLoadOrder(t *testing.T) {
	layout := newLayout(t)
	writeManifest(t, filepath.Join(layout.SystemPluginsDir(), "plugin_a"), map[string]any{
		"id": "plugin_a", "name": "A", "version": "1.0.0", "actions": []map[string]any{
			{"name": "shared_action", "type": "python", "trigger": "manual"},
		},
	})
	writeManifest(t, filepath.Join(layout.SystemPluginsDir(), "plugin_b"), map[string]any{
		"id": "plugin_b", "name": "B", "version": "1.0.0", "actions": []map[string]any{
			{"name": "shared_action", "type": "python", "trigger": "manual"},
		},
	})

	r := New(layout, nil)
	if err := r.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}

	_, plugin, ok := r.GetAction("shared_action")
	if !ok {
		t.Fatal("expected shared_action to be registered by one of the plugins")
	}
	if plugin.Manifest.ID != "plugin_a" && plugin.Manifest.ID != "plugin_b" {
		t.Fatalf("unexpected owner: %s", plugin.Manifest.ID)
	}
}

func TestValidateArgsEnforcesDeclaredParameters(t *testing.T) {
	layout := newLayout(t)
	writeManifest(t, filepath.Join(layout.SystemPluginsDir(), "search"), map[string]any{
		"id": "search", "name": "Search", "version": "1.0.0", "actions": []map[string]any{
			{"name": "web_search", "type": "python", "trigger": "manual",
				"parameters": map[string]string{"query": "string"}},
		},
	})

	r := New(layout, nil)
	if err := r.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if err := r.ValidateArgs("web_search", map[string]any{"query": "go modules"}); err != nil {
		t.Fatalf("expected valid args to pass: %v", err)
	}
	if err := r.ValidateArgs("web_search", map[string]any{}); err == nil {
		t.Fatal("expected missing required parameter to fail validation")
	}
}

func TestGetAllActionsExcludesDeletedPlugin(t *testing.T) {
	layout := newLayout(t)
	writeManifest(t, filepath.Join(layout.SystemPluginsDir(), "temp"), map[string]any{
		"id": "temp", "name": "Temp", "version": "1.0.0", "actions": []map[string]any{
			{"name": "temp_action", "type": "python", "trigger": "manual"},
		},
	})

	r := New(layout, nil)
	if err := r.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := r.Delete("temp"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, ok := r.GetAction("temp_action"); ok {
		t.Fatal("expected action to be purged after plugin deletion")
	}
	if _, err := os.Stat(filepath.Join(layout.SystemPluginsDir(), "temp")); !os.IsNotExist(err) {
		t.Fatal("expected plugin directory to be removed from disk")
	}
}

func TestPreRequestActionsAreRetrievable(t *testing.T) {
	layout := newLayout(t)
	writeManifest(t, filepath.Join(layout.SystemPluginsDir(), "sysinfo"), map[string]any{
		"id": "sysinfo", "name": "System Info", "version": "1.0.0", "actions": []map[string]any{
			{"name": "system_info", "type": "process", "trigger": "pre_request"},
		},
	})

	r := New(layout, nil)
	if err := r.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}
	spec, _, ok := r.GetAction("system_info")
	if !ok {
		t.Fatal("expected pre_request action to be registered")
	}
	if spec.Trigger != models.TriggerPreRequest {
		t.Fatalf("unexpected trigger: %s", spec.Trigger)
	}
}

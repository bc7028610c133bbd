package packager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/registry"
)

func writeTestPlugin(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := map[string]any{
		"id": "weather", "name": "Weather", "version": "1.0.0",
		"actions": []map[string]any{
			{"name": "get_weather", "type": "python", "trigger": "manual"},
		},
	}
	raw, _ := json.Marshal(manifest)
	if err := os.WriteFile(filepath.Join(dir, registry.ManifestFilename), raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "__pycache__"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "__pycache__", "main.cpython.pyc"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPackThenInstallRoundTrips(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "source", "weather")
	writeTestPlugin(t, pluginDir)

	gplugPath, err := Pack(pluginDir, "", time.Now())
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if _, err := os.Stat(gplugPath); err != nil {
		t.Fatalf("expected archive to exist: %v", err)
	}

	// The source manifest must now carry the integrity block (pack_plugin's
	// write-back side effect).
	raw, err := os.ReadFile(filepath.Join(pluginDir, registry.ManifestFilename))
	if err != nil {
		t.Fatal(err)
	}
	var signed struct {
		Integrity *struct{ SHA256 string `json:"sha256"` } `json:"integrity"`
	}
	if err := json.Unmarshal(raw, &signed); err != nil {
		t.Fatal(err)
	}
	if signed.Integrity == nil || signed.Integrity.SHA256 == "" {
		t.Fatal("expected source manifest.json to be signed in place")
	}

	targetDir := filepath.Join(root, "installed")
	manifest, err := Install(gplugPath, targetDir, false)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if manifest.ID != "weather" {
		t.Fatalf("unexpected installed manifest id: %s", manifest.ID)
	}

	liveDir := filepath.Join(targetDir, "weather")
	if _, err := os.Stat(filepath.Join(liveDir, "main.py")); err != nil {
		t.Fatalf("expected main.py in installed plugin: %v", err)
	}
	if _, err := os.Stat(filepath.Join(liveDir, "__pycache__")); !os.IsNotExist(err) {
		t.Fatal("expected __pycache__ to be excluded from the archive")
	}
}

func TestInstallRejectsTamperedIntegrity(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "source", "weather")
	writeTestPlugin(t, pluginDir)

	gplugPath, err := Pack(pluginDir, "", time.Now())
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	// Change the source manifest's description and re-pack over the same
	// path, then overwrite the signed hash and re-zip the directory without
	// re-signing, simulating a tampered archive whose manifest content no
	// longer matches its declared integrity hash.
	manifestPath := filepath.Join(pluginDir, registry.ManifestFilename)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatal(err)
	}
	generic["description"] = "tampered after signing, hash now stale"
	tampered, _ := json.Marshal(generic)
	if err := os.WriteFile(manifestPath, tampered, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Pack(pluginDir, gplugPath, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("re-pack: %v", err)
	}
	// Manually corrupt the integrity hash post-signing so it no longer
	// matches the manifest content, without re-signing.
	raw, err = os.ReadFile(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatal(err)
	}
	integrity, _ := generic["integrity"].(map[string]any)
	integrity["sha256"] = "0000000000000000000000000000000000000000000000000000000000000000"
	tampered, _ = json.Marshal(generic)
	if err := os.WriteFile(manifestPath, tampered, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := zipDirectory(pluginDir, gplugPath); err != nil {
		t.Fatalf("re-zip: %v", err)
	}

	targetDir := filepath.Join(root, "installed")
	if _, err := Install(gplugPath, targetDir, false); err == nil {
		t.Fatal("expected install to reject a manifest whose hash was corrupted post-signing")
	}
	if _, err := os.Stat(filepath.Join(targetDir, "weather")); !os.IsNotExist(err) {
		t.Fatal("expected no residue at the target path after a rejected install")
	}
}

func TestInstallRejectsNonZipArchive(t *testing.T) {
	root := t.TempDir()
	fake := filepath.Join(root, "not-a-zip.gplug")
	if err := os.WriteFile(fake, []byte("not a zip file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Install(fake, filepath.Join(root, "installed"), true); err == nil {
		t.Fatal("expected install to reject a non-zip archive")
	}
}

package packager

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/registry"
)

// excludedDirs are never walked into when packing, matching gplug.py's
// pack_plugin plus a generalisation to skip macOS .DS_Store junk.
var excludedDirs = map[string]bool{
	"__pycache__": true, ".venv": true, "venv": true, ".git": true,
}

func excludedFile(name string) bool {
	return strings.HasSuffix(name, ".pyc") || name == ".DS_Store"
}

// Pack archives pluginDir into a .gplug (zip) file at outputPath, after
// signing pluginDir/manifest.json in place with a fresh integrity block.
// The in-place rewrite mirrors pack_plugin's side effect of persisting the
// signature back to the live plugin directory, not just the archive.
func Pack(pluginDir, outputPath string, now time.Time) (string, error) {
	manifestPath := filepath.Join(pluginDir, registry.ManifestFilename)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", fmt.Errorf("reading manifest: %w", err)
	}
	var manifest models.PluginManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}

	signed, err := SignManifest(manifest, now)
	if err != nil {
		return "", fmt.Errorf("signing manifest: %w", err)
	}

	signedRaw, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding signed manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, signedRaw, 0o644); err != nil {
		return "", fmt.Errorf("writing signed manifest: %w", err)
	}

	if outputPath == "" {
		id := signed.ID
		if id == "" {
			id = filepath.Base(pluginDir)
		}
		outputPath = filepath.Join(filepath.Dir(pluginDir), id+".gplug")
	}

	if err := zipDirectory(pluginDir, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

func zipDirectory(srcDir, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	err = filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] && path != srcDir {
				return filepath.SkipDir
			}
			return nil
		}
		if excludedFile(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("computing archive path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		w, err := zw.Create(rel)
		if err != nil {
			return fmt.Errorf("adding %s to archive: %w", rel, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return fmt.Errorf("writing %s to archive: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("packing %s: %w", srcDir, err)
	}
	return nil
}

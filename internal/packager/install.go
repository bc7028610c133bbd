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

// Install unpacks gplugPath into targetDir/<manifest id>, verifying
// integrity unless skipVerify is set, and atomically activates it using
// the stage/backup/rollback pattern. On any failure (bad archive, missing
// manifest, integrity mismatch, or activation failure) no files are left
// at the target path, matching spec §8 scenario S5.
func Install(gplugPath, targetDir string, skipVerify bool) (models.PluginManifest, error) {
	manifest, stagedDir, cleanupStaged, err := stageFromArchive(gplugPath, skipVerify)
	if cleanupStaged != nil {
		defer cleanupStaged()
	}
	if err != nil {
		return models.PluginManifest{}, err
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return models.PluginManifest{}, fmt.Errorf("creating plugin target directory: %w", err)
	}
	liveDir := filepath.Join(targetDir, manifest.ID)

	backupPath, _, err := stageInstall(stagedDir, liveDir, os.Rename)
	if err != nil {
		return models.PluginManifest{}, fmt.Errorf("activating plugin: %w", err)
	}
	cleanupStaged = nil // the deferred cleanup still runs, but stagedDir has been renamed to liveDir so it removes nothing

	if backupPath != "" {
		// Best effort: the new install is already live; a stray backup
		// directory is harmless clutter the next install will overwrite.
		os.RemoveAll(backupPath)
	}

	return manifest, nil
}

// Rollback restores backupPath into liveDir when hadExisting is set, and
// otherwise removes liveDir. Install deletes its own backup after a
// successful activation and does not return its path.
func Rollback(liveDir, backupPath string, hadExisting bool) error {
	return rollbackInstall(liveDir, backupPath, hadExisting)
}

// stageFromArchive extracts and validates gplugPath into a fresh temp
// directory, returning the parsed manifest and that directory's path. The
// returned cleanup func removes the temp directory; once stageInstall has
// renamed that directory into place, calling it removes nothing.
func stageFromArchive(gplugPath string, skipVerify bool) (models.PluginManifest, string, func(), error) {
	if _, err := os.Stat(gplugPath); err != nil {
		return models.PluginManifest{}, "", nil, fmt.Errorf("archive not found: %w", err)
	}

	zr, err := zip.OpenReader(gplugPath)
	if err != nil {
		return models.PluginManifest{}, "", nil, fmt.Errorf("invalid .gplug (not a zip archive): %w", err)
	}
	defer zr.Close()

	tempDir, err := os.MkdirTemp("", "gplug-install-*")
	if err != nil {
		return models.PluginManifest{}, "", nil, fmt.Errorf("creating staging directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(tempDir) }

	if err := extractZip(&zr.Reader, tempDir); err != nil {
		cleanup()
		return models.PluginManifest{}, "", nil, err
	}

	manifestPath := filepath.Join(tempDir, registry.ManifestFilename)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		cleanup()
		return models.PluginManifest{}, "", nil, fmt.Errorf("invalid .gplug: no manifest.json found")
	}
	var manifest models.PluginManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		cleanup()
		return models.PluginManifest{}, "", nil, fmt.Errorf("invalid manifest.json: %w", err)
	}
	if manifest.ID == "" {
		cleanup()
		return models.PluginManifest{}, "", nil, fmt.Errorf("invalid manifest.json: missing id")
	}

	if !skipVerify {
		if valid, message := VerifyManifest(manifest); !valid {
			cleanup()
			return models.PluginManifest{}, "", nil, fmt.Errorf("integrity check failed: %s", message)
		}
	}

	return manifest, tempDir, cleanup, nil
}

// extractZip extracts a zip archive's contents into destDir, rejecting any
// entry whose cleaned path would escape destDir (zip-slip), grounded on
// the teacher repository's internal/marketplace/installer.go extractZip.
func extractZip(zr *zip.Reader, destDir string) error {
	for _, f := range zr.File {
		target := filepath.Join(destDir, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, destDir+string(os.PathSeparator)) && target != destDir {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", target, err)
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0o600)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return nil
}

// stageInstall atomically activates a staged plugin directory at liveDir,
// backing up any existing directory there first and rolling the backup
// back into place if activation fails. Ported from the teacher repository's
// internal/marketplace/installer.go stageInstall.
func stageInstall(tempDir, liveDir string, renameFn func(string, string) error) (string, bool, error) {
	info, err := os.Stat(liveDir)
	hasLive := false
	if err == nil {
		if !info.IsDir() {
			return "", true, fmt.Errorf("live path is not a directory: %s", liveDir)
		}
		hasLive = true
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("stat live path: %w", err)
	}

	var backupPath string
	if hasLive {
		backupPath = fmt.Sprintf("%s.bak-%s", liveDir, time.Now().Format("20060102-150405"))
		if err := renameFn(liveDir, backupPath); err != nil {
			return "", true, fmt.Errorf("backup existing plugin: %w", err)
		}
	}

	if err := renameFn(tempDir, liveDir); err != nil {
		if hasLive && backupPath != "" {
			if rbErr := renameFn(backupPath, liveDir); rbErr != nil {
				return backupPath, hasLive, fmt.Errorf("activate plugin failed: %w; rollback failed: %v", err, rbErr)
			}
		}
		return backupPath, hasLive, fmt.Errorf("activate plugin failed: %w", err)
	}

	return backupPath, hasLive, nil
}

// rollbackInstall restores liveDir to its pre-install state, used by
// callers that activate a plugin directory and then fail a later step
// (e.g. registry registration) that must undo the activation.
func rollbackInstall(liveDir, backupPath string, hadExisting bool) error {
	if hadExisting && backupPath != "" {
		failedPath := fmt.Sprintf("%s.failed-%s", liveDir, time.Now().Format("20060102-150405"))
		if err := os.Rename(liveDir, failedPath); err != nil {
			return fmt.Errorf("move failed install: %w", err)
		}
		if err := os.Rename(backupPath, liveDir); err != nil {
			return fmt.Errorf("restore backup: %w", err)
		}
		if err := os.RemoveAll(failedPath); err != nil {
			return fmt.Errorf("cleanup failed install: %w", err)
		}
		return nil
	}
	return os.RemoveAll(liveDir)
}

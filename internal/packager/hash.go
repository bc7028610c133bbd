// Package packager implements the Plugin Packager half of spec §4.6:
// .gplug archive creation, canonical-hash self-integrity, and atomic
// install/uninstall. Grounded on the original implementation's
// modules/actions/gplug.py for the canonical hash procedure and the
// lenient-on-absent integrity verification, and on the teacher
// repository's internal/marketplace/installer.go for the atomic
// staging+backup+rollback activation pattern.
package packager

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// canonicalManifestHash ports calculate_manifest_hash: marshal the
// manifest (minus its integrity block) to JSON with sorted keys and
// minimal separators, then SHA-256 the UTF-8 bytes. encoding/json already
// sorts map[string]any keys, so the manifest is round-tripped through a
// generic map to get Python's sort_keys=True behavior for free.
func canonicalManifestHash(manifest models.PluginManifest) (string, error) {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("decoding manifest to generic map: %w", err)
	}
	delete(generic, "integrity")

	// encoding/json already marshals map[string]any with alphabetically
	// sorted keys and no extraneous whitespace, matching Python's
	// json.dumps(sort_keys=True, separators=(',', ':')); disable HTML
	// escaping so punctuation in descriptions hashes the same way Python's
	// json.dumps would produce it.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return "", fmt.Errorf("canonicalizing manifest: %w", err)
	}
	canonical := bytes.TrimRight(buf.Bytes(), "\n")

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// SignManifest computes and attaches an integrity block, mirroring
// sign_manifest.
func SignManifest(manifest models.PluginManifest, now time.Time) (models.PluginManifest, error) {
	manifest.Integrity = nil
	hash, err := canonicalManifestHash(manifest)
	if err != nil {
		return models.PluginManifest{}, err
	}
	manifest.Integrity = &models.Integrity{SHA256: hash, SignedAt: now}
	return manifest, nil
}

// VerifyManifest ports verify_manifest's three-way outcome: valid with no
// integrity block present (unsigned plugin, trusted by default), invalid
// when the block is present but malformed, or a hash comparison otherwise.
func VerifyManifest(manifest models.PluginManifest) (bool, string) {
	if manifest.Integrity == nil {
		return true, "No integrity lock (unverified plugin)"
	}
	if manifest.Integrity.SHA256 == "" {
		return false, "Invalid integrity block: missing sha256"
	}

	stored := manifest.Integrity.SHA256
	calculated, err := canonicalManifestHash(manifest)
	if err != nil {
		return false, fmt.Sprintf("Integrity check error: %v", err)
	}
	if calculated == stored {
		return true, "Integrity verified"
	}

	truncate := func(s string) string {
		if len(s) > 16 {
			return s[:16]
		}
		return s
	}
	return false, fmt.Sprintf("Integrity mismatch: expected %s..., got %s...", truncate(stored), truncate(calculated))
}

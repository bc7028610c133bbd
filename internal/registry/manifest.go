package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// ManifestFilename is the only manifest filename recognised, matching the
// original implementation's modules/actions/registry.py _scan_dir.
const ManifestFilename = "manifest.json"

// ErrPathTraversal is returned when a plugin directory name resolves
// outside the scanned root.
var ErrPathTraversal = fmt.Errorf("registry: path traversal detected")

// validatePluginPath cleans and resolves a plugin directory path, rejecting
// any path whose cleaned form still contains a ".." segment. Grounded on
// the teacher's internal/plugins/discovery.go ValidatePluginPath.
func validatePluginPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("registry: empty plugin path")
	}
	cleaned := filepath.Clean(path)
	if containsDotDot(cleaned) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("registry: resolving plugin path: %w", err)
	}
	if containsDotDot(abs) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, abs)
	}
	return abs, nil
}

func containsDotDot(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// validateManifestFields mirrors _validate_manifest's ["id", "name",
// "version", "actions"] check.
func validateManifestFields(raw map[string]any) error {
	for _, field := range []string{"id", "name", "version", "actions"} {
		if _, ok := raw[field]; !ok {
			return fmt.Errorf("registry: manifest missing required field %q", field)
		}
	}
	return nil
}

// loadManifest reads and decodes the manifest at pluginDir/manifest.json,
// validating required fields and recovering parameter declaration order
// (lost by map[string]string unmarshalling) from the raw JSON.
func loadManifest(pluginDir string) (models.PluginManifest, error) {
	manifestPath := filepath.Join(pluginDir, ManifestFilename)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return models.PluginManifest{}, fmt.Errorf("reading manifest: %w", err)
	}

	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return models.PluginManifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := validateManifestFields(loose); err != nil {
		return models.PluginManifest{}, err
	}

	var manifest models.PluginManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return models.PluginManifest{}, fmt.Errorf("decoding manifest: %w", err)
	}

	var withRawActions struct {
		Actions []json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(raw, &withRawActions); err == nil {
		for i := range manifest.Actions {
			if i >= len(withRawActions.Actions) {
				break
			}
			manifest.Actions[i].ParametersOrder = orderedParameterKeys(withRawActions.Actions[i])
		}
	}

	return manifest, nil
}

// orderedParameterKeys walks an action's raw JSON object with a streaming
// token decoder to recover the declaration order of its "parameters"
// object, which a plain map[string]string unmarshal would discard.
func orderedParameterKeys(actionRaw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(actionRaw))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := keyTok.(string)
		valTok, err := dec.Token()
		if err != nil {
			return nil
		}
		if key != "parameters" {
			if err := skipJSONValue(dec, valTok); err != nil {
				return nil
			}
			continue
		}
		d, ok := valTok.(json.Delim)
		if !ok || d != '{' {
			skipJSONValue(dec, valTok)
			return nil
		}
		var order []string
		for dec.More() {
			pk, err := dec.Token()
			if err != nil {
				return order
			}
			pkey, _ := pk.(string)
			order = append(order, pkey)
			pv, err := dec.Token()
			if err != nil {
				return order
			}
			if err := skipJSONValue(dec, pv); err != nil {
				return order
			}
		}
		dec.Token() // consume closing '}'
		return order
	}
	return nil
}

// skipJSONValue consumes the remainder of a JSON value whose first token
// has already been read, advancing dec past nested objects/arrays.
func skipJSONValue(dec *json.Decoder, tok json.Token) error {
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		next, err := dec.Token()
		if err != nil {
			return err
		}
		if nd, ok := next.(json.Delim); ok {
			switch nd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ActionRequest is a normalised {name, args} tool-call request, per spec
// §4.1.4. Unknown keys in args are preserved verbatim.
type ActionRequest struct {
	Name string
	Args map[string]any
}

// NormalizeActions implements spec §4.1.4's normalisation of a parsed
// {"actions": [...]} object into a slice of ActionRequest. Each entry's
// "parameters" may be a mapping (name->value) or an ordered list of
// {"name":..., "value":...} records; both forms normalise to a map.
func NormalizeActions(parsed map[string]any) ([]ActionRequest, bool) {
	raw, ok := parsed["actions"]
	if !ok {
		return nil, false
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}

	requests := make([]ActionRequest, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		if name == "" {
			continue
		}
		requests = append(requests, ActionRequest{
			Name: name,
			Args: normalizeParameters(entry["parameters"]),
		})
	}
	if len(requests) == 0 {
		return nil, false
	}
	return requests, true
}

// normalizeParameters collapses either a {name: value} mapping or a
// [{"name":..., "value":...}, ...] list into a single args map.
func normalizeParameters(raw any) map[string]any {
	args := make(map[string]any)
	switch v := raw.(type) {
	case map[string]any:
		for k, val := range v {
			args[k] = val
		}
	case []any:
		for _, item := range v {
			rec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := rec["name"].(string)
			if name == "" {
				continue
			}
			args[name] = rec["value"]
		}
	}
	return args
}

// legacyActionPattern matches the older square-bracket tool-call syntax,
// [ACTION: name, {args}], which may appear in chat histories written
// before the orchestration core emitted only JSON (spec §4.1.4, §9 open
// question: resume must tolerate both forms).
var legacyActionPattern = regexp.MustCompile(`(?s)\[ACTION:\s*([a-zA-Z0-9_\-]+)\s*,\s*(\{.*?\})\s*\]`)

// ParseLegacyActions extracts every legacy-syntax action request from
// text. It never errors: a malformed {args} blob is skipped, matching the
// "tolerant, reject silently" posture spec §9 prescribes for the JSON
// extraction pipeline as a whole.
func ParseLegacyActions(text string) []ActionRequest {
	matches := legacyActionPattern.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}
	requests := make([]ActionRequest, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		var args map[string]any
		if err := json.Unmarshal([]byte(m[2]), &args); err != nil {
			args = map[string]any{}
		}
		requests = append(requests, ActionRequest{Name: name, Args: args})
	}
	return requests
}

// ExtractActionRequests applies the JSON Extraction Procedure followed by
// §4.1.4 normalisation, falling back to the legacy bracket syntax when no
// JSON actions object is found. This is the single entry point both the
// generation branch (step 10) and the resume branch (step 8) use.
func ExtractActionRequests(text string) []ActionRequest {
	if parsed, ok := ExtractJSON(text); ok {
		if requests, ok := NormalizeActions(parsed); ok {
			return requests
		}
	}
	return ParseLegacyActions(text)
}

package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ExtractJSON implements the JSON Extraction Procedure of spec §4.1.3:
// an ordered set of strategies against arbitrary model output that may
// contain a JSON object, first match wins. Grounded on the ordered-
// fallback structure spec.md itself prescribes (§9 design note); no
// direct teacher analogue exists since the teacher's tool-call protocol
// is a typed provider field, not text to be mined.
func ExtractJSON(text string) (map[string]any, bool) {
	if obj, ok := extractFencedJSON(text); ok {
		return obj, true
	}
	if obj, ok := extractFirstBalancedBraces(text); ok {
		return obj, true
	}
	if obj, ok := parseObject(text); ok {
		return obj, true
	}
	if obj, ok := parseObject(heuristicRepair(text)); ok {
		return obj, true
	}
	if obj, ok := walkBraceDepth(text); ok {
		return obj, true
	}
	return nil, false
}

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// extractFencedJSON implements step (a): a fenced ```json code block.
func extractFencedJSON(text string) (map[string]any, bool) {
	m := fencedJSONPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return parseObject(m[1])
}

// extractFirstBalancedBraces implements step (b): the first regex-located
// outermost {...} span, scanning for balanced braces starting at the
// first '{'.
func extractFirstBalancedBraces(text string) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return parseObject(text[start : i+1])
			}
		}
	}
	return nil, false
}

// parseObject implements step (c): a full-text parse attempt.
func parseObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// heuristicRepair implements step (d): a narrow repair pass for the
// common double-brace wrapping mistake models make.
func heuristicRepair(text string) string {
	text = strings.ReplaceAll(text, "{ {", "{")
	text = strings.ReplaceAll(text, "} }", "}")
	return text
}

// walkBraceDepth implements step (e), the final fallback: walk the text
// character by character tracking brace depth, and at every depth-0
// close, attempt to parse the substring since the preceding depth-0 open;
// return the first successful parse.
func walkBraceDepth(text string) (map[string]any, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					if obj, ok := parseObject(text[start : i+1]); ok {
						return obj, true
					}
					start = -1
				}
			}
		}
	}
	return nil, false
}

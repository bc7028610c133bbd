package orchestrator

import "testing"

func TestNormalizeActions_ParametersAsMapping(t *testing.T) {
	parsed := map[string]any{
		"actions": []any{
			map[string]any{"name": "search", "parameters": map[string]any{"query": "go channels"}},
		},
	}
	requests, ok := NormalizeActions(parsed)
	if !ok {
		t.Fatal("expected normalization to succeed")
	}
	if len(requests) != 1 || requests[0].Name != "search" {
		t.Fatalf("unexpected requests: %+v", requests)
	}
	if requests[0].Args["query"] != "go channels" {
		t.Errorf("expected query arg, got %+v", requests[0].Args)
	}
}

func TestNormalizeActions_ParametersAsNameValueList(t *testing.T) {
	parsed := map[string]any{
		"actions": []any{
			map[string]any{
				"name": "search",
				"parameters": []any{
					map[string]any{"name": "query", "value": "go channels"},
					map[string]any{"name": "limit", "value": float64(5)},
				},
			},
		},
	}
	requests, ok := NormalizeActions(parsed)
	if !ok {
		t.Fatal("expected normalization to succeed")
	}
	if requests[0].Args["query"] != "go channels" || requests[0].Args["limit"] != float64(5) {
		t.Errorf("unexpected args: %+v", requests[0].Args)
	}
}

func TestNormalizeActions_SkipsEntriesWithoutName(t *testing.T) {
	parsed := map[string]any{
		"actions": []any{
			map[string]any{"parameters": map[string]any{"x": 1}},
			map[string]any{"name": "valid"},
		},
	}
	requests, ok := NormalizeActions(parsed)
	if !ok {
		t.Fatal("expected normalization to succeed")
	}
	if len(requests) != 1 || requests[0].Name != "valid" {
		t.Fatalf("expected only the named entry to survive, got %+v", requests)
	}
}

func TestNormalizeActions_NoActionsKey(t *testing.T) {
	if _, ok := NormalizeActions(map[string]any{"message": "hi"}); ok {
		t.Error("expected normalization to report no actions present")
	}
}

func TestNormalizeActions_EmptyListFails(t *testing.T) {
	if _, ok := NormalizeActions(map[string]any{"actions": []any{}}); ok {
		t.Error("expected an empty actions list to report false")
	}
}

func TestParseLegacyActions(t *testing.T) {
	text := `Sure. [ACTION: say_hello, {"name": "World"}] and also [ACTION: ping, {}]`
	requests := ParseLegacyActions(text)
	if len(requests) != 2 {
		t.Fatalf("expected 2 legacy actions, got %d: %+v", len(requests), requests)
	}
	if requests[0].Name != "say_hello" || requests[0].Args["name"] != "World" {
		t.Errorf("unexpected first request: %+v", requests[0])
	}
	if requests[1].Name != "ping" {
		t.Errorf("unexpected second request: %+v", requests[1])
	}
}

func TestParseLegacyActions_MalformedArgsSkippedNotErrored(t *testing.T) {
	text := `[ACTION: broken, {not json}]`
	requests := ParseLegacyActions(text)
	if len(requests) != 1 {
		t.Fatalf("expected the action to still be recognized, got %+v", requests)
	}
	if requests[0].Args == nil || len(requests[0].Args) != 0 {
		t.Errorf("expected empty args map on malformed args, got %+v", requests[0].Args)
	}
}

func TestExtractActionRequests_PrefersJSONOverLegacy(t *testing.T) {
	text := `{"actions": [{"name": "from_json"}]}` + ` [ACTION: from_legacy, {}]`
	requests := ExtractActionRequests(text)
	if len(requests) != 1 || requests[0].Name != "from_json" {
		t.Fatalf("expected JSON actions to take precedence, got %+v", requests)
	}
}

func TestExtractActionRequests_FallsBackToLegacy(t *testing.T) {
	text := `No JSON here, just [ACTION: ping, {}]`
	requests := ExtractActionRequests(text)
	if len(requests) != 1 || requests[0].Name != "ping" {
		t.Fatalf("expected legacy fallback, got %+v", requests)
	}
}

func TestExtractActionRequests_NoActionsAtAll(t *testing.T) {
	requests := ExtractActionRequests(`{"message": "just a final answer"}`)
	if len(requests) != 0 {
		t.Errorf("expected no action requests, got %+v", requests)
	}
}

package prompt

import (
	"strings"
	"testing"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

func TestBuildSubstitutesBotIdentity(t *testing.T) {
	templates := Templates{
		GeneralChatPromptID: "You are [bot_name]. [bot_personality]\n\nContext history: [history]\n\n[actions]",
	}
	out := Build(templates, GeneralChatPromptID, nil, "", BotConfig{Name: "Nova", Personality: "curious"}, "")

	if !strings.Contains(out, "You are Nova. curious") {
		t.Fatalf("bot identity not substituted: %q", out)
	}
	if strings.Contains(out, "[history]") || strings.Contains(out, "Context history") {
		t.Fatalf("history placeholder not removed: %q", out)
	}
	if !strings.Contains(out, "No actions currently available.") {
		t.Fatalf("expected fallback actions text: %q", out)
	}
}

func TestBuildFallsBackToGeneralChat(t *testing.T) {
	templates := Templates{GeneralChatPromptID: "hello [bot_name]"}
	out := Build(templates, "unknown_id", nil, "", BotConfig{}, "")
	if out != "hello "+DefaultBotName {
		t.Fatalf("unexpected fallback result: %q", out)
	}
}

func TestBuildListsActionsExcludingPreRequest(t *testing.T) {
	templates := Templates{GeneralChatPromptID: "[actions]"}
	actions := []models.ActionSpec{
		{Name: "search_web", Description: "Search the web", Trigger: models.TriggerManual,
			Parameters: map[string]string{"query": "string"}, ParametersOrder: []string{"query"}},
		{Name: "system_info", Description: "runs automatically", Trigger: models.TriggerPreRequest},
	}
	out := Build(templates, GeneralChatPromptID, actions, "", BotConfig{}, "")

	if !strings.Contains(out, "**search_web**") {
		t.Fatalf("missing manual action: %q", out)
	}
	if strings.Contains(out, "system_info") {
		t.Fatalf("pre_request action should be excluded: %q", out)
	}
	if !strings.Contains(out, `"query": <string>`) {
		t.Fatalf("missing parameter rendering: %q", out)
	}
}

func TestBuildCollapsesBlankLinesAndStripsLowercaseTags(t *testing.T) {
	templates := Templates{GeneralChatPromptID: "line one\n\n\n\n[orphan_tag]\n\nline two"}
	out := Build(templates, GeneralChatPromptID, nil, "", BotConfig{}, "")
	if strings.Contains(out, "\n\n\n") {
		t.Fatalf("blank lines not collapsed: %q", out)
	}
	if strings.Contains(out, "[orphan_tag]") {
		t.Fatalf("lowercase tag not stripped: %q", out)
	}
}

func TestBuildLeavesUppercaseBracketsAlone(t *testing.T) {
	templates := Templates{GeneralChatPromptID: "Keep [CONSTANT] and [Mixed_Case] intact"}
	out := Build(templates, GeneralChatPromptID, nil, "", BotConfig{}, "")
	if !strings.Contains(out, "[CONSTANT]") || !strings.Contains(out, "[Mixed_Case]") {
		t.Fatalf("non-lowercase tags should survive sanitization: %q", out)
	}
}

func TestBuildInjectsActionDataAndUserMessage(t *testing.T) {
	templates := Templates{GeneralChatPromptID: "Data: [action_data]\nAsked: [user_message]"}
	out := Build(templates, GeneralChatPromptID, nil, "weather=sunny", BotConfig{}, "what's the weather")
	if !strings.Contains(out, "Data: weather=sunny") {
		t.Fatalf("action data not injected: %q", out)
	}
	if !strings.Contains(out, "Asked: what's the weather") {
		t.Fatalf("user message not injected: %q", out)
	}
}

// Package prompt builds system prompts from the JSON template file at
// spec §6's persistent layout, grounded on the original implementation's
// modules/prompt_builder.py: sequential literal placeholder substitution
// followed by a lowercase-tag sanitization pass and blank-line collapse.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// DefaultBotName is used when no BotConfig or an empty name is supplied.
const DefaultBotName = "Genesis AI"

// GeneralChatPromptID is the fallback template when promptId is unknown.
const GeneralChatPromptID = "general_chat"

// ActionFormaterPromptID selects the "summarize the action results" system
// prompt used after executing actions (spec §4.1 step 14).
const ActionFormaterPromptID = "action_formater"

// BotConfig carries the per-user display name and personality injected
// into [bot_name]/[bot_personality].
type BotConfig struct {
	Name        string
	Personality string
}

// Templates is a loaded promptId -> template text mapping.
type Templates map[string]string

// Load reads the prompt template file at path.
func Load(path string) (Templates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt templates %s: %w", path, err)
	}
	var t Templates
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parsing prompt templates %s: %w", path, err)
	}
	return t, nil
}

// tagPattern matches any remaining lowercase bracketed placeholder. It is
// intentionally case-sensitive: uppercase or mixed-case bracketed text in
// a template is left untouched, matching the original's re.sub behavior.
var tagPattern = regexp.MustCompile(`\[[a-z_0-9]+\]`)

// Build assembles the system prompt for promptId, injecting bot identity,
// the user's message (for templates that reference it), pre-request
// action output, and a listing of non-pre_request actions. Missing
// promptId falls back to GeneralChatPromptID, matching the Python
// prompts.get(prompt_id, prompts.get("user_chat", "")) fallback.
func Build(templates Templates, promptID string, actions []models.ActionSpec, actionData string, bot BotConfig, userMessage string) string {
	tmpl := templates[promptID]
	if tmpl == "" {
		tmpl = templates[GeneralChatPromptID]
	}

	botName := bot.Name
	if botName == "" {
		botName = DefaultBotName
	}
	tmpl = strings.ReplaceAll(tmpl, "[bot_name]", botName)
	tmpl = strings.ReplaceAll(tmpl, "[bot_personality]", bot.Personality)

	if userMessage != "" {
		tmpl = strings.ReplaceAll(tmpl, "[user_message]", userMessage)
	}

	tmpl = strings.ReplaceAll(tmpl, "Context history: [history]", "")
	tmpl = strings.ReplaceAll(tmpl, "[history]", "")

	tmpl = strings.ReplaceAll(tmpl, "[action_data]", actionData)

	actionsText := renderActions(actions)
	if actionsText == "" {
		actionsText = "No actions currently available."
	}
	tmpl = strings.ReplaceAll(tmpl, "[actions]", actionsText)
	tmpl = strings.ReplaceAll(tmpl, "[available_actions]", actionsText)

	tmpl = tagPattern.ReplaceAllString(tmpl, "")

	for strings.Contains(tmpl, "\n\n\n") {
		tmpl = strings.ReplaceAll(tmpl, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(tmpl)
}

// renderActions lists every action not triggered by trigger="pre_request",
// one "- **name**: description" block per action with a Parameters line.
func renderActions(actions []models.ActionSpec) string {
	var b strings.Builder
	for _, a := range actions {
		if a.Trigger == models.TriggerPreRequest {
			continue
		}
		description := a.Description
		if description == "" {
			description = "No description"
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", a.Name, description)

		names := a.ParametersOrder
		if len(names) == 0 {
			for name := range a.Parameters {
				names = append(names, name)
			}
			sort.Strings(names)
		}
		if len(names) == 0 {
			b.WriteString("  Parameters: None\n")
			continue
		}
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%q: <%s>", name, a.Parameters[name]))
		}
		fmt.Fprintf(&b, "  Parameters: {%s}\n", strings.Join(parts, ", "))
	}
	return b.String()
}

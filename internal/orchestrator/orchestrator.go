// Package orchestrator implements the Turn Orchestrator (spec §4.1): the
// reason-act loop that drives a provider generation, detects requested
// actions in its output, gates them on permission, dispatches them through
// the Execution Engine, and feeds their observations back for another
// pass. Grounded on the teacher repository's internal/agent.AgenticLoop
// (internal/agent/loop.go): a channel-returning Run method backed by a
// goroutine, an explicit per-turn state struct, and phase-by-phase helper
// methods, adapted from the teacher's typed tool-call contract to this
// module's text-mined JSON action-request contract (spec §4.1.3-4.1.4).
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/cache"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/config"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/execengine"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/metrics"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/permstore"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/prompt"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/provider"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/registry"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/store"
)

// AskStreamRequest bundles askStream's parameters (spec §4.1).
type AskStreamRequest struct {
	ChatID                string
	UserID                string
	Prompt                string
	UseThinking           bool
	Priority              string
	ReturnJSON            bool
	PromptID              string
	ResumeAction          bool
	SystemPromptOverride  string
	HistoryOverride       []provider.Message
	StopSignal            <-chan struct{}
}

// continuationPrompt is the synthetic next-prompt used after dispatching
// actions, per spec §4.1 step 14 ("set the next prompt to a continuation
// instruction").
const continuationPrompt = "Continue the task using the action results above."

// Orchestrator wires together every collaborator the reason-act loop
// drives: persistence, plugin discovery and execution, caching,
// permissions, prompt templating, and provider resolution.
type Orchestrator struct {
	store       *store.Store
	registry    *registry.Registry
	engine      *execengine.Engine
	cache       *cache.Cache
	permissions *permstore.Store
	templates   prompt.Templates
	bot         prompt.BotConfig
	cfg         config.Config

	credentials     provider.CredentialSource
	providerFactory ProviderFactory
	preferences     UserPreferences

	providersMu sync.Mutex
	providers   map[string]provider.Provider

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics attaches a metrics bundle.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPreferences overrides the default (always-system-default) preference
// resolver.
func WithPreferences(p UserPreferences) Option {
	return func(o *Orchestrator) { o.preferences = p }
}

// WithProviderFactory overrides the default anthropic/openai dispatch.
func WithProviderFactory(f ProviderFactory) Option {
	return func(o *Orchestrator) { o.providerFactory = f }
}

// New constructs an Orchestrator from its collaborators.
func New(
	st *store.Store,
	reg *registry.Registry,
	engine *execengine.Engine,
	actionCache *cache.Cache,
	perms *permstore.Store,
	templates prompt.Templates,
	bot prompt.BotConfig,
	cfg config.Config,
	credentials provider.CredentialSource,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:           st,
		registry:        reg,
		engine:          engine,
		cache:           actionCache,
		permissions:     perms,
		templates:       templates,
		bot:             bot,
		cfg:             cfg,
		credentials:     credentials,
		providerFactory: DefaultProviderFactory,
		preferences:     NoPreferences{},
		providers:       make(map[string]provider.Provider),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AskStream implements spec §4.1's public contract: a lazy sequence of
// TurnEvents delivered over a channel, closed when the turn finishes
// (final answer, permission pause, or fatal error).
func (o *Orchestrator) AskStream(ctx context.Context, req AskStreamRequest) <-chan TurnEvent {
	events := make(chan TurnEvent, 8)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, req AskStreamRequest, events chan<- TurnEvent) {
	// Step 1: resolve chat/user, rescan the registry (spec §5: rescans are
	// idempotent and pick up newly installed plugins every turn).
	chat, err := o.store.EnsureChat(ctx, req.ChatID, req.UserID, "")
	if err != nil {
		events <- TurnEvent{Kind: EventError, Err: fmt.Errorf("resolving chat: %w", err)}
		return
	}
	chatID := chat.ID
	userID := chat.UserID
	if userID == "" {
		userID = req.UserID
	}

	if err := o.registry.Scan(userID); err != nil {
		o.logger.Warn("plugin rescan failed", "user_id", userID, "error", err)
	}

	providerName, providerCfg, ok := o.resolveProviderConfig(userID)
	if !ok {
		events <- TurnEvent{Kind: EventError, Err: fmt.Errorf("no provider configured for %q", providerName)}
		return
	}

	// Step 3: best-effort process-priority hint; failure is always silent.
	applyPriorityHint(req.Priority)

	// Step 4: placeholder assistant ChatItem, then the user's own item
	// (skipped on resume, since the user item from the original request is
	// already persisted).
	placeholder, err := o.store.AppendItem(ctx, models.ChatItem{ChatID: chatID, Role: models.RoleAssistant, Content: ""})
	if err != nil {
		events <- TurnEvent{Kind: EventError, Err: fmt.Errorf("creating placeholder item: %w", err)}
		return
	}
	if !req.ResumeAction {
		if _, err := o.store.AppendItem(ctx, models.ChatItem{ChatID: chatID, Role: models.RoleUser, Content: req.Prompt}); err != nil {
			events <- TurnEvent{Kind: EventError, Err: fmt.Errorf("appending user item: %w", err)}
			return
		}
	}

	// Step 5: pre-request actions, aggregated into actionData.
	actionData := o.runPreRequestActions(ctx, userID)

	// Step 6-7: system prompt and history.
	allActions := o.registry.GetAllActions()
	systemPrompt := req.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = prompt.Build(o.templates, req.PromptID, allActions, actionData, o.bot, req.Prompt)
	}

	history, err := o.loadHistory(ctx, chatID, req.HistoryOverride)
	if err != nil {
		events <- TurnEvent{Kind: EventError, Err: fmt.Errorf("loading history: %w", err)}
		return
	}

	var (
		actionRequests []ActionRequest
		accumulated    string
		nextPrompt     = req.Prompt
		loop           = 1
	)

	if req.ResumeAction {
		// Step 8: resume branch. Locate the latest non-empty assistant
		// ChatItem and mine it for action requests instead of generating.
		resumeContent, ok := latestNonEmptyAssistantContent(history)
		if !ok {
			events <- TurnEvent{Kind: EventError, Err: fmt.Errorf("resume requested but no prior assistant content exists")}
			return
		}
		accumulated = resumeContent
		actionRequests = ExtractActionRequests(resumeContent)
	} else {
		accumulated, actionRequests, ok = o.generationPass(ctx, req, providerName, providerCfg, systemPrompt, history, nextPrompt, placeholder.ID, chatID, userID, events)
		if !ok {
			return
		}
	}

	for {
		events <- TurnEvent{Kind: EventActionLoop, Loop: loop, MaxLoops: o.cfg.MaxLoops}

		if len(actionRequests) == 0 {
			o.finalizeTurn(accumulated, req.ReturnJSON, events)
			if o.metrics != nil {
				o.metrics.TurnLoops.Observe(float64(loop))
			}
			return
		}

		names := make([]string, len(actionRequests))
		for i, a := range actionRequests {
			names[i] = a.Name
		}
		events <- TurnEvent{Kind: EventActionDetected, ActionNames: names}

		if denied, ok := o.checkPermissions(ctx, userID, chatID, actionRequests); !ok {
			events <- TurnEvent{Kind: EventPermissionNeeded, ActionName: denied.Name, ActionArgs: denied.Args}
			o.logRawLog(ctx, chatID, userID, systemPrompt, accumulated, "permission_required")
			return
		}

		observations := o.runActions(ctx, userID, chatID, actionRequests, events)
		actionData = joinObservations(observations)

		if loop >= o.cfg.MaxLoops {
			o.finalizeTurn(accumulated, req.ReturnJSON, events)
			if o.metrics != nil {
				o.metrics.TurnLoops.Observe(float64(loop))
			}
			return
		}

		systemPrompt = prompt.Build(o.templates, prompt.ActionFormaterPromptID, allActions, actionData, o.bot, "")
		history = append(history, provider.Message{Role: provider.RoleAssistant, Content: accumulated})
		nextPrompt = continuationPrompt
		loop++

		accumulated, actionRequests, ok = o.generationPass(ctx, req, providerName, providerCfg, systemPrompt, history, nextPrompt, placeholder.ID, chatID, userID, events)
		if !ok {
			return
		}
	}
}

// generationPass drives one provider generation to completion (spec §4.1
// step 9), mutating the placeholder ChatItem as chunks arrive, and returns
// the accumulated content plus any detected action requests.
func (o *Orchestrator) generationPass(
	ctx context.Context,
	req AskStreamRequest,
	providerName string,
	providerCfg config.ProviderConfig,
	systemPrompt string,
	history []provider.Message,
	nextPrompt string,
	placeholderID int64,
	chatID, userID string,
	events chan<- TurnEvent,
) (string, []ActionRequest, bool) {
	genReq := provider.Request{
		Model:        providerCfg.Model,
		SystemPrompt: systemPrompt,
		History:      history,
		Prompt:       nextPrompt,
		UseThinking:  req.UseThinking,
		StopSignal:   req.StopSignal,
	}

	stream, ok := o.generateWithCredentialRetry(ctx, providerName, providerCfg, genReq, events)
	if !ok {
		return "", nil, false
	}

	var (
		contentBuf  []byte
		thinkingBuf []byte
	)
	for ev := range stream {
		switch ev.Kind {
		case provider.EventThinking:
			thinkingBuf = append(thinkingBuf, ev.Chunk...)
			events <- TurnEvent{Kind: EventThinking, Chunk: ev.Chunk}
			_ = o.store.UpdateItemContent(ctx, placeholderID, string(contentBuf), string(thinkingBuf))
		case provider.EventThinkingFinished:
			events <- TurnEvent{Kind: EventThinkingFinished, Trace: ev.Trace}
		case provider.EventContent:
			contentBuf = append(contentBuf, ev.Chunk...)
			events <- TurnEvent{Kind: EventStream, Chunk: ev.Chunk}
			_ = o.store.UpdateItemContent(ctx, placeholderID, string(contentBuf), string(thinkingBuf))
		case provider.EventError:
			events <- TurnEvent{Kind: EventError, Err: ev.Err}
			return "", nil, false
		}
	}

	accumulated := string(contentBuf)
	o.logRawLog(ctx, chatID, userID, systemPrompt, accumulated, string(thinkingBuf))

	return accumulated, ExtractActionRequests(accumulated), true
}

// finalizeTurn implements spec §4.1 step 11: when no further actions are
// pending, optionally re-parse for a final {message, json} shape.
func (o *Orchestrator) finalizeTurn(accumulated string, returnJSON bool, events chan<- TurnEvent) {
	if !returnJSON {
		return
	}
	if parsed, ok := ExtractJSON(accumulated); ok {
		message, _ := parsed["message"].(string)
		if message == "" {
			message = accumulated
		}
		events <- TurnEvent{Kind: EventJSONContent, Message: message, JSON: parsed["json"]}
		return
	}
	events <- TurnEvent{Kind: EventJSONContent, Message: accumulated}
}

// loadHistory converts a chat's persisted items into provider messages,
// unless the caller supplied an explicit override.
func (o *Orchestrator) loadHistory(ctx context.Context, chatID string, override []provider.Message) ([]provider.Message, error) {
	if override != nil {
		return override, nil
	}
	items, err := o.store.ListItems(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msgs := make([]provider.Message, 0, len(items))
	for _, it := range items {
		if it.Content == "" {
			continue
		}
		msgs = append(msgs, provider.Message{Role: provider.Role(it.Role), Content: it.Content})
	}
	return msgs, nil
}

func latestNonEmptyAssistantContent(history []provider.Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == provider.RoleAssistant && history[i].Content != "" {
			return history[i].Content, true
		}
	}
	return "", false
}

// logRawLog writes the diagnostic RawLog sibling entry (spec §3), absorbing
// any persistence error per spec §7 ("persistence error — logged;
// best-effort continuation").
func (o *Orchestrator) logRawLog(ctx context.Context, chatID, userID, systemPrompt, content, thinking string) {
	err := o.store.AppendRawLog(ctx, models.RawLog{
		ChatID:       chatID,
		UserID:       userID,
		SystemPrompt: systemPrompt,
		Response: models.RawLogResponse{
			Role:     models.RoleAssistant,
			Content:  content,
			Thinking: thinking,
		},
	})
	if err != nil {
		o.logger.Warn("failed to append raw log", "chat_id", chatID, "error", err)
	}
}

// applyPriorityHint is a best-effort, silently-failing hook for a
// process-priority adjustment (spec §4.1 step 3). No library in this
// module's dependency set exposes a portable nice/priority primitive, so
// this stays a documented no-op rather than reaching for an OS-specific
// syscall outside the grounded stack.
func applyPriorityHint(priority string) {
	_ = priority
}

func joinObservations(observations []actionObservation) string {
	var sb []byte
	for _, obs := range observations {
		sb = append(sb, fmt.Sprintf("[%s]: %s\n", obs.name, obs.output)...)
	}
	return string(sb)
}

// runPreRequestActions implements spec §4.1 step 5: evaluate every
// pre_request action's cache state and aggregate outputs, refreshing stale
// entries in the background rather than blocking the turn on them.
func (o *Orchestrator) runPreRequestActions(ctx context.Context, userID string) string {
	var sb []byte
	for _, action := range o.registry.GetAllActions() {
		if action.Trigger != models.TriggerPreRequest {
			continue
		}
		ttl := time.Duration(action.CacheTTLSeconds) * time.Second

		if data, ok := o.cache.Get(action.Name, userID, ttl); ok {
			if o.metrics != nil {
				o.metrics.ActionCacheHits.WithLabelValues("fresh").Inc()
			}
			sb = append(sb, formatActionData(action.Name, data)...)
			continue
		}

		if stale, ok := o.cache.GetStale(action.Name, userID); ok {
			if o.metrics != nil {
				o.metrics.ActionCacheHits.WithLabelValues("stale").Inc()
			}
			sb = append(sb, formatActionData(action.Name, stale)...)
			go o.refreshPreRequestAction(userID, action)
			continue
		}

		if o.metrics != nil {
			o.metrics.ActionCacheHits.WithLabelValues("miss").Inc()
		}
		data := o.dispatchPreRequestAction(ctx, userID, action)
		o.cache.Set(action.Name, userID, data, ttl)
		sb = append(sb, formatActionData(action.Name, data)...)
	}
	return string(sb)
}

func (o *Orchestrator) refreshPreRequestAction(userID string, action models.ActionSpec) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PluginInstallTimeout)
	defer cancel()
	ttl := time.Duration(action.CacheTTLSeconds) * time.Second
	data := o.dispatchPreRequestAction(ctx, userID, action)
	o.cache.Set(action.Name, userID, data, ttl)
}

func (o *Orchestrator) dispatchPreRequestAction(ctx context.Context, userID string, action models.ActionSpec) any {
	_, plugin, ok := o.registry.GetAction(action.Name)
	if !ok {
		return map[string]any{"error": "action not found"}
	}
	start := time.Now()
	result := o.engine.Execute(ctx, plugin, action, nil, execengine.Context{UserID: userID, ExecutionID: uuid.New().String()}, nil)
	if o.metrics != nil {
		o.metrics.ActionDuration.WithLabelValues(action.Name).Observe(time.Since(start).Seconds())
		o.metrics.ActionExecutions.WithLabelValues(action.Name, string(result.Status)).Inc()
	}
	if result.Status != execengine.StatusSuccess {
		return map[string]any{"error": result.Error}
	}
	return result.Output
}

// formatActionData renders cached/dispatched pre-request action data for
// the prompt. A bare string (the common case once execengine.unwrapOutput
// has collapsed a single-field {"output": ...} result) is rendered as-is,
// matching formatResultOutput's handling of the post-action-observation
// path instead of re-wrapping it into a JSON object.
func formatActionData(name string, data any) string {
	if s, ok := data.(string); ok {
		return fmt.Sprintf("%s: %s\n", name, s)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%s: <unserializable>\n", name)
	}
	return fmt.Sprintf("%s: %s\n", name, raw)
}

// Package anthropic implements provider.Provider against Anthropic's Claude
// API, adapted from the teacher repository's
// internal/agent/providers.AnthropicProvider: same SDK, same SSE-stream
// and exponential-backoff-retry shape, narrowed from the teacher's
// tool-calling CompletionChunk contract down to this module's
// thinking/content/error three-event contract (spec §4.2), and made to
// honor a cooperative stop signal at chunk boundaries (spec §4.2 clause ii,
// spec §5).
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/provider"
)

// Config configures a Provider instance.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
	MaxTokens    int
}

// Provider implements provider.Provider against Anthropic's Messages API.
type Provider struct {
	client       sdk.Client
	hasKey       bool
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
	maxTokens    int
}

// New constructs a Provider. An empty API key still yields a usable value,
// but Generate fails fast with provider.MissingCredentialError instead of
// reaching the API, matching the openai provider's behavior (spec §4.1
// step 2 needs both providers to report missing credentials the same way).
func New(cfg Config) *Provider {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       sdk.NewClient(opts...),
		hasKey:       strings.TrimSpace(cfg.APIKey) != "",
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "anthropic" }

// ModelConfig implements provider.Provider.
func (p *Provider) ModelConfig() map[string]any {
	return map[string]any{"provider": "anthropic", "model": p.defaultModel}
}

// Generate implements provider.Provider.
func (p *Provider) Generate(ctx context.Context, req provider.Request) (<-chan provider.Event, error) {
	if !p.hasKey {
		return nil, &provider.MissingCredentialError{Provider: "anthropic"}
	}
	events := make(chan provider.Event)

	go func() {
		defer close(events)

		model := req.Model
		if model == "" {
			model = p.defaultModel
		}

		params := sdk.MessageNewParams{
			Model:     sdk.Model(model),
			Messages:  convertMessages(req.History, req.Prompt),
			MaxTokens: int64(p.maxTokens),
		}
		if req.SystemPrompt != "" {
			params.System = []sdk.TextBlockParam{{Type: "text", Text: req.SystemPrompt}}
		}
		if req.UseThinking {
			params.Thinking = sdk.ThinkingConfigParamOfEnabled(10000)
		}

		var stream *ssestream.Stream[sdk.MessageStreamEventUnion]
		var err error
		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			stream = p.client.Messages.NewStreaming(ctx, params)
			err = stream.Err()
			if err == nil {
				break
			}
			if !isRetryable(err) {
				events <- provider.Event{Kind: provider.EventError, Err: fmt.Errorf("anthropic: %w", err)}
				return
			}
			if attempt == p.maxRetries {
				break
			}
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				events <- provider.Event{Kind: provider.EventError, Err: ctx.Err()}
				return
			case <-req.StopSignal:
				events <- provider.Event{Kind: provider.EventError, Err: errors.New("generation stopped")}
				return
			case <-time.After(backoff):
			}
		}
		if err != nil {
			events <- provider.Event{Kind: provider.EventError, Err: fmt.Errorf("anthropic: max retries exceeded: %w", err)}
			return
		}

		processStream(ctx, req.StopSignal, stream, events)
	}()

	return events, nil
}

func convertMessages(history []provider.Message, prompt string) []sdk.MessageParam {
	result := make([]sdk.MessageParam, 0, len(history)+1)
	for _, m := range history {
		if m.Role == provider.RoleSystem {
			continue // system prompt travels out-of-band (spec §4.2 clause iii)
		}
		if m.Role == provider.RoleAssistant {
			result = append(result, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		} else {
			result = append(result, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if prompt != "" {
		result = append(result, sdk.NewUserMessage(sdk.NewTextBlock(prompt)))
	}
	return result
}

// processStream converts Anthropic SSE events into our thinking/content/error
// contract. Anthropic itself always emits thinking content_blocks before the
// text content_block within a message, so the ordering guarantee of spec
// §4.2 clause i falls out of the API's own behavior; we additionally emit
// EventThinkingFinished exactly once, synthesizing it immediately if no
// thinking block ever opened.
func processStream(ctx context.Context, stop <-chan struct{}, stream *ssestream.Stream[sdk.MessageStreamEventUnion], events chan<- provider.Event) {
	var thinkingTrace strings.Builder
	sawThinking := false
	finishedThinking := false

	finishThinking := func() {
		if !finishedThinking {
			events <- provider.Event{Kind: provider.EventThinkingFinished, Trace: thinkingTrace.String()}
			finishedThinking = true
		}
	}

	for stream.Next() {
		select {
		case <-stop:
			events <- provider.Event{Kind: provider.EventError, Err: errors.New("generation stopped")}
			return
		case <-ctx.Done():
			events <- provider.Event{Kind: provider.EventError, Err: ctx.Err()}
			return
		default:
		}

		event := stream.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "thinking" {
				sawThinking = true
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "thinking_delta":
				if delta.Thinking != "" {
					thinkingTrace.WriteString(delta.Thinking)
					events <- provider.Event{Kind: provider.EventThinking, Chunk: delta.Thinking}
				}
			case "text_delta":
				finishThinking()
				if delta.Text != "" {
					events <- provider.Event{Kind: provider.EventContent, Chunk: delta.Text}
				}
			}
		case "message_stop":
			finishThinking()
			return
		case "error":
			events <- provider.Event{Kind: provider.EventError, Err: errors.New("anthropic stream error")}
			return
		}
	}
	if err := stream.Err(); err != nil {
		events <- provider.Event{Kind: provider.EventError, Err: fmt.Errorf("anthropic: %w", err)}
		return
	}
	_ = sawThinking
	finishThinking()
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"rate_limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

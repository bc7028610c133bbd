// Package openai implements provider.Provider against OpenAI's Chat
// Completions API, adapted from the teacher repository's
// internal/agent/providers.OpenAIProvider: same SDK, same retry loop and
// streaming-goroutine shape, narrowed from the teacher's tool-calling
// CompletionChunk contract down to this module's thinking/content/error
// three-event contract (spec §4.2). OpenAI's Chat Completions stream
// carries no distinct thinking channel, so every delta is emitted as
// EventContent; EventThinkingFinished is still emitted first (empty trace)
// so callers can treat both providers identically (spec §4.2 clause i
// degrades gracefully to "zero thinking events, then content").
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

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

// Provider implements provider.Provider against OpenAI's Chat Completions API.
type Provider struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
	maxTokens    int
}

// New constructs a Provider. An empty API key yields a Provider whose
// Generate calls always fail fast, mirroring the orchestrator's expectation
// that the missing-credential path surfaces through a Generate error rather
// than a constructor panic.
func New(cfg Config) *Provider {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	if cfg.APIKey == "" {
		return &Provider{maxRetries: cfg.MaxRetries, retryDelay: cfg.RetryDelay, defaultModel: cfg.DefaultModel, maxTokens: cfg.MaxTokens}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openai.NewClientWithConfig(clientCfg),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "openai" }

// ModelConfig implements provider.Provider.
func (p *Provider) ModelConfig() map[string]any {
	return map[string]any{"provider": "openai", "model": p.defaultModel}
}

// Generate implements provider.Provider.
func (p *Provider) Generate(ctx context.Context, req provider.Request) (<-chan provider.Event, error) {
	if p.client == nil {
		return nil, &provider.MissingCredentialError{Provider: "openai"}
	}

	events := make(chan provider.Event)

	go func() {
		defer close(events)

		model := req.Model
		if model == "" {
			model = p.defaultModel
		}

		chatReq := openai.ChatCompletionRequest{
			Model:    model,
			Messages: convertMessages(req.History, req.SystemPrompt, req.Prompt),
			Stream:   true,
		}
		if p.maxTokens > 0 {
			chatReq.MaxTokens = p.maxTokens
		}

		var stream *openai.ChatCompletionStream
		var err error
		for attempt := 0; attempt < p.maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					events <- provider.Event{Kind: provider.EventError, Err: ctx.Err()}
					return
				case <-req.StopSignal:
					events <- provider.Event{Kind: provider.EventError, Err: errors.New("generation stopped")}
					return
				case <-time.After(p.retryDelay * time.Duration(attempt)):
				}
			}

			stream, err = p.client.CreateChatCompletionStream(ctx, chatReq)
			if err == nil {
				break
			}
			if !isRetryable(err) {
				events <- provider.Event{Kind: provider.EventError, Err: fmt.Errorf("openai: %w", err)}
				return
			}
		}
		if err != nil {
			events <- provider.Event{Kind: provider.EventError, Err: fmt.Errorf("openai: max retries exceeded: %w", err)}
			return
		}

		processStream(ctx, req.StopSignal, stream, events)
	}()

	return events, nil
}

func convertMessages(history []provider.Message, system, prompt string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == provider.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		} else if m.Role == provider.RoleSystem {
			role = openai.ChatMessageRoleSystem
		}
		result = append(result, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if prompt != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	}
	return result
}

func processStream(ctx context.Context, stop <-chan struct{}, stream *openai.ChatCompletionStream, events chan<- provider.Event) {
	defer stream.Close()

	events <- provider.Event{Kind: provider.EventThinkingFinished, Trace: ""}

	for {
		select {
		case <-stop:
			events <- provider.Event{Kind: provider.EventError, Err: errors.New("generation stopped")}
			return
		case <-ctx.Done():
			events <- provider.Event{Kind: provider.EventError, Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return
			}
			events <- provider.Event{Kind: provider.EventError, Err: fmt.Errorf("openai: %w", err)}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			events <- provider.Event{Kind: provider.EventContent, Chunk: delta}
		}
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

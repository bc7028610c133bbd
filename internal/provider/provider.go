// Package provider defines the streaming LLM contract of spec §4.2,
// generalised from the teacher repository's internal/agent.LLMProvider
// interface (internal/agent/provider_types.go): the same idea of a
// channel-of-chunks streaming contract, narrowed to exactly the three
// event kinds the orchestration core needs — thinking, content, and
// terminal error — plus the two-phase ordering guarantee spec §4.2
// prescribes (all thinking before any content).
package provider

import (
	"context"
)

// Role mirrors the teacher's CompletionMessage.Role values.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of conversation history handed to a provider.
// SystemPrompt is carried out-of-band via Request.SystemPrompt, never as a
// Message, per spec §4.2's contract.
type Message struct {
	Role    Role
	Content string
}

// Request bundles every parameter of a single generation call.
type Request struct {
	Model        string
	SystemPrompt string
	History      []Message
	Prompt       string
	UseThinking  bool
	// StopSignal, when closed, asks the provider to stop at the next
	// chunk boundary (spec §4.2 contract clause ii, spec §5 cancellation).
	StopSignal <-chan struct{}
}

// EventKind discriminates an Event's payload.
type EventKind int

const (
	EventThinking EventKind = iota
	EventThinkingFinished
	EventContent
	EventError
)

// Event is one streamed unit of a generation, corresponding to spec
// §4.2's thinking{chunk}/thinking_finished{trace}/content{chunk}/error{error}.
type Event struct {
	Kind EventKind

	// Chunk holds incremental text for EventThinking and EventContent.
	Chunk string

	// Trace holds the full accumulated thinking text, populated only on
	// EventThinkingFinished.
	Trace string

	// Err holds the terminal error, populated only on EventError.
	Err error
}

// Provider is the contract every LLM backend implements. A correct
// implementation MUST emit every EventThinking/EventThinkingFinished event
// before any EventContent event (spec §4.2 clause i), must check
// Request.StopSignal between chunks (clause ii), and must never forward
// Request.SystemPrompt as a history entry (clause iii).
type Provider interface {
	// Name identifies the provider, e.g. "anthropic" or "openai".
	Name() string

	// Generate opens a streaming generation. The returned channel is
	// closed after a terminal event (EventError) or after the stream
	// completes normally (the final EventContent is simply the last one
	// sent; callers detect completion by channel closure).
	Generate(ctx context.Context, req Request) (<-chan Event, error)

	// ModelConfig returns the opaque configuration surfaced to RawLog
	// entries (spec §3 RawLog.modelConfig).
	ModelConfig() map[string]any
}

// MissingCredentialError signals that a provider cannot proceed without a
// credential arriving via the per-user secret file (spec §4.1 step 2).
type MissingCredentialError struct {
	Provider string
}

func (e *MissingCredentialError) Error() string {
	return "provider " + e.Provider + ": missing credential"
}

// Package models defines the data shapes shared across the orchestration
// core: chats and their items, diagnostic raw logs, plugin manifests,
// permission grants, scheduled tasks, and action cache entries.
package models

import "time"

// Role identifies who produced a ChatItem.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Chat is a single conversation owned by a user.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatItem is one append-only entry in a chat's strictly linear history.
// Content may be mutated in place while a turn is streaming; once the turn
// completes, the item is frozen.
type ChatItem struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Thinking  string    `json:"thinking,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelConfig is the opaque per-provider configuration surfaced for audit
// logging; providers populate it however suits their backend.
type ModelConfig map[string]any

// RawLogResponse is the response half of a RawLog entry.
type RawLogResponse struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

// RawLog is a diagnostic sibling of ChatItem: one entry per exchange,
// never read by the orchestrator itself, only by admin tooling.
type RawLog struct {
	Timestamp      time.Time      `json:"timestamp"`
	ChatID         string         `json:"chat_id"`
	UserID         string         `json:"user_id"`
	ModelConfig    ModelConfig    `json:"model_config,omitempty"`
	SystemPrompt   string         `json:"system_prompt,omitempty"`
	HistoryContext string         `json:"history_context,omitempty"`
	Response       RawLogResponse `json:"response"`
}

// ActionTrigger controls when an action fires.
type ActionTrigger string

const (
	TriggerManual      ActionTrigger = "manual"
	TriggerPreRequest  ActionTrigger = "pre_request"
	TriggerPostRequest ActionTrigger = "post_request"
)

// ActionType selects the Execution Engine's dispatch strategy.
type ActionType string

const (
	ActionTypePython       ActionType = "python"
	ActionTypeProcess      ActionType = "process"
	ActionTypePythonInproc ActionType = "python_inproc"
)

// ActionSpec is one action declared by a plugin manifest.
type ActionSpec struct {
	Name             string            `json:"name"`
	Script           string            `json:"script,omitempty"`
	Type             ActionType        `json:"type"`
	Description      string            `json:"description,omitempty"`
	Trigger          ActionTrigger     `json:"trigger"`
	CacheTTLSeconds  int               `json:"cache_ttl,omitempty"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	ParametersOrder  []string          `json:"-"` // preserves declaration order for prompt rendering
}

// Integrity is the self-integrity block of a plugin manifest.
type Integrity struct {
	SHA256   string    `json:"sha256"`
	SignedAt time.Time `json:"signed_at"`
}

// PluginManifest is the on-disk descriptor for a plugin.
type PluginManifest struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	Actions     []ActionSpec `json:"actions"`
	Integrity   *Integrity   `json:"integrity,omitempty"`
}

// PluginRole is the ownership class of a loaded plugin.
type PluginRole string

const (
	PluginRoleSystem PluginRole = "system"
	PluginRoleUser   PluginRole = "user"
)

// Plugin is a manifest loaded into memory along with its on-disk location
// and ownership.
type Plugin struct {
	Manifest PluginManifest `json:"manifest"`
	Path     string         `json:"_path"`
	Role     PluginRole     `json:"_role"`
	OwnerID  string         `json:"owner_id,omitempty"` // set when Role == PluginRoleUser
}

// PermissionScope is the validity extent of a permission grant.
type PermissionScope string

const (
	ScopeOnce    PermissionScope = "once"
	ScopeSession PermissionScope = "session"
	ScopeToday   PermissionScope = "today"
	ScopeAlways  PermissionScope = "always"
)

// PermissionGrant records that a user has authorised an action.
type PermissionGrant struct {
	UserID     string          `json:"user_id"`
	ActionName string          `json:"action_name"`
	Scope      PermissionScope `json:"scope"`
	ChatID     string          `json:"chat_id,omitempty"`
	GrantedAt  time.Time       `json:"granted_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

// TaskStatus is whether a scheduled task currently fires.
type TaskStatus string

const (
	TaskActive TaskStatus = "active"
	TaskPaused TaskStatus = "paused"
)

// Task is a persisted scheduled (or manual-only) action invocation.
type Task struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ActionName string         `json:"action_name"`
	Schedule   string         `json:"schedule,omitempty"` // cron-subset string; empty = manual-only
	UserID     string         `json:"user_id,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Status     TaskStatus     `json:"status"`
	LastRun    *time.Time     `json:"last_run,omitempty"`
	NextRun    *time.Time     `json:"next_run,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ActionCacheEntry is one memoised pre-request action result.
type ActionCacheEntry struct {
	ActionName string
	UserID     string
	Data       any
	StoredAt   time.Time
	TTL        int // seconds
}

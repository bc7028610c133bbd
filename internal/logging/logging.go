// Package logging provides the structured slog.Logger construction and
// context-correlation helpers used throughout the orchestration core,
// generalised from the teacher repository's internal/observability
// logging helper (request/session/user/channel correlation, JSON or text
// handler, secret redaction) to this domain's correlation fields: chat,
// user, action, and execution id.
package logging

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

type ctxKey string

const (
	chatIDKey      ctxKey = "chat_id"
	userIDKey      ctxKey = "user_id"
	actionNameKey  ctxKey = "action_name"
	executionIDKey ctxKey = "execution_id"
)

// Config controls logger construction.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// secretPatterns redacts credentials that might otherwise leak into logs
// via provider errors or plugin stderr.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)(bearer|token)[\s:]+[a-zA-Z0-9_\-.]{16,}`),
}

// New builds a slog.Logger per Config, defaulting to JSON-on-stdout at
// info level, matching the teacher's NewLogger defaults.
func New(cfg Config) *slog.Logger {
	level := levelFromString(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(&redactingHandler{Handler: handler})
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactingHandler wraps a slog.Handler and scrubs credential-shaped
// substrings from every string attribute before it reaches the sink.
type redactingHandler struct {
	slog.Handler
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := withCorrelation(ctx, nil)
	newRec := slog.NewRecord(r.Time, r.Level, redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		newRec.AddAttrs(redactAttr(a))
		return true
	})
	for _, a := range attrs {
		newRec.AddAttrs(a)
	}
	return h.Handler.Handle(ctx, newRec)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &redactingHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{Handler: h.Handler.WithGroup(name)}
}

func redact(s string) string {
	for _, re := range secretPatterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, redact(a.Value.String()))
	}
	return a
}

func withCorrelation(ctx context.Context, attrs []slog.Attr) []slog.Attr {
	if v, ok := ctx.Value(chatIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("chat_id", v))
	}
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("user_id", v))
	}
	if v, ok := ctx.Value(actionNameKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("action_name", v))
	}
	if v, ok := ctx.Value(executionIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("execution_id", v))
	}
	return attrs
}

// WithChatID attaches a chat id to the context for log correlation.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

// WithUserID attaches a user id to the context for log correlation.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithActionName attaches an action name to the context for log correlation.
func WithActionName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actionNameKey, name)
}

// WithExecutionID attaches an execution id to the context for log correlation.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

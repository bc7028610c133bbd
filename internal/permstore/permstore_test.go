package permstore

import (
	"context"
	"testing"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AlwaysScope(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ok, err := s.Check(ctx, "u1", "send_email", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatal("expected no permission before any grant")
	}

	if err := s.Grant(ctx, "u1", "send_email", models.ScopeAlways, ""); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ok, err = s.Check(ctx, "u1", "send_email", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatal("expected permission after always-grant")
	}
}

func TestStore_TodayScope(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = func() time.Time { return time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC) }

	if err := s.Grant(ctx, "u1", "delete_file", models.ScopeToday, ""); err != nil {
		t.Fatalf("grant: %v", err)
	}

	ok, err := s.Check(ctx, "u1", "delete_file", "")
	if err != nil || !ok {
		t.Fatalf("expected permission later same day, got ok=%v err=%v", ok, err)
	}

	s.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 1, 0, time.UTC) }
	ok, err = s.Check(ctx, "u1", "delete_file", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatal("expected permission to have expired the next day")
	}
}

func TestStore_SessionScope(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Grant(ctx, "u1", "read_file", models.ScopeSession, "chat-1"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	ok, _ := s.Check(ctx, "u1", "read_file", "chat-1")
	if !ok {
		t.Fatal("expected permission within granting chat")
	}

	ok, _ = s.Check(ctx, "u1", "read_file", "chat-2")
	if ok {
		t.Fatal("expected no permission in a different chat")
	}
}

func TestStore_OnceScopeIsEphemeral(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Grant(ctx, "u1", "format_disk", models.ScopeOnce, "chat-1"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	ok, _ := s.Check(ctx, "u1", "format_disk", "chat-1")
	if ok {
		t.Fatal("expected once-scope grant to never be persisted")
	}
}

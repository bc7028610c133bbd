package store

import (
	"context"
	"testing"

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

func TestStore_ChatLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	chat, err := s.CreateChat(ctx, "u1", "first chat")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if chat.ID == "" {
		t.Fatal("expected generated chat id")
	}

	got, err := s.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if got.Title != "first chat" {
		t.Errorf("expected title %q, got %q", "first chat", got.Title)
	}

	chats, err := s.ListChats(ctx, "u1")
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(chats))
	}
}

func TestStore_AppendAndUpdateItems(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	chat, err := s.CreateChat(ctx, "u1", "chat")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	item, err := s.AppendItem(ctx, models.ChatItem{ChatID: chat.ID, Role: models.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("append item: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected generated item id")
	}

	assistant, err := s.AppendItem(ctx, models.ChatItem{ChatID: chat.ID, Role: models.RoleAssistant, Content: "th"})
	if err != nil {
		t.Fatalf("append item: %v", err)
	}

	if err := s.UpdateItemContent(ctx, assistant.ID, "thinking then answering", "scratchpad"); err != nil {
		t.Fatalf("update item: %v", err)
	}

	items, err := s.ListItems(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[1].Content != "thinking then answering" || items[1].Thinking != "scratchpad" {
		t.Errorf("expected updated content/thinking, got %+v", items[1])
	}
}

func TestStore_EnsureChat(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created, err := s.EnsureChat(ctx, "fixed-id", "u1", "new chat")
	if err != nil {
		t.Fatalf("ensure chat (create): %v", err)
	}
	if created.ID != "fixed-id" {
		t.Fatalf("expected id %q, got %q", "fixed-id", created.ID)
	}

	again, err := s.EnsureChat(ctx, "fixed-id", "u1", "ignored title")
	if err != nil {
		t.Fatalf("ensure chat (reuse): %v", err)
	}
	if again.Title != "new chat" {
		t.Errorf("expected existing chat to be returned unchanged, got title %q", again.Title)
	}

	generated, err := s.EnsureChat(ctx, "", "u2", "ephemeral")
	if err != nil {
		t.Fatalf("ensure chat (generate id): %v", err)
	}
	if generated.ID == "" {
		t.Fatal("expected a generated chat id")
	}
}

func TestStore_DeleteChatCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	chat, err := s.CreateChat(ctx, "u1", "chat")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := s.AppendItem(ctx, models.ChatItem{ChatID: chat.ID, Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append item: %v", err)
	}

	if err := s.DeleteChat(ctx, chat.ID); err != nil {
		t.Fatalf("delete chat: %v", err)
	}

	if _, err := s.GetChat(ctx, chat.ID); err == nil {
		t.Fatal("expected deleted chat to be gone")
	}
	items, err := s.ListItems(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected cascaded delete of chat items, got %d", len(items))
	}
}

func TestStore_AppendRawLog(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	chat, err := s.CreateChat(ctx, "u1", "chat")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	err = s.AppendRawLog(ctx, models.RawLog{
		ChatID:       chat.ID,
		UserID:       "u1",
		ModelConfig:  models.ModelConfig{"provider": "anthropic"},
		SystemPrompt: "be terse",
		Response:     models.RawLogResponse{Role: models.RoleAssistant, Content: "ok"},
	})
	if err != nil {
		t.Fatalf("append raw log: %v", err)
	}
}

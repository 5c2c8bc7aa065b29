package service

import (
	"testing"

	"genshai/model"
	"genshai/platform"
)

func TestHistoryEmptyShape(t *testing.T) {
	store := newMockChatStore()
	svc := NewChatService(store, platform.Gateway{})

	resp, err := svc.History("marcus-aurelius", "", "s1")
	if err != nil {
		t.Fatalf("History returned %v", err)
	}
	if resp.ConversationID != nil {
		t.Errorf("conversationId = %v, want null", *resp.ConversationID)
	}
	if resp.Messages == nil || len(resp.Messages) != 0 {
		t.Errorf("messages should be an empty list, got %v", resp.Messages)
	}
}

func TestHistoryReturnsLatestConversationAscending(t *testing.T) {
	store := newMockChatStore()
	svc := NewChatService(store, platform.Gateway{})

	conv := &model.Conversation{AgentID: "laozi", UserSession: "s1"}
	store.CreateConversation(conv)
	store.CreateMessage(&model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: "q1"})
	store.CreateMessage(&model.Message{ConversationID: conv.ID, Role: model.RoleAgent, Content: "a1"})

	// another caller's conversation with the same agent must not leak in
	other := &model.Conversation{AgentID: "laozi", UserSession: "s2"}
	store.CreateConversation(other)
	store.CreateMessage(&model.Message{ConversationID: other.ID, Role: model.RoleUser, Content: "other"})

	resp, err := svc.History("laozi", "", "s1")
	if err != nil {
		t.Fatalf("History returned %v", err)
	}
	if resp.ConversationID == nil || *resp.ConversationID != conv.ID {
		t.Fatalf("conversationId = %v, want %s", resp.ConversationID, conv.ID)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(resp.Messages))
	}
	if resp.Messages[0].Content != "q1" || resp.Messages[1].Content != "a1" {
		t.Errorf("messages out of order: %+v", resp.Messages)
	}
	if resp.Messages[0].Role != model.RoleUser || resp.Messages[1].Role != model.RoleAgent {
		t.Errorf("roles wrong: %+v", resp.Messages)
	}
}

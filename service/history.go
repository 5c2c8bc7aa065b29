package service

import (
	"fmt"
	"time"

	"genshai/model"
)

type HistoryEntry struct {
	ID        uint       `json:"id"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// HistoryResponse is the body of GET /v1/chat/history. ConversationID stays
// null when the caller has no conversation with the agent yet.
type HistoryResponse struct {
	ConversationID *string        `json:"conversationId"`
	Messages       []HistoryEntry `json:"messages"`
}

// History loads the full message log of the caller's most recent
// conversation with the agent, oldest first.
func (s *ChatService) History(agentID, userID, userSession string) (*HistoryResponse, error) {
	conv, err := s.store.LatestConversation(agentID, userID, userSession)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	resp := &HistoryResponse{Messages: []HistoryEntry{}}
	if conv == nil {
		return resp, nil
	}

	messages, err := s.store.Messages(conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	resp.ConversationID = &conv.ID
	for _, m := range messages {
		resp.Messages = append(resp.Messages, HistoryEntry{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return resp, nil
}

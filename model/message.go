package model

import "time"

// Role tags who produced a message. The store vocabulary is user/agent; the
// model API speaks user/assistant. The mapping is total in both directions.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// APIRole translates the stored role into the chat-completion vocabulary.
func (r Role) APIRole() string {
	if r == RoleAgent {
		return "assistant"
	}
	return "user"
}

// RoleFromAPI translates a chat-completion role back into the stored one.
func RoleFromAPI(role string) Role {
	if role == "assistant" {
		return RoleAgent
	}
	return RoleUser
}

type Message struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `json:"conversation_id" gorm:"size:36;index:idx_conversation_created"`
	Role           Role      `gorm:"type:varchar(16)" json:"role"`
	Content        string    `gorm:"type:longtext" json:"content"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_conversation_created"`
	UpdatedAt      time.Time `json:"updated_at"`
}

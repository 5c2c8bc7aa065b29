package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is one running chat between a caller and an agent. The caller
// is either an authenticated user (UserID) or an anonymous browser session
// (UserSession); exactly one of the two is non-empty.
type Conversation struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	AgentID     string    `gorm:"size:128;index:idx_agent_caller" json:"agent_id"`
	UserID      string    `gorm:"size:36;index:idx_agent_caller" json:"user_id"`
	UserSession string    `gorm:"size:64;index:idx_agent_caller" json:"user_session"`
	Title       string    `gorm:"size:255" json:"title"`
	CreatedAt   time.Time `gorm:"index:idx_agent_caller" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

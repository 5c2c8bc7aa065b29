package model

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store is the gorm-backed data access layer. Services depend on the small
// interfaces they declare; Store satisfies all of them.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateConversation(conv *Conversation) error {
	if err := s.db.Create(conv).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// LatestConversation returns the most recently created conversation for the
// (agent, caller) pair, or nil when the caller has none yet.
func (s *Store) LatestConversation(agentID, userID, userSession string) (*Conversation, error) {
	var conv Conversation
	query := s.db.Where("agent_id = ?", agentID)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	} else {
		query = query.Where("user_session = ?", userSession)
	}
	err := query.Order("created_at DESC").First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &conv, nil
}

func (s *Store) TouchConversation(id string) error {
	return s.db.Model(&Conversation{}).Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

func (s *Store) SetConversationTitle(id, title string) error {
	return s.db.Model(&Conversation{}).Where("id = ?", id).
		Update("title", title).Error
}

func (s *Store) CreateMessage(msg *Message) error {
	if err := s.db.Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// RecentMessages returns at most limit messages of a conversation, oldest
// first. The newest rows win when the conversation is longer than the limit.
func (s *Store) RecentMessages(conversationID string, limit int) ([]Message, error) {
	var messages []Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) Messages(conversationID string) ([]Message, error) {
	var messages []Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return messages, nil
}

// PurgeAnonymousBefore deletes anonymous conversations last touched before
// the cutoff, together with their messages.
func (s *Store) PurgeAnonymousBefore(cutoff time.Time) (int64, error) {
	var stale []Conversation
	err := s.db.Where("user_id = ? AND updated_at < ?", "", cutoff).Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("database query failed: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(stale))
	for _, conv := range stale {
		ids = append(ids, conv.ID)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id IN ?", ids).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&Conversation{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge conversations: %w", err)
	}
	return int64(len(ids)), nil
}

func (s *Store) CreateAgent(agent *UserAgent) error {
	if err := s.db.Create(agent).Error; err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(id string) (*UserAgent, error) {
	var agent UserAgent
	if err := s.db.Where("id = ?", id).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("agent not found: %w", err)
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &agent, nil
}

func (s *Store) ListAgents(ownerID uint) ([]UserAgent, error) {
	var agents []UserAgent
	err := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&agents).Error
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return agents, nil
}

func (s *Store) UpdateAgent(agent *UserAgent) error {
	return s.db.Save(agent).Error
}

func (s *Store) DeleteAgent(id string) error {
	return s.db.Delete(&UserAgent{}, "id = ?", id).Error
}

func (s *Store) UserExists(username, email string) bool {
	var count int64
	if err := s.db.Model(&User{}).Where("username = ? OR email = ?", username, email).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

func (s *Store) CreateUser(user *User) error {
	if err := s.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByUsername(username string) (*User, error) {
	var user User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &user, nil
}

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserAgent is a user-authored persona. Its behavioral prompt is assembled
// from seven independent free-text layers; empty layers are skipped.
type UserAgent struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	OwnerID uint   `gorm:"index" json:"owner_id"`
	Name    string `gorm:"type:varchar(255);not null" json:"name"`
	Slug    string `gorm:"type:varchar(128);not null;unique" json:"slug"`

	Values            string `gorm:"type:text" json:"values"`
	MentalModels      string `gorm:"type:text" json:"mental_models"`
	ReasoningPatterns string `gorm:"type:text" json:"reasoning_patterns"`
	EmotionalStance   string `gorm:"type:text" json:"emotional_stance"`
	LanguageStyle     string `gorm:"type:text" json:"language_style"`
	DecisionHistory   string `gorm:"type:text" json:"decision_history"`
	KnowledgeDomains  string `gorm:"type:text" json:"knowledge_domains"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *UserAgent) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// SystemPrompt assembles the persona prompt: each non-empty layer under its
// fixed header, blank-line separated, followed by the first-person
// instruction.
func (a *UserAgent) SystemPrompt() string {
	layers := []struct {
		header string
		body   string
	}{
		{"Core Values", a.Values},
		{"Mental Models", a.MentalModels},
		{"Reasoning Patterns", a.ReasoningPatterns},
		{"Emotional Stance", a.EmotionalStance},
		{"Language Style", a.LanguageStyle},
		{"Decision History", a.DecisionHistory},
		{"Knowledge Domains", a.KnowledgeDomains},
	}

	var parts []string
	parts = append(parts, "You are "+a.Name+".")
	for _, layer := range layers {
		body := strings.TrimSpace(layer.body)
		if body == "" {
			continue
		}
		parts = append(parts, layer.header+":\n"+body)
	}
	parts = append(parts, "Always respond in first person, staying in character.")
	return strings.Join(parts, "\n\n")
}

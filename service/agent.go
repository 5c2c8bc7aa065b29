package service

import (
	"errors"

	"genshai/model"
)

var (
	ErrNotOwner     = errors.New("not the agent owner")
	ErrSlugReserved = errors.New("slug collides with a built-in persona")
)

// AgentStore is what the user-agent CRUD needs from the persistence layer.
type AgentStore interface {
	CreateAgent(agent *model.UserAgent) error
	GetAgent(id string) (*model.UserAgent, error)
	ListAgents(ownerID uint) ([]model.UserAgent, error)
	UpdateAgent(agent *model.UserAgent) error
	DeleteAgent(id string) error
}

// AgentInput carries the editable fields of a user-authored persona.
type AgentInput struct {
	Name              string `json:"name" binding:"required"`
	Slug              string `json:"slug" binding:"required"`
	Values            string `json:"values"`
	MentalModels      string `json:"mental_models"`
	ReasoningPatterns string `json:"reasoning_patterns"`
	EmotionalStance   string `json:"emotional_stance"`
	LanguageStyle     string `json:"language_style"`
	DecisionHistory   string `json:"decision_history"`
	KnowledgeDomains  string `json:"knowledge_domains"`
}

type AgentService struct {
	store AgentStore
}

func NewAgentService(store AgentStore) *AgentService {
	return &AgentService{store: store}
}

func (s *AgentService) Create(ownerID uint, in *AgentInput) (*model.UserAgent, error) {
	if KnownPersona(in.Slug) {
		return nil, ErrSlugReserved
	}
	agent := &model.UserAgent{OwnerID: ownerID}
	applyInput(agent, in)
	if err := s.store.CreateAgent(agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func (s *AgentService) Get(id string) (*model.UserAgent, error) {
	return s.store.GetAgent(id)
}

func (s *AgentService) List(ownerID uint) ([]model.UserAgent, error) {
	return s.store.ListAgents(ownerID)
}

func (s *AgentService) Update(ownerID uint, id string, in *AgentInput) (*model.UserAgent, error) {
	agent, err := s.store.GetAgent(id)
	if err != nil {
		return nil, err
	}
	if agent.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	if in.Slug != agent.Slug && KnownPersona(in.Slug) {
		return nil, ErrSlugReserved
	}
	applyInput(agent, in)
	if err := s.store.UpdateAgent(agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func (s *AgentService) Delete(ownerID uint, id string) error {
	agent, err := s.store.GetAgent(id)
	if err != nil {
		return err
	}
	if agent.OwnerID != ownerID {
		return ErrNotOwner
	}
	return s.store.DeleteAgent(id)
}

func applyInput(agent *model.UserAgent, in *AgentInput) {
	agent.Name = in.Name
	agent.Slug = in.Slug
	agent.Values = in.Values
	agent.MentalModels = in.MentalModels
	agent.ReasoningPatterns = in.ReasoningPatterns
	agent.EmotionalStance = in.EmotionalStance
	agent.LanguageStyle = in.LanguageStyle
	agent.DecisionHistory = in.DecisionHistory
	agent.KnowledgeDomains = in.KnowledgeDomains
}

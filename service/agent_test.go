package service

import (
	"errors"
	"fmt"
	"testing"

	"genshai/model"

	"gorm.io/gorm"
)

type mockAgentStore struct {
	agents map[string]*model.UserAgent
	nextID int
}

func newMockAgentStore() *mockAgentStore {
	return &mockAgentStore{agents: make(map[string]*model.UserAgent)}
}

func (m *mockAgentStore) CreateAgent(agent *model.UserAgent) error {
	m.nextID++
	if agent.ID == "" {
		agent.ID = fmt.Sprintf("agent-%d", m.nextID)
	}
	m.agents[agent.ID] = agent
	return nil
}

func (m *mockAgentStore) GetAgent(id string) (*model.UserAgent, error) {
	if agent, ok := m.agents[id]; ok {
		copied := *agent
		return &copied, nil
	}
	return nil, fmt.Errorf("agent not found: %w", gorm.ErrRecordNotFound)
}

func (m *mockAgentStore) ListAgents(ownerID uint) ([]model.UserAgent, error) {
	var out []model.UserAgent
	for _, agent := range m.agents {
		if agent.OwnerID == ownerID {
			out = append(out, *agent)
		}
	}
	return out, nil
}

func (m *mockAgentStore) UpdateAgent(agent *model.UserAgent) error {
	m.agents[agent.ID] = agent
	return nil
}

func (m *mockAgentStore) DeleteAgent(id string) error {
	delete(m.agents, id)
	return nil
}

func TestAgentCreateAndGet(t *testing.T) {
	svc := NewAgentService(newMockAgentStore())

	agent, err := svc.Create(7, &AgentInput{
		Name:   "My Mentor",
		Slug:   "my-mentor",
		Values: "Kindness first.",
	})
	if err != nil {
		t.Fatalf("Create returned %v", err)
	}
	if agent.ID == "" || agent.OwnerID != 7 {
		t.Errorf("agent not populated: %+v", agent)
	}

	got, err := svc.Get(agent.ID)
	if err != nil {
		t.Fatalf("Get returned %v", err)
	}
	if got.Slug != "my-mentor" {
		t.Errorf("slug = %q", got.Slug)
	}
}

func TestAgentCreateReservedSlug(t *testing.T) {
	svc := NewAgentService(newMockAgentStore())
	_, err := svc.Create(7, &AgentInput{Name: "Fake Marcus", Slug: "marcus-aurelius"})
	if !errors.Is(err, ErrSlugReserved) {
		t.Errorf("expected ErrSlugReserved, got %v", err)
	}
}

func TestAgentUpdateOwnership(t *testing.T) {
	store := newMockAgentStore()
	svc := NewAgentService(store)

	agent, _ := svc.Create(7, &AgentInput{Name: "Mine", Slug: "mine"})

	_, err := svc.Update(8, agent.ID, &AgentInput{Name: "Stolen", Slug: "mine"})
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}

	updated, err := svc.Update(7, agent.ID, &AgentInput{Name: "Renamed", Slug: "mine", Values: "v"})
	if err != nil {
		t.Fatalf("owner update returned %v", err)
	}
	if updated.Name != "Renamed" || updated.Values != "v" {
		t.Errorf("update not applied: %+v", updated)
	}
}

func TestAgentDelete(t *testing.T) {
	store := newMockAgentStore()
	svc := NewAgentService(store)

	agent, _ := svc.Create(7, &AgentInput{Name: "Mine", Slug: "mine"})

	if err := svc.Delete(8, agent.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if err := svc.Delete(7, agent.ID); err != nil {
		t.Fatalf("owner delete returned %v", err)
	}
	if _, err := svc.Get(agent.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("agent should be gone, got %v", err)
	}
}

package memory

import (
	"context"
	"sync"
)

// Membership is a static quiz -> allowed users table for private quizzes.
type Membership struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
}

func NewMembership() *Membership {
	return &Membership{members: make(map[string]map[string]struct{})}
}

// Grant adds users to the groups linked to a quiz.
func (m *Membership) Grant(quizID string, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.members[quizID]
	if !ok {
		set = make(map[string]struct{})
		m.members[quizID] = set
	}
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
}

func (m *Membership) IsMember(_ context.Context, quizID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[quizID][userID]
	return ok, nil
}

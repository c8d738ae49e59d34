package runner

import (
	"context"
	"sync"

	"github.com/Kocoro-lab/toolscout/internal/db"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

// MemoryStore keeps the most recent run states in process.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*research.ResearchState
	order  []string
	limit  int
}

// NewMemoryStore keeps at most limit runs.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 512
	}
	return &MemoryStore{states: make(map[string]*research.ResearchState), limit: limit}
}

// SaveRun stores a copy of s.
func (m *MemoryStore) SaveRun(_ context.Context, s *research.ResearchState, _ string) error {
	cp := *s
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[s.RunID]; !ok {
		m.order = append(m.order, s.RunID)
		if len(m.order) > m.limit {
			delete(m.states, m.order[0])
			m.order = m.order[1:]
		}
	}
	m.states[s.RunID] = &cp
	return nil
}

// GetRun returns db.ErrRunNotFound for unknown ids.
func (m *MemoryStore) GetRun(_ context.Context, runID string) (*research.ResearchState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[runID]
	if !ok {
		return nil, db.ErrRunNotFound
	}
	cp := *s
	return &cp, nil
}

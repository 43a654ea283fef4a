package archive

import (
	"context"
	"sync"
)

// DefaultMemoryLimit is how many games MemoryRepository keeps.
const DefaultMemoryLimit = 200

// MemoryRepository keeps the most recent archived games in process, newest last.
// Older games are evicted once the limit is reached.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*Record
	order []string
	limit int
}

func NewMemoryRepository() *MemoryRepository {
	return NewMemoryRepositoryWithLimit(DefaultMemoryLimit)
}

func NewMemoryRepositoryWithLimit(limit int) *MemoryRepository {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &MemoryRepository{byID: make(map[string]*Record), limit: limit}
}

func (m *MemoryRepository) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	cp := *rec
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[rec.GameID]; !exists {
		m.order = append(m.order, rec.GameID)
	}
	m.byID[rec.GameID] = &cp
	for len(m.order) > m.limit {
		delete(m.byID, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, gameID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryRepository) Recent(ctx context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]*Record, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.byID[m.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

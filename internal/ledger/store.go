package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Store persists the ordered move log of the current session.
//
// Append must only be called with MoveNumber == last+1 and an empty black half;
// SetBlack only targets the last record. Implementations reject anything else with ErrConflict
// so a diverged store is detected instead of silently patched.
type Store interface {
	Load(ctx context.Context) ([]MoveRecord, error)
	Append(ctx context.Context, rec MoveRecord) error
	SetBlack(ctx context.Context, moveNumber int, move string) error
	Clear(ctx context.Context) error
}

// MemoryStore is the in-process Store used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records []MoveRecord
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) ([]MoveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MoveRecord(nil), m.records...), nil
}

func (m *MemoryStore) Append(ctx context.Context, rec MoveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAppend(m.records, rec); err != nil {
		return err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) SetBlack(ctx context.Context, moveNumber int, move string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.records)
	if n == 0 || m.records[n-1].MoveNumber != moveNumber || m.records[n-1].BlackHalf != "" {
		return fmt.Errorf("%w: set black on move %d", ErrConflict, moveNumber)
	}
	m.records[n-1].BlackHalf = move
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.records = nil
	m.mu.Unlock()
	return nil
}

func checkAppend(records []MoveRecord, rec MoveRecord) error {
	n := len(records)
	if rec.MoveNumber != n+1 || rec.BlackHalf != "" {
		return fmt.Errorf("%w: append move %d onto %d records", ErrConflict, rec.MoveNumber, n)
	}
	if n > 0 && !records[n-1].Complete() {
		return fmt.Errorf("%w: previous move %d incomplete", ErrConflict, records[n-1].MoveNumber)
	}
	return nil
}

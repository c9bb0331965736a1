package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
)

// MockIndexRepository keeps the last saved snapshot in memory
type MockIndexRepository struct {
	mu       sync.Mutex
	snapshot *domain.Snapshot
	saves    int

	SaveErr  error
	LoadErr  error
	ClearErr error
}

// NewMockIndexRepository creates an empty repository
func NewMockIndexRepository() *MockIndexRepository {
	return &MockIndexRepository{}
}

func (m *MockIndexRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	blob := make([]byte, len(snapshot.Index))
	copy(blob, snapshot.Index)
	m.snapshot = &domain.Snapshot{Index: blob, Mapping: snapshot.Mapping.Clone()}
	m.saves++
	return nil
}

func (m *MockIndexRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.snapshot == nil {
		return nil, domain.ErrNotFound
	}
	return &domain.Snapshot{Index: m.snapshot.Index, Mapping: m.snapshot.Mapping.Clone()}, nil
}

func (m *MockIndexRepository) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = nil
	return m.ClearErr
}

func (m *MockIndexRepository) Name() string {
	return "mock"
}

// Saves returns how many snapshots were written
func (m *MockIndexRepository) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// HasSnapshot reports whether a snapshot is stored
func (m *MockIndexRepository) HasSnapshot() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot != nil
}

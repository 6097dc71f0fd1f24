package forecast

import (
	"context"
	"sync"

	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// memoryStore is an in-process ArtifactStore used when no persistent store
// is configured and in tests.
type memoryStore struct {
	mu sync.RWMutex
	a  *Artifact
}

// NewMemoryStore returns an ArtifactStore that keeps the artifact in memory.
func NewMemoryStore() ArtifactStore {
	return &memoryStore{}
}

func (m *memoryStore) Save(_ context.Context, a *Artifact) error {
	m.mu.Lock()
	m.a = a
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Load(_ context.Context) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.a == nil {
		return nil, errors.WithStack(ErrNoArtifact)
	}
	return m.a, nil
}

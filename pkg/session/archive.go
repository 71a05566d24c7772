package session

import (
	"context"
	"sync"
)

// TurnArchive is the persistent turn history. Eviction from the active
// context window never touches the archive.
type TurnArchive interface {
	SaveTurn(ctx context.Context, sessionID string, turn Turn) error
	ListTurns(ctx context.Context, sessionID string) ([]Turn, error)
}

// InMemoryArchive keeps history in process memory. Default for tests and
// single-run deployments.
type InMemoryArchive struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

func NewInMemoryArchive() *InMemoryArchive {
	return &InMemoryArchive{turns: make(map[string][]Turn)}
}

func (a *InMemoryArchive) SaveTurn(_ context.Context, sessionID string, turn Turn) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns[sessionID] = append(a.turns[sessionID], turn)
	return nil
}

func (a *InMemoryArchive) ListTurns(_ context.Context, sessionID string) ([]Turn, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Turn(nil), a.turns[sessionID]...), nil
}

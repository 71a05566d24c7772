// Package session owns per-conversation state: the append-only turn
// sequence, the bounded active context window, and the one-query-at-a-time
// rule that keeps citation validation scoped to a single turn.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modalmesh/groundrag/pkg/logging"
	"github.com/modalmesh/groundrag/pkg/retrieve"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrQueryInFlight rejects a second concurrent query on one session.
	ErrQueryInFlight = errors.New("a query is already in flight for this session")
)

// Turn is one completed query/answer exchange. Never mutated after append.
type Turn struct {
	ID        string
	Query     string
	Evidence  []retrieve.EvidenceItem
	Answer    string
	Citations []retrieve.Citation
	CreatedAt time.Time
}

type sessionState struct {
	mu    sync.Mutex
	busy  bool
	turns []Turn
}

// Manager tracks sessions and their bounded context windows. Turns evicted
// from the window stay in the archive; the window only bounds what prompt
// construction sees.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	window   int
	archive  TurnArchive
	log      *logging.Logger
}

func NewManager(window int, archive TurnArchive, log *logging.Logger) *Manager {
	if window <= 0 {
		window = 8
	}
	if archive == nil {
		archive = NewInMemoryArchive()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		sessions: make(map[string]*sessionState),
		window:   window,
		archive:  archive,
		log:      log,
	}
}

// StartSession registers a new session and returns its id.
func (m *Manager) StartSession(_ context.Context) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = &sessionState{}
	m.mu.Unlock()
	m.log.Debug("session started", "session_id", id)
	return id, nil
}

func (m *Manager) get(sessionID string) (*sessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// BeginQuery claims the session for one query lifecycle. The returned
// release must be called when the query terminates, on every path.
func (m *Manager) BeginQuery(sessionID string) (func(), error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrQueryInFlight
	}
	s.busy = true
	return func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}, nil
}

// AppendTurn records evidence, answer, and citations together. The turn is
// archived first; if archiving fails nothing is appended, so a turn is never
// partially recorded.
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, turn Turn) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if err := m.archive.SaveTurn(ctx, sessionID, turn); err != nil {
		return err
	}

	s.mu.Lock()
	s.turns = append(s.turns, turn)
	if evicted := len(s.turns) - m.window; evicted > 0 {
		s.turns = append([]Turn(nil), s.turns[evicted:]...)
		m.log.Debug("evicted turns from context window", "session_id", sessionID, "evicted", evicted)
	}
	s.mu.Unlock()
	return nil
}

// ContextWindow returns the bounded turn slice for prompt construction,
// oldest first.
func (m *Manager) ContextWindow(sessionID string) ([]Turn, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...), nil
}

// History returns the full persisted turn sequence, including turns evicted
// from the active window.
func (m *Manager) History(ctx context.Context, sessionID string) ([]Turn, error) {
	if _, err := m.get(sessionID); err != nil {
		return nil, err
	}
	return m.archive.ListTurns(ctx, sessionID)
}

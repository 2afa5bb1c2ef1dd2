package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"opsagent/internal/llm"
)

var errMissingID = errors.New("session id is empty")

type Session struct {
	ID        string        `json:"id"`
	Messages  []llm.Message `json:"messages"`
	Pending   *PendingTurn  `json:"pending,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PendingTurn is a tool-use turn parked until its interrupts are answered.
// Results holds the tool uses of the turn that already finished.
type PendingTurn struct {
	ToolUses     []llm.ToolUse             `json:"tool_uses"`
	Results      map[string]llm.ToolResult `json:"results"`
	InterruptIDs []string                  `json:"interrupt_ids"`
}

func New(id string) *Session {
	return &Session{ID: id, Messages: []llm.Message{}}
}

// Store loads and saves sessions. Load returns a fresh session when none
// exists for id.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]byte{}}
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	raw, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return New(id), nil
	}
	return decode(id, raw)
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return errMissingID
	}
	s.UpdatedAt = time.Now().UTC()
	raw, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.ID] = raw
	m.mu.Unlock()
	return nil
}

func encode(s *Session) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return b, nil
}

func decode(id string, raw []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if s.ID == "" {
		s.ID = id
	}
	if s.Messages == nil {
		s.Messages = []llm.Message{}
	}
	return &s, nil
}

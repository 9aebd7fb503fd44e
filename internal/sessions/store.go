// Package sessions ties the runtime together: each session owns an AI
// loop, a conversation context, and a transcript, and the manager exposes
// the control surface the intervention engine drives.
package sessions

import (
	"context"
	"sync"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// TranscriptStore persists session messages. The loop keeps its working
// context in memory; the transcript is the durable copy used for restart
// recovery and offline analysis.
type TranscriptStore interface {
	// SaveMessages appends messages to a session's transcript.
	SaveMessages(ctx context.Context, sessionID string, msgs []models.Message) error

	// Messages returns a session's transcript, oldest first.
	Messages(ctx context.Context, sessionID string) ([]models.Message, error)

	// DeleteSession removes a session's transcript.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close releases the store.
	Close() error
}

// MemoryStore is the in-process TranscriptStore used by tests and by serve
// mode when no state path is configured.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]models.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]models.Message)}
}

func (s *MemoryStore) SaveMessages(_ context.Context, sessionID string, msgs []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append(s.data[sessionID], msgs...)
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, sessionID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.data[sessionID]))
	copy(out, s.data[sessionID])
	return out, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

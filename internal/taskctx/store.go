// Package taskctx provides the per-task conversation context passed to the
// LLM on every call.
package taskctx

import (
	"sync"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// Store holds the ordered message history for one task.
//
// The store is single-writer: only the owning AI loop appends. Reads return
// copies so monitors and snapshots never alias the live slice. Stores are
// never shared across tasks; callers decide window policy.
type Store struct {
	mu       sync.RWMutex
	taskID   string
	messages []models.Message
}

// New creates an empty store for a task.
func New(taskID string) *Store {
	return &Store{taskID: taskID}
}

// TaskID returns the owning task id.
func (s *Store) TaskID() string { return s.taskID }

// Add appends a message.
func (s *Store) Add(msg models.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// Clear resets the history.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

// History returns the full ordered message sequence as a copy.
func (s *Store) History() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recent message, if any.
func (s *Store) Last() (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Restore replaces the history with a snapshot. Used by session restart to
// recreate a loop with preserved context.
func (s *Store) Restore(snapshot []models.Message) {
	s.mu.Lock()
	s.messages = make([]models.Message, len(snapshot))
	copy(s.messages, snapshot)
	s.mu.Unlock()
}

// Package mailbox implements the in-process message bus between named
// agents.
package mailbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// Mailbox routes messages between agents by well-known name. Delivery is
// in-process, ordered per recipient, at-most-once, and synchronous; there
// is no background worker. Operations are short and mutex-guarded, so the
// mailbox is safe to call from any task.
type Mailbox struct {
	mu     sync.Mutex
	queues map[string][]*models.MailMessage
	byID   map[string]*models.MailMessage
}

// New creates an empty mailbox.
func New() *Mailbox {
	return &Mailbox{
		queues: make(map[string][]*models.MailMessage),
		byID:   make(map[string]*models.MailMessage),
	}
}

// Send delivers a message to the recipient's queue and returns its id.
func (m *Mailbox) Send(from, to, subject, body string) string {
	msg := &models.MailMessage{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	m.queues[to] = append(m.queues[to], msg)
	m.byID[msg.ID] = msg
	m.mu.Unlock()
	return msg.ID
}

// Check returns the unread messages for an agent, oldest first, and marks
// them read.
func (m *Mailbox) Check(agent string) []models.MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var unread []models.MailMessage
	for _, msg := range m.queues[agent] {
		if msg.Read {
			continue
		}
		msg.Read = true
		unread = append(unread, *msg)
	}
	return unread
}

// Reply sends a response back to the sender of an earlier message.
func (m *Mailbox) Reply(messageID, body string) (string, error) {
	m.mu.Lock()
	original, ok := m.byID[messageID]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown message id %q", messageID)
	}

	reply := &models.MailMessage{
		ID:        uuid.NewString(),
		From:      original.To,
		To:        original.From,
		Subject:   "Re: " + original.Subject,
		Body:      body,
		ReplyTo:   original.ID,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	m.queues[reply.To] = append(m.queues[reply.To], reply)
	m.byID[reply.ID] = reply
	m.mu.Unlock()
	return reply.ID, nil
}

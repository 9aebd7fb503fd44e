package models

import "time"

// MailMessage is one entry in the in-process agent mailbox.
type MailMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from_agent"`
	To        string    `json:"to_agent"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Package mailtools exposes the agent mailbox as tools: send_mail,
// check_mail, reply_mail. The sending identity is the agent bound to the
// calling session's context.
package mailtools

import (
	"context"
	"encoding/json"

	"github.com/aiwhisperer/aiwhisperer/internal/mailbox"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func callerAgent(ctx context.Context) string {
	if id := observability.GetAgentID(ctx); id != "" {
		return id
	}
	return "user"
}

// SendTool implements send_mail.
type SendTool struct {
	mail *mailbox.Mailbox
}

// NewSendTool creates the send_mail tool.
func NewSendTool(mail *mailbox.Mailbox) *SendTool { return &SendTool{mail: mail} }

func (t *SendTool) Name() string { return "send_mail" }

func (t *SendTool) Description() string {
	return "Send a message to another agent's mailbox."
}

func (t *SendTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"to": {"type": "string", "description": "Recipient agent id, e.g. patricia."},
			"subject": {"type": "string"},
			"body": {"type": "string"}
		},
		"required": ["to", "body"]
	}`)
}

func (t *SendTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}

	id := t.mail.Send(callerAgent(ctx), input.To, input.Subject, input.Body)
	return map[string]any{"message_id": id, "to": input.To}, nil
}

func (t *SendTool) Category() string { return "mailbox" }
func (t *SendTool) Tags() []string   { return []string{"mail", "agents"} }

// CheckTool implements check_mail.
type CheckTool struct {
	mail *mailbox.Mailbox
}

// NewCheckTool creates the check_mail tool.
func NewCheckTool(mail *mailbox.Mailbox) *CheckTool { return &CheckTool{mail: mail} }

func (t *CheckTool) Name() string { return "check_mail" }

func (t *CheckTool) Description() string {
	return "Fetch your unread mailbox messages. Fetching marks them read."
}

func (t *CheckTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *CheckTool) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	unread := t.mail.Check(callerAgent(ctx))
	return map[string]any{"messages": unread, "count": len(unread)}, nil
}

func (t *CheckTool) Category() string { return "mailbox" }
func (t *CheckTool) Tags() []string   { return []string{"mail", "agents"} }

// ReplyTool implements reply_mail.
type ReplyTool struct {
	mail *mailbox.Mailbox
}

// NewReplyTool creates the reply_mail tool.
func NewReplyTool(mail *mailbox.Mailbox) *ReplyTool { return &ReplyTool{mail: mail} }

func (t *ReplyTool) Name() string { return "reply_mail" }

func (t *ReplyTool) Description() string {
	return "Reply to a mailbox message by its id."
}

func (t *ReplyTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"message_id": {"type": "string", "description": "Id of the message being answered."},
			"body": {"type": "string"}
		},
		"required": ["message_id", "body"]
	}`)
}

func (t *ReplyTool) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var input struct {
		MessageID string `json:"message_id"`
		Body      string `json:"body"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}

	id, err := t.mail.Reply(input.MessageID, input.Body)
	if err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "%v", err)
	}
	return map[string]any{"message_id": id}, nil
}

func (t *ReplyTool) Category() string { return "mailbox" }
func (t *ReplyTool) Tags() []string   { return []string{"mail", "agents"} }

package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// SQLiteStore persists transcripts in a single SQLite file under
// .WHISPER/state. The cgo-free driver keeps the binary self-contained.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	task_id       TEXT,
	role          TEXT NOT NULL,
	content       TEXT,
	tool_calls    TEXT,
	tool_call_id  TEXT,
	metadata      TEXT,
	created_at    TIMESTAMP NOT NULL,
	seq           INTEGER
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
`

// NewSQLiteStore opens (and if necessary creates) the transcript database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	// The store is accessed from session goroutines and CLI commands; one
	// writer connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create transcript schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveMessages(ctx context.Context, sessionID string, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transcript tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return fmt.Errorf("read transcript seq: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages
		(id, session_id, task_id, role, content, tool_calls, tool_call_id, metadata, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transcript insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		seq++
		id := msg.ID
		if id == "" {
			id = uuid.NewString()
		}
		toolCalls, err := marshalNullable(msg.ToolCalls)
		if err != nil {
			return err
		}
		metadata, err := marshalNullable(msg.Metadata)
		if err != nil {
			return err
		}
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			id, sessionID, msg.TaskID, string(msg.Role), msg.Content,
			toolCalls, msg.ToolCallID, metadata, createdAt, seq); err != nil {
			return fmt.Errorf("insert transcript message: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, task_id, role, content, tool_calls, tool_call_id, metadata, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		var toolCalls, metadata sql.NullString
		if err := rows.Scan(&msg.ID, &msg.TaskID, &role, &msg.Content,
			&toolCalls, &msg.ToolCallID, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		msg.SessionID = sessionID
		msg.Role = models.Role(role)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func marshalNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode transcript field: %w", err)
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

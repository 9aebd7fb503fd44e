package sessions

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	msgs := []models.Message{
		{Role: models.RoleSystem, Content: "You are Alice."},
		{Role: models.RoleUser, Content: "list the docs"},
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "list_files", Arguments: json.RawMessage(`{"path":"docs"}`)},
			},
		},
		{
			Role:       models.RoleTool,
			Content:    `{"ok":true,"data":{"entries":[]}}`,
			ToolCallID: "call_1",
			Metadata:   map[string]any{"duration_ms": float64(12)},
		},
	}
	if err := store.SaveMessages(ctx, "s1", msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := store.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("length = %d, want %d", len(got), len(msgs))
	}
	for i := range msgs {
		if got[i].Role != msgs[i].Role || got[i].Content != msgs[i].Content {
			t.Errorf("message %d = %s %q, want %s %q", i, got[i].Role, got[i].Content, msgs[i].Role, msgs[i].Content)
		}
	}
	if len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].Name != "list_files" {
		t.Errorf("tool calls = %+v", got[2].ToolCalls)
	}
	if got[3].ToolCallID != "call_1" {
		t.Errorf("tool call id = %q", got[3].ToolCallID)
	}
	if got[3].Metadata["duration_ms"] != float64(12) {
		t.Errorf("metadata = %v", got[3].Metadata)
	}
}

func TestSQLiteAppendsAcrossBatches(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	store.SaveMessages(ctx, "s1", []models.Message{
		{Role: models.RoleUser, Content: "first"},
	})
	store.SaveMessages(ctx, "s1", []models.Message{
		{Role: models.RoleAssistant, Content: "second"},
		{Role: models.RoleUser, Content: "third"},
	})

	got, err := store.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i, content := range want {
		if got[i].Content != content {
			t.Errorf("message %d = %q, want %q", i, got[i].Content, content)
		}
	}
}

func TestSQLiteSessionsAreIsolated(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	store.SaveMessages(ctx, "s1", []models.Message{{Role: models.RoleUser, Content: "mine"}})
	store.SaveMessages(ctx, "s2", []models.Message{{Role: models.RoleUser, Content: "theirs"}})

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if msgs, _ := store.Messages(ctx, "s1"); len(msgs) != 0 {
		t.Error("deleted transcript still present")
	}
	if msgs, _ := store.Messages(ctx, "s2"); len(msgs) != 1 {
		t.Error("unrelated transcript was affected")
	}
}

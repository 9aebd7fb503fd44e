package taskctx

import (
	"testing"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func TestStoreAppendAndHistory(t *testing.T) {
	s := New("task-1")
	if s.TaskID() != "task-1" {
		t.Errorf("TaskID() = %q, want task-1", s.TaskID())
	}
	if s.Len() != 0 {
		t.Errorf("empty store Len() = %d", s.Len())
	}

	s.Add(models.Message{Role: models.RoleSystem, Content: "sys"})
	s.Add(models.Message{Role: models.RoleUser, Content: "hello"})
	s.Add(models.Message{Role: models.RoleAssistant, Content: "hi"})

	history := s.History()
	if len(history) != 3 {
		t.Fatalf("History() length = %d, want 3", len(history))
	}
	want := []models.Role{models.RoleSystem, models.RoleUser, models.RoleAssistant}
	for i, role := range want {
		if history[i].Role != role {
			t.Errorf("history[%d].Role = %s, want %s", i, history[i].Role, role)
		}
	}

	last, ok := s.Last()
	if !ok || last.Content != "hi" {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := New("task-1")
	s.Add(models.Message{Role: models.RoleUser, Content: "original"})

	history := s.History()
	history[0].Content = "mutated"

	again := s.History()
	if again[0].Content != "original" {
		t.Errorf("store content = %q, external mutation leaked in", again[0].Content)
	}
}

func TestRestoreReplacesHistory(t *testing.T) {
	s := New("task-1")
	s.Add(models.Message{Role: models.RoleUser, Content: "before"})

	snapshot := []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "restored"},
	}
	s.Restore(snapshot)

	if s.Len() != 2 {
		t.Fatalf("Len() = %d after restore, want 2", s.Len())
	}

	// The snapshot slice must not alias the store.
	snapshot[1].Content = "mutated"
	if got := s.History()[1].Content; got != "restored" {
		t.Errorf("restored content = %q, want %q", got, "restored")
	}
}

func TestClear(t *testing.T) {
	s := New("task-1")
	s.Add(models.Message{Role: models.RoleUser, Content: "x"})
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", s.Len())
	}
	if _, ok := s.Last(); ok {
		t.Error("Last() reported a message after Clear")
	}
}

package doctor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func TestAnalyzeEmptySession(t *testing.T) {
	a := NewSessionAnalyzer(observability.NewEventLog(0), 0)
	if _, err := a.Analyze(context.Background(), "ghost"); err == nil {
		t.Error("analysis of an empty session succeeded")
	}
}

func TestAnalyzeSummarisesActivity(t *testing.T) {
	events := observability.NewEventLog(0)
	events.Append(models.NewSessionEvent(models.EventResponseReceived, "s1").WithDuration(100 * time.Millisecond))
	events.Append(models.NewSessionEvent(models.EventResponseReceived, "s1").WithDuration(300 * time.Millisecond))
	events.Append(models.NewSessionEvent(models.EventToolEnd, "s1").WithTool("read_file", "c1"))
	events.Append(models.NewSessionEvent(models.EventToolEnd, "s1").WithTool("read_file", "c2").WithError("gone"))
	events.Append(models.NewSessionEvent(models.EventToolEnd, "s1").WithTool("send_mail", "c3"))

	a := NewSessionAnalyzer(events, 50)
	findings, err := a.Analyze(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	for _, want := range []string{
		"5 events inspected, 1 errors",
		"2 model responses, avg 200ms",
		"tool read_file: 2 calls, 1 failed",
		"tool send_mail: 1 calls",
	} {
		if !strings.Contains(findings, want) {
			t.Errorf("findings missing %q:\n%s", want, findings)
		}
	}

	// Tools are listed deterministically.
	if strings.Index(findings, "read_file") > strings.Index(findings, "send_mail") {
		t.Error("tool lines not sorted")
	}
}

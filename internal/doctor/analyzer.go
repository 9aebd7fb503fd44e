package doctor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// SessionAnalyzer produces the diagnostic findings the intervention
// engine's analysis strategies inject back into a struggling session. It
// reads the same event stream the monitor does.
type SessionAnalyzer struct {
	events *observability.EventLog
	window int
}

// NewSessionAnalyzer creates an analyzer over the event log.
func NewSessionAnalyzer(events *observability.EventLog, window int) *SessionAnalyzer {
	if window <= 0 {
		window = 100
	}
	return &SessionAnalyzer{events: events, window: window}
}

// Analyze summarises the session's recent behaviour: error hotspots,
// repeated tools, and response latency.
func (a *SessionAnalyzer) Analyze(_ context.Context, sessionID string) (string, error) {
	events := a.events.Recent(sessionID, a.window)
	if len(events) == 0 {
		return "", fmt.Errorf("no recent events for session %s", sessionID)
	}

	var (
		errorCount int
		toolCounts = make(map[string]int)
		toolErrors = make(map[string]int)
		responses  int
		totalMS    int64
	)
	for _, ev := range events {
		if ev.IsError {
			errorCount++
		}
		switch ev.Type {
		case models.EventToolEnd:
			toolCounts[ev.ToolName]++
			if ev.IsError {
				toolErrors[ev.ToolName]++
			}
		case models.EventResponseReceived:
			responses++
			totalMS += ev.DurationMS
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- %d events inspected, %d errors\n", len(events), errorCount)
	if responses > 0 {
		fmt.Fprintf(&b, "- %d model responses, avg %dms\n", responses, totalMS/int64(responses))
	}
	for _, tool := range sortedKeys(toolCounts) {
		line := fmt.Sprintf("- tool %s: %d calls", tool, toolCounts[tool])
		if n := toolErrors[tool]; n > 0 {
			line += fmt.Sprintf(", %d failed", n)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

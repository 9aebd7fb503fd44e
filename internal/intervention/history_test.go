package intervention

import (
	"testing"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func rec(session string, strategy models.Strategy, outcome models.Outcome) models.InterventionRecord {
	return models.InterventionRecord{SessionID: session, Strategy: strategy, Outcome: outcome}
}

func TestHistoryStats(t *testing.T) {
	h := NewHistory()
	h.Record(rec("s1", models.StrategyPromptInjection, models.OutcomeSuccess))
	h.Record(rec("s1", models.StrategyPromptInjection, models.OutcomePartial))
	h.Record(rec("s2", models.StrategyPromptInjection, models.OutcomeFailure))
	h.Record(rec("s2", models.StrategyPromptInjection, models.OutcomeSkipped))

	stats := h.Stats()[models.StrategyPromptInjection]
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3 (skips excluded)", stats.Total)
	}
	if stats.Success != 1 || stats.Partial != 1 || stats.Failure != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestShouldSkipWindowAges(t *testing.T) {
	h := NewHistory()
	h.Record(rec("s1", models.StrategyToolRetry, models.OutcomeFailure))
	h.Record(rec("s1", models.StrategyToolRetry, models.OutcomeFailure))
	if !h.ShouldSkip("s1", models.StrategyToolRetry) {
		t.Fatal("two recent failures should disable the strategy")
	}

	// Push the failures out of the five-record window.
	for i := 0; i < skipWindow; i++ {
		h.Record(rec("s1", models.StrategyPromptInjection, models.OutcomeSuccess))
	}
	if h.ShouldSkip("s1", models.StrategyToolRetry) {
		t.Error("failures outside the window still disable the strategy")
	}
}

func TestAttemptsExcludesSkips(t *testing.T) {
	h := NewHistory()
	h.Record(rec("s1", models.StrategySessionRestart, models.OutcomePartial))
	h.Record(rec("s1", models.StrategySessionRestart, models.OutcomeSkipped))
	h.Record(rec("s1", models.StrategySessionRestart, models.OutcomeFailure))

	if got := h.Attempts("s1", models.StrategySessionRestart); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestHistoryDrop(t *testing.T) {
	h := NewHistory()
	h.Record(rec("s1", models.StrategyPromptInjection, models.OutcomeSuccess))
	h.Drop("s1")

	if h.Count("s1") != 0 {
		t.Error("dropped session still has records")
	}
	if h.Stats()[models.StrategyPromptInjection].Total != 1 {
		t.Error("global strategy counters should survive a session drop")
	}
}

// Package intervention implements automated recovery for unhealthy
// sessions: an orchestrator drains monitor alerts into per-session workers
// that walk an ordered strategy chain until the session recovers.
package intervention

import (
	"sync"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// skipWindow is how many recent interventions are consulted when deciding
// whether a strategy has been failing too often to retry.
const skipWindow = 5

// skipFailures is the failure count within skipWindow that disables a
// strategy for a session.
const skipFailures = 2

// History keeps per-session intervention records and running per-strategy
// success counters. Records are kept in memory for the process lifetime;
// durable traces go to the session event log.
type History struct {
	mu        sync.Mutex
	bySession map[string][]models.InterventionRecord
	stats     map[models.Strategy]*models.StrategyStats
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		bySession: make(map[string][]models.InterventionRecord),
		stats:     make(map[models.Strategy]*models.StrategyStats),
	}
}

// Record appends an intervention record and updates strategy counters.
// Skipped attempts are recorded but do not count toward strategy totals.
func (h *History) Record(rec models.InterventionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.bySession[rec.SessionID] = append(h.bySession[rec.SessionID], rec)
	if rec.Outcome == models.OutcomeSkipped {
		return
	}

	s := h.stats[rec.Strategy]
	if s == nil {
		s = &models.StrategyStats{}
		h.stats[rec.Strategy] = s
	}
	s.Total++
	switch rec.Outcome {
	case models.OutcomeSuccess:
		s.Success++
	case models.OutcomePartial:
		s.Partial++
	case models.OutcomeFailure, models.OutcomeEscalated:
		s.Failure++
	}
}

// ShouldSkip reports whether the strategy failed at least twice within the
// session's last five interventions.
func (h *History) ShouldSkip(sessionID string, strategy models.Strategy) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	recs := h.bySession[sessionID]
	if len(recs) > skipWindow {
		recs = recs[len(recs)-skipWindow:]
	}
	failures := 0
	for _, rec := range recs {
		if rec.Strategy == strategy && rec.Outcome == models.OutcomeFailure {
			failures++
		}
	}
	return failures >= skipFailures
}

// Count returns how many interventions (including skipped ones) have been
// recorded for a session.
func (h *History) Count(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bySession[sessionID])
}

// Attempts returns how many non-skipped attempts of a strategy the session
// has seen. Used to cap session restarts.
func (h *History) Attempts(sessionID string, strategy models.Strategy) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, rec := range h.bySession[sessionID] {
		if rec.Strategy == strategy && rec.Outcome != models.OutcomeSkipped {
			n++
		}
	}
	return n
}

// Records returns a copy of the session's intervention records, oldest
// first.
func (h *History) Records(sessionID string) []models.InterventionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.InterventionRecord, len(h.bySession[sessionID]))
	copy(out, h.bySession[sessionID])
	return out
}

// Stats returns a snapshot of the per-strategy running counters.
func (h *History) Stats() map[models.Strategy]models.StrategyStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[models.Strategy]models.StrategyStats, len(h.stats))
	for k, v := range h.stats {
		out[k] = *v
	}
	return out
}

// Drop forgets a session's records. Strategy counters are global and stay.
func (h *History) Drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.bySession, sessionID)
}

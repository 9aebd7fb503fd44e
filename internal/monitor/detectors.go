package monitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// detector inspects recomputed metrics and the recent event window and
// returns an alert when its condition holds. Detectors run in a fixed
// order; the order is part of the observable contract because the
// intervention engine serialises per-session work.
type detector func(cfg config.MonitorConfig, m *SessionMetrics, events []*models.SessionEvent, baselines *BaselineStore, now time.Time) *models.Alert

// detectors in evaluation order: stall, tool loop, error rate, slow
// response, memory spike.
var detectors = []detector{
	detectStall,
	detectToolLoop,
	detectHighErrorRate,
	detectSlowResponse,
	detectMemorySpike,
}

func newAlert(kind models.AlertKind, severity models.Severity, sessionID, msg string) *models.Alert {
	return &models.Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  severity,
		SessionID: sessionID,
		Message:   msg,
		Details:   make(map[string]any),
		Timestamp: time.Now(),
	}
}

func detectStall(cfg config.MonitorConfig, m *SessionMetrics, _ []*models.SessionEvent, _ *BaselineStore, now time.Time) *models.Alert {
	stall := m.StallDuration(now)
	if stall <= cfg.StallThreshold {
		return nil
	}
	alert := newAlert(models.AlertSessionStall, models.SeverityHigh, m.SessionID,
		fmt.Sprintf("no activity for %s (threshold %s)", stall.Round(time.Second), cfg.StallThreshold))
	alert.RequiresIntervention = true
	alert.Details["stall_seconds"] = stall.Seconds()
	return alert
}

func detectToolLoop(cfg config.MonitorConfig, m *SessionMetrics, events []*models.SessionEvent, _ *BaselineStore, _ time.Time) *models.Alert {
	window := events
	if len(window) > cfg.ToolLoopWindow {
		window = window[len(window)-cfg.ToolLoopWindow:]
	}
	counts := make(map[string]int)
	for _, ev := range window {
		if ev.Type == models.EventToolEnd && ev.ToolName != "" {
			counts[ev.ToolName]++
		}
	}
	for tool, n := range counts {
		if n >= cfg.ToolLoopCount {
			alert := newAlert(models.AlertToolLoop, models.SeverityCritical, m.SessionID,
				fmt.Sprintf("tool %q executed %d times in the last %d events", tool, n, cfg.ToolLoopWindow))
			alert.RequiresIntervention = true
			alert.Details["tool"] = tool
			alert.Details["count"] = n
			return alert
		}
	}
	return nil
}

func detectHighErrorRate(cfg config.MonitorConfig, m *SessionMetrics, _ []*models.SessionEvent, _ *BaselineStore, _ time.Time) *models.Alert {
	rate := m.ErrorRate()
	if m.MessageCount == 0 || rate <= cfg.ErrorRateLimit {
		return nil
	}
	alert := newAlert(models.AlertHighErrorRate, models.SeverityHigh, m.SessionID,
		fmt.Sprintf("error rate %.2f exceeds limit %.2f", rate, cfg.ErrorRateLimit))
	alert.RequiresIntervention = true
	alert.Details["error_count"] = m.ErrorCount
	alert.Details["message_count"] = m.MessageCount
	return alert
}

func detectSlowResponse(cfg config.MonitorConfig, m *SessionMetrics, _ []*models.SessionEvent, baselines *BaselineStore, _ time.Time) *models.Alert {
	avg := m.AvgResponseMS()
	if avg == 0 {
		return nil
	}
	baseline := baselines.Update(m.SessionID, "response_ms", avg)
	// The baseline was seeded with the first sample, so early windows
	// compare against themselves; the ratio keeps start-up noise down.
	if baseline == 0 || avg <= cfg.SlowResponseRatio*baseline {
		return nil
	}
	alert := newAlert(models.AlertSlowResponse, models.SeverityMedium, m.SessionID,
		fmt.Sprintf("avg response %.0fms is over %.1fx baseline %.0fms", avg, cfg.SlowResponseRatio, baseline))
	alert.Details["avg_response_ms"] = avg
	alert.Details["baseline_ms"] = baseline
	return alert
}

func detectMemorySpike(cfg config.MonitorConfig, m *SessionMetrics, _ []*models.SessionEvent, _ *BaselineStore, _ time.Time) *models.Alert {
	samples := m.MemorySamples()
	seed := m.MemorySeed()
	if seed == 0 || m.memorySeen < memorySeedSamples+1 || len(samples) == 0 {
		return nil
	}
	current := samples[len(samples)-1]
	if current <= cfg.MemorySpikeRatio*seed {
		return nil
	}
	alert := newAlert(models.AlertMemorySpike, models.SeverityMedium, m.SessionID,
		fmt.Sprintf("memory %.0f bytes exceeds %.1fx early mean %.0f", current, cfg.MemorySpikeRatio, seed))
	alert.Details["current_bytes"] = current
	alert.Details["seed_mean_bytes"] = seed
	return alert
}

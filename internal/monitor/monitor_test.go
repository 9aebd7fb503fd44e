package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

type sinkRecorder struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (s *sinkRecorder) sink(a *models.Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
}

func (s *sinkRecorder) kinds() []models.AlertKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AlertKind, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = a.Kind
	}
	return out
}

func newTestMonitor(t *testing.T) (*Monitor, *observability.EventLog, *sinkRecorder) {
	t.Helper()
	events := observability.NewEventLog(0)
	rec := &sinkRecorder{}
	m := New(config.Default().Monitor, events, rec.sink, nil, nil)
	m.memSampler = func() float64 { return 100 }
	t.Cleanup(m.Stop)
	return m, events, rec
}

func hasKind(alerts []*models.Alert, kind models.AlertKind) *models.Alert {
	for _, a := range alerts {
		if a.Kind == kind {
			return a
		}
	}
	return nil
}

func TestCheckNowUnwatchedSession(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	if alerts := m.CheckNow("ghost"); alerts != nil {
		t.Errorf("CheckNow on unwatched session = %v", alerts)
	}
}

func TestStallDetection(t *testing.T) {
	m, _, rec := newTestMonitor(t)
	m.Watch("s1")

	// No events at all: last activity is the watch time.
	m.now = func() time.Time { return time.Now().Add(31 * time.Second) }
	alerts := m.CheckNow("s1")

	stall := hasKind(alerts, models.AlertSessionStall)
	if stall == nil {
		t.Fatalf("no stall alert in %v", alerts)
	}
	if stall.Severity != models.SeverityHigh || !stall.RequiresIntervention {
		t.Errorf("stall alert = severity %s intervention %v", stall.Severity, stall.RequiresIntervention)
	}
	sunk := false
	for _, kind := range rec.kinds() {
		if kind == models.AlertSessionStall {
			sunk = true
		}
	}
	if !sunk {
		t.Error("sink did not receive the stall alert")
	}
}

func TestStallAlertDedupAndRearm(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	m.Watch("s1")

	m.now = func() time.Time { return time.Now().Add(31 * time.Second) }
	if a := m.CheckNow("s1"); hasKind(a, models.AlertSessionStall) == nil {
		t.Fatal("first pass did not raise the stall")
	}

	// Condition still holds: the kind is suppressed.
	if a := m.CheckNow("s1"); hasKind(a, models.AlertSessionStall) != nil {
		t.Fatal("second pass re-raised a still-firing stall")
	}

	// Condition clears, the kind re-arms, then fires again.
	m.now = time.Now
	if a := m.CheckNow("s1"); hasKind(a, models.AlertSessionStall) != nil {
		t.Fatal("stall raised while the session is active")
	}
	m.now = func() time.Time { return time.Now().Add(31 * time.Second) }
	if a := m.CheckNow("s1"); hasKind(a, models.AlertSessionStall) == nil {
		t.Fatal("re-armed stall did not fire")
	}
}

func TestToolLoopDetection(t *testing.T) {
	m, events, _ := newTestMonitor(t)
	m.Watch("s1")

	for i := 0; i < config.Default().Monitor.ToolLoopCount; i++ {
		events.Append(models.NewSessionEvent(models.EventToolEnd, "s1").WithTool("read_file", "c1"))
	}

	alerts := m.CheckNow("s1")
	loop := hasKind(alerts, models.AlertToolLoop)
	if loop == nil {
		t.Fatalf("no tool loop alert in %v", alerts)
	}
	if loop.Severity != models.SeverityCritical {
		t.Errorf("severity = %s, want critical", loop.Severity)
	}
	if loop.Details["tool"] != "read_file" {
		t.Errorf("details = %v", loop.Details)
	}
}

func TestToolLoopBelowThreshold(t *testing.T) {
	m, events, _ := newTestMonitor(t)
	m.Watch("s1")

	for i := 0; i < config.Default().Monitor.ToolLoopCount-1; i++ {
		events.Append(models.NewSessionEvent(models.EventToolEnd, "s1").WithTool("read_file", "c1"))
	}
	if a := m.CheckNow("s1"); hasKind(a, models.AlertToolLoop) != nil {
		t.Error("tool loop raised below the repeat threshold")
	}
}

func TestHighErrorRateDetection(t *testing.T) {
	m, events, _ := newTestMonitor(t)
	m.Watch("s1")

	for i := 0; i < 5; i++ {
		ev := models.NewSessionEvent(models.EventResponseReceived, "s1").WithDuration(50 * time.Millisecond)
		if i < 2 {
			ev = ev.WithError("provider failure")
		}
		events.Append(ev)
	}

	alerts := m.CheckNow("s1")
	rate := hasKind(alerts, models.AlertHighErrorRate)
	if rate == nil {
		t.Fatalf("no error-rate alert in %v", alerts)
	}
	if rate.Details["error_count"] != 2 || rate.Details["message_count"] != 5 {
		t.Errorf("details = %v", rate.Details)
	}
}

func TestSlowResponseDetection(t *testing.T) {
	m, events, _ := newTestMonitor(t)
	m.Watch("s1")

	for i := 0; i < 4; i++ {
		events.Append(models.NewSessionEvent(models.EventResponseReceived, "s1").WithDuration(100 * time.Millisecond))
	}
	if a := m.CheckNow("s1"); hasKind(a, models.AlertSlowResponse) != nil {
		t.Fatal("slow response raised on the seeding window")
	}

	for i := 0; i < 20; i++ {
		events.Append(models.NewSessionEvent(models.EventResponseReceived, "s1").WithDuration(1000 * time.Millisecond))
	}
	alerts := m.CheckNow("s1")
	slow := hasKind(alerts, models.AlertSlowResponse)
	if slow == nil {
		t.Fatalf("no slow-response alert in %v", alerts)
	}
	if slow.Severity != models.SeverityMedium {
		t.Errorf("severity = %s, want medium", slow.Severity)
	}
}

func TestMemorySpikeDetection(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	samples := []float64{100, 100, 100, 100, 100, 1000}
	i := 0
	m.memSampler = func() float64 {
		s := samples[i%len(samples)]
		i++
		return s
	}
	m.Watch("s1")

	var spike *models.Alert
	for range samples {
		if a := hasKind(m.CheckNow("s1"), models.AlertMemorySpike); a != nil {
			spike = a
		}
	}
	if spike == nil {
		t.Fatal("no memory spike alert after sample jump")
	}
	if spike.Details["current_bytes"] != float64(1000) {
		t.Errorf("details = %v", spike.Details)
	}
}

func TestMemorySpikeSeedSurvivesRingWrap(t *testing.T) {
	m := NewSessionMetrics("s1")
	for i := 0; i < 5; i++ {
		m.PushMemorySample(100)
	}
	// Wrap the retained ring with elevated samples; the baseline stays
	// pinned to the earliest five, so the sustained growth still alerts.
	for i := 0; i < memoryWindow+20; i++ {
		m.PushMemorySample(1000)
	}
	if seed := m.MemorySeed(); seed != 100 {
		t.Fatalf("seed = %.0f, want 100", seed)
	}

	alert := detectMemorySpike(config.Default().Monitor, m, nil, nil, time.Now())
	if alert == nil {
		t.Fatal("sustained high memory after ring wrap produced no alert")
	}
	if alert.Kind != models.AlertMemorySpike {
		t.Errorf("kind = %s", alert.Kind)
	}
}

func TestUnwatchForgetsSession(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	m.Watch("s1")
	if _, ok := m.Metrics("s1"); !ok {
		t.Fatal("watched session has no metrics")
	}

	m.Unwatch("s1")
	if _, ok := m.Metrics("s1"); ok {
		t.Error("unwatched session still has metrics")
	}
	if alerts := m.CheckNow("s1"); alerts != nil {
		t.Errorf("unwatched session still checked: %v", alerts)
	}
}

func TestBaselineStore(t *testing.T) {
	b := NewBaselineStore(0.5)

	if got := b.Update("s1", "response_ms", 100); got != 100 {
		t.Errorf("seed = %v, want 100", got)
	}
	if got := b.Update("s1", "response_ms", 200); got != 150 {
		t.Errorf("ema = %v, want 150", got)
	}
	if v, ok := b.Get("s1", "response_ms"); !ok || v != 150 {
		t.Errorf("Get = %v, %v", v, ok)
	}

	b.Drop("s1")
	if _, ok := b.Get("s1", "response_ms"); ok {
		t.Error("dropped baseline still present")
	}
}

func TestBaselineStoreClampsAlpha(t *testing.T) {
	b := NewBaselineStore(-1)
	b.Update("s1", "m", 100)
	if got := b.Update("s1", "m", 200); got != 0.1*200+0.9*100 {
		t.Errorf("ema with default alpha = %v", got)
	}
}

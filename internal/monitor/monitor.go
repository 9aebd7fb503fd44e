package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// AlertSink receives every alert a monitor raises. The intervention engine
// subscribes here; the monitor never calls into sessions directly, which
// keeps the session ↔ monitor ↔ intervention triangle acyclic.
type AlertSink func(*models.Alert)

// Monitor supervises live sessions. Each watched session gets its own
// polling task that recomputes metrics from the event log and runs the
// anomaly detectors in fixed order.
type Monitor struct {
	cfg       config.MonitorConfig
	events    *observability.EventLog
	baselines *BaselineStore
	sink      AlertSink
	logger    *observability.Logger
	obs       *observability.Metrics

	// Injectable for tests.
	now        func() time.Time
	memSampler func() float64

	mu       sync.Mutex
	sessions map[string]*sessionTask
	firing   map[string]map[models.AlertKind]bool
	stopped  bool
	wg       sync.WaitGroup
}

type sessionTask struct {
	cancel  context.CancelFunc
	metrics *SessionMetrics
}

// New creates a monitor. The sink may be nil when only on-demand checks are
// wanted (the doctor uses it that way).
func New(cfg config.MonitorConfig, events *observability.EventLog, sink AlertSink, logger *observability.Logger, obs *observability.Metrics) *Monitor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Monitor{
		cfg:        cfg,
		events:     events,
		baselines:  NewBaselineStore(cfg.SlowResponseAlpha),
		sink:       sink,
		logger:     logger,
		obs:        obs,
		now:        time.Now,
		memSampler: heapInUse,
		sessions:   make(map[string]*sessionTask),
		firing:     make(map[string]map[models.AlertKind]bool),
	}
}

func heapInUse() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapInuse)
}

// Watch starts the periodic check task for a session. Watching an already
// watched session is a no-op.
func (m *Monitor) Watch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if _, ok := m.sessions[sessionID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &sessionTask{
		cancel:  cancel,
		metrics: NewSessionMetrics(sessionID),
	}
	m.sessions[sessionID] = task

	m.wg.Add(1)
	go m.run(ctx, sessionID, task)
}

// Unwatch stops the session's check task and forgets its state.
func (m *Monitor) Unwatch(sessionID string) {
	m.mu.Lock()
	task, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		delete(m.firing, sessionID)
	}
	m.mu.Unlock()
	if ok {
		task.cancel()
	}
	m.baselines.Drop(sessionID)
}

// Stop cancels all per-session tasks and waits for them to drain.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	tasks := make([]*sessionTask, 0, len(m.sessions))
	for id, task := range m.sessions {
		tasks = append(tasks, task)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, sessionID string, task *sessionTask) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkOnce(sessionID, task)
		}
	}
}

// CheckNow runs one detection pass for a session immediately. Used by the
// doctor's runtime self-test and by monitor tests; the periodic task uses
// the same path.
func (m *Monitor) CheckNow(sessionID string) []*models.Alert {
	m.mu.Lock()
	task, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.checkOnce(sessionID, task)
}

func (m *Monitor) checkOnce(sessionID string, task *sessionTask) []*models.Alert {
	events := m.events.Recent(sessionID, m.cfg.EventWindow)
	task.metrics.Recompute(events)
	task.metrics.PushMemorySample(m.memSampler())

	now := m.now()
	var raised []*models.Alert
	for _, detect := range detectors {
		alert := detect(m.cfg, task.metrics, events, m.baselines, now)
		if alert == nil {
			continue
		}
		if !m.shouldFire(sessionID, alert.Kind) {
			continue
		}
		raised = append(raised, alert)
		m.emit(alert)
	}
	m.clearResolved(sessionID, raised, task, events, now)
	return raised
}

// shouldFire suppresses repeat alerts of a kind that is still firing; the
// kind re-arms once a later pass observes the condition cleared.
func (m *Monitor) shouldFire(sessionID string, kind models.AlertKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := m.firing[sessionID]
	if kinds == nil {
		kinds = make(map[models.AlertKind]bool)
		m.firing[sessionID] = kinds
	}
	if kinds[kind] {
		return false
	}
	kinds[kind] = true
	return true
}

func (m *Monitor) clearResolved(sessionID string, raised []*models.Alert, task *sessionTask, events []*models.SessionEvent, now time.Time) {
	stillFiring := make(map[models.AlertKind]bool, len(raised))
	for _, a := range raised {
		stillFiring[a.Kind] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := m.firing[sessionID]
	for kind := range kinds {
		if stillFiring[kind] {
			continue
		}
		if !m.conditionHolds(kind, task, events, now) {
			delete(kinds, kind)
		}
	}
}

func (m *Monitor) conditionHolds(kind models.AlertKind, task *sessionTask, events []*models.SessionEvent, now time.Time) bool {
	for _, detect := range detectors {
		if alert := detect(m.cfg, task.metrics, events, m.baselines, now); alert != nil && alert.Kind == kind {
			return true
		}
	}
	return false
}

func (m *Monitor) emit(alert *models.Alert) {
	if m.obs != nil {
		m.obs.AlertCounter.WithLabelValues(string(alert.Kind), string(alert.Severity)).Inc()
	}
	m.logger.Warn(context.Background(), "anomaly detected",
		"session_id", alert.SessionID,
		"kind", string(alert.Kind),
		"severity", string(alert.Severity),
		"detail", alert.Message)
	if m.sink != nil {
		m.sink(alert)
	}
}

// Metrics returns a copy of the session's current metric counters.
func (m *Monitor) Metrics(sessionID string) (SessionMetrics, bool) {
	m.mu.Lock()
	task, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return SessionMetrics{}, false
	}
	return *task.metrics, true
}

package intervention

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// Engine turns monitor alerts into recovery actions. One orchestrator task
// drains a bounded queue and hands each alert to the per-session worker, so
// interventions on the same session never overlap while different sessions
// recover in parallel.
type Engine struct {
	cfg       config.InterventionConfig
	commander Commander
	analyzer  Analyzer
	history   *History
	events    *observability.EventLog
	logger    *observability.Logger
	obs       *observability.Metrics

	queue chan *models.Alert

	// sleep is swapped out in tests so retry_delay does not slow them down.
	sleep func(ctx context.Context, d time.Duration)

	mu      sync.Mutex
	workers map[string]chan *models.Alert
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine. analyzer may be nil; analysis strategies
// then report failure and the chain moves on.
func NewEngine(cfg config.InterventionConfig, commander Commander, analyzer Analyzer, events *observability.EventLog, logger *observability.Logger, obs *observability.Metrics) *Engine {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Engine{
		cfg:       cfg,
		commander: commander,
		analyzer:  analyzer,
		history:   NewHistory(),
		events:    events,
		logger:    logger,
		obs:       obs,
		queue:     make(chan *models.Alert, cfg.QueueSize),
		sleep:     sleepCtx,
		workers:   make(map[string]chan *models.Alert),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Start launches the orchestrator. Call once.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go e.orchestrate(ctx)
}

// Stop shuts the engine down and waits for in-flight interventions.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Submit enqueues an alert. Alerts that do not require intervention are
// dropped here; a full queue also drops, with a log line, rather than
// blocking the monitor.
func (e *Engine) Submit(alert *models.Alert) {
	if alert == nil || !alert.RequiresIntervention {
		return
	}
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return
	}
	select {
	case e.queue <- alert:
	default:
		e.logger.Warn(context.Background(), "intervention queue full, dropping alert",
			"session_id", alert.SessionID, "kind", string(alert.Kind))
	}
}

// History exposes the intervention record store, mostly for tools and the
// doctor report.
func (e *Engine) History() *History {
	return e.history
}

func (e *Engine) orchestrate(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-e.queue:
			e.dispatch(ctx, alert)
		}
	}
}

// dispatch routes the alert to its session's worker, creating the worker on
// first use. Worker queues are small; a busy session sheds extra alerts
// because the underlying condition will re-fire if it persists.
func (e *Engine) dispatch(ctx context.Context, alert *models.Alert) {
	e.mu.Lock()
	ch, ok := e.workers[alert.SessionID]
	if !ok {
		ch = make(chan *models.Alert, 4)
		e.workers[alert.SessionID] = ch
		e.wg.Add(1)
		go e.worker(ctx, ch)
	}
	e.mu.Unlock()

	select {
	case ch <- alert:
	default:
		e.logger.Warn(ctx, "session intervention backlog full, dropping alert",
			"session_id", alert.SessionID, "kind", string(alert.Kind))
	}
}

func (e *Engine) worker(ctx context.Context, ch <-chan *models.Alert) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-ch:
			e.handle(ctx, alert)
		}
	}
}

// handle walks the alert kind's strategy chain until one attempt verifies,
// the chain is exhausted, or the per-session budget runs out.
func (e *Engine) handle(ctx context.Context, alert *models.Alert) {
	if e.history.Count(alert.SessionID) >= e.cfg.MaxPerSession {
		e.logger.Error(ctx, "intervention budget exhausted, escalating",
			"session_id", alert.SessionID, "kind", string(alert.Kind))
		e.record(alert, models.StrategyEscalate, models.OutcomeEscalated, "per-session intervention budget exhausted", 0)
		return
	}

	chain := strategyChains[alert.Kind]
	if len(chain) == 0 {
		return
	}

	for i, strategy := range chain {
		if e.history.ShouldSkip(alert.SessionID, strategy) {
			e.record(alert, strategy, models.OutcomeSkipped, "strategy failing repeatedly for this session", 0)
			continue
		}

		if strategy == models.StrategyEscalate {
			e.logger.Error(ctx, "session escalated",
				"session_id", alert.SessionID, "kind", string(alert.Kind), "detail", alert.Message)
			e.record(alert, strategy, models.OutcomeEscalated, alert.Message, 0)
			return
		}

		outcome, detail, took := e.attempt(ctx, strategy, alert)
		e.record(alert, strategy, outcome, detail, took)
		if outcome == models.OutcomeSuccess {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if i < len(chain)-1 {
			e.sleep(ctx, e.cfg.RetryDelay)
		}
	}

	// Exhausting a chain of two or more configured strategies escalates,
	// whether each entry was attempted or skipped.
	if len(chain) >= 2 {
		e.logger.Error(ctx, "all recovery strategies failed, escalating",
			"session_id", alert.SessionID, "kind", string(alert.Kind))
		e.record(alert, models.StrategyEscalate, models.OutcomeEscalated, "all configured strategies failed", 0)
	}
}

// attempt runs one strategy under its timeout and verifies the
// post-condition after the verify window.
func (e *Engine) attempt(ctx context.Context, strategy models.Strategy, alert *models.Alert) (models.Outcome, string, time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.StrategyTimeout)
	defer cancel()

	start := time.Now()
	err := e.runStrategy(runCtx, strategy, alert)
	took := time.Since(start)
	if err != nil {
		return models.OutcomeFailure, err.Error(), took
	}

	e.sleep(ctx, e.cfg.VerifyWindow)
	if e.commander.SessionHealthy(alert.SessionID) {
		return models.OutcomeSuccess, "", took
	}
	return models.OutcomePartial, "strategy ran but session not verified healthy", took
}

func (e *Engine) record(alert *models.Alert, strategy models.Strategy, outcome models.Outcome, detail string, took time.Duration) {
	rec := models.InterventionRecord{
		ID:        uuid.NewString(),
		SessionID: alert.SessionID,
		AlertID:   alert.ID,
		AlertKind: alert.Kind,
		Strategy:  strategy,
		Outcome:   outcome,
		Detail:    detail,
		Duration:  took,
		Timestamp: time.Now(),
	}
	e.history.Record(rec)

	if e.obs != nil {
		e.obs.InterventionCounter.WithLabelValues(string(strategy), string(outcome)).Inc()
	}
	if e.events != nil {
		ev := models.NewSessionEvent(models.EventInterventionExecuted, alert.SessionID).
			WithMessage(string(strategy) + ": " + string(outcome)).
			WithDuration(took).
			WithMeta("alert_kind", string(alert.Kind)).
			WithMeta("strategy", string(strategy)).
			WithMeta("outcome", string(outcome))
		if detail != "" {
			ev = ev.WithMeta("detail", detail)
		}
		e.events.Append(ev)
	}
	e.logger.Info(context.Background(), "intervention recorded",
		"session_id", alert.SessionID,
		"strategy", string(strategy),
		"outcome", string(outcome),
		"duration_ms", took.Milliseconds())
}

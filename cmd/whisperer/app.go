package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aiwhisperer/aiwhisperer/internal/agent"
	"github.com/aiwhisperer/aiwhisperer/internal/agent/providers"
	"github.com/aiwhisperer/aiwhisperer/internal/batch"
	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/internal/doctor"
	"github.com/aiwhisperer/aiwhisperer/internal/intervention"
	"github.com/aiwhisperer/aiwhisperer/internal/mailbox"
	"github.com/aiwhisperer/aiwhisperer/internal/monitor"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/internal/plan"
	"github.com/aiwhisperer/aiwhisperer/internal/rfc"
	"github.com/aiwhisperer/aiwhisperer/internal/sessions"
	"github.com/aiwhisperer/aiwhisperer/internal/tools/files"
	"github.com/aiwhisperer/aiwhisperer/internal/tools/mailtools"
	"github.com/aiwhisperer/aiwhisperer/internal/tools/plantools"
	"github.com/aiwhisperer/aiwhisperer/internal/tools/rfctools"
	"github.com/aiwhisperer/aiwhisperer/internal/tools/scripttools"
	"github.com/aiwhisperer/aiwhisperer/internal/tools/sessiontools"
	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// app is the composition root. Every command builds one, uses the slice of
// it it needs, and shuts it down.
type app struct {
	cfg     *config.Config
	paths   *workspace.Paths
	logger  *observability.Logger
	metrics *observability.Metrics
	promReg *prometheus.Registry
	tracer  *observability.Tracer
	events  *observability.EventLog

	registry  *agent.Registry
	provider  agent.LLMProvider
	mail      *mailbox.Mailbox
	rfcs      *rfc.Store
	plans     *plan.Store
	parser    *batch.Parser
	executor  *batch.Executor
	validator *doctor.Validator
	health    *doctor.HealthRunner
	analyzer  *doctor.SessionAnalyzer

	manager *sessions.Manager
	mon     *monitor.Monitor
	engine  *intervention.Engine

	transcripts sessions.TranscriptStore

	tracerShutdown func(context.Context) error
}

// appOptions selects optional subsystems per command. One-shot commands
// skip the supervision stack.
type appOptions struct {
	// Supervise starts the monitor and intervention engine and persists
	// transcripts to SQLite.
	Supervise bool
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	paths, err := workspace.New(cfg.Workspace.Root)
	if err != nil {
		return nil, models.NewToolError(models.ErrInvalidConfiguration, "%v", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	tracer, tracerShutdown, err := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "whisperer",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:            cfg,
		paths:          paths,
		logger:         logger,
		metrics:        metrics,
		promReg:        promReg,
		tracer:         tracer,
		events:         observability.NewEventLog(10_000),
		mail:           mailbox.New(),
		tracerShutdown: tracerShutdown,
	}

	locker := workspace.NewDocLocker()
	a.rfcs = rfc.NewStore(paths, locker, logger)
	a.plans = plan.NewStore(paths, locker, a.rfcs, logger)

	a.provider = providers.NewOpenRouterProvider(providers.OpenRouterConfig{
		APIKey:       cfg.APIKey(),
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.LLM.Model,
	})

	a.registry = agent.NewRegistry()
	a.registerTools()
	a.registry.Seal()

	a.parser = batch.NewParser(cfg.Batch)
	a.executor = batch.NewExecutor(a.registry, cfg.Batch, logger, metrics)
	a.validator = doctor.NewValidator(paths, cfg)
	a.health = doctor.NewHealthRunner(a.healthScriptDir(), a.parser, a.executor, logger)
	a.analyzer = doctor.NewSessionAnalyzer(a.events, cfg.Monitor.EventWindow)

	a.transcripts = sessions.NewMemoryStore()
	if opts.Supervise {
		store, err := sessions.NewSQLiteStore(filepath.Join(paths.State(), "transcripts.db"))
		if err != nil {
			return nil, err
		}
		a.transcripts = store

		// The monitor feeds the engine; the engine recovers through the
		// manager. The sink closure breaks the construction cycle.
		a.mon = monitor.New(cfg.Monitor, a.events, func(alert *models.Alert) {
			if a.engine != nil {
				a.engine.Submit(alert)
			}
		}, logger, metrics)
	}

	deps := agent.LoopDeps{
		Provider: a.provider,
		Registry: a.registry,
		Executor: agent.NewToolExecutor(a.registry, agent.ToolExecConfig{PerToolTimeout: cfg.Tools.Timeout}, metrics, tracer),
		Events:   a.events,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	}
	a.manager = sessions.NewManager(cfg, deps, a.mon, a.transcripts, logger, metrics)

	if opts.Supervise {
		a.engine = intervention.NewEngine(cfg.Intervention, a.manager, a.analyzer, a.events, logger, metrics)
		a.engine.Start()
	}
	return a, nil
}

// registerTools wires every tool behind the registry. The batch allow-list
// is a subset of these names; delete_rfc and delete_plan are interactive
// only.
func (a *app) registerTools() {
	root := a.paths.Root()
	a.registry.MustRegister(files.NewListTool(root))
	a.registry.MustRegister(files.NewReadTool(root, files.DefaultMaxReadBytes))
	a.registry.MustRegister(files.NewCreateTool(root, files.DefaultMaxWriteBytes))
	a.registry.MustRegister(files.NewWriteTool(root, files.DefaultMaxWriteBytes))

	a.registry.MustRegister(mailtools.NewSendTool(a.mail))
	a.registry.MustRegister(mailtools.NewCheckTool(a.mail))
	a.registry.MustRegister(mailtools.NewReplyTool(a.mail))

	a.registry.MustRegister(rfctools.NewCreateTool(a.rfcs))
	a.registry.MustRegister(rfctools.NewReadTool(a.rfcs))
	a.registry.MustRegister(rfctools.NewUpdateTool(a.rfcs))
	a.registry.MustRegister(rfctools.NewMoveTool(a.rfcs))
	a.registry.MustRegister(rfctools.NewListTool(a.rfcs))
	a.registry.MustRegister(rfctools.NewDeleteTool(a.rfcs))

	a.registry.MustRegister(plantools.NewPrepareTool(a.plans))
	a.registry.MustRegister(plantools.NewSaveTool(a.plans))
	a.registry.MustRegister(plantools.NewReadTool(a.plans))
	a.registry.MustRegister(plantools.NewListTool(a.plans))
	a.registry.MustRegister(plantools.NewUpdateTool(a.plans, a.planGenerator()))
	a.registry.MustRegister(plantools.NewMoveTool(a.plans))
	a.registry.MustRegister(plantools.NewDeleteTool(a.plans))

	a.registry.MustRegister(sessiontools.NewSwitchTool(lazySwitcher{a}))

	a.registry.MustRegister(scripttools.NewValidateTool(doctor.NewValidator(a.paths, a.cfg)))
	a.registry.MustRegister(scripttools.NewHealthTool(doctor.NewHealthRunner(a.healthScriptDir(), batch.NewParser(a.cfg.Batch), batch.NewExecutor(a.registry, a.cfg.Batch, a.logger, a.metrics), a.logger)))
	a.registry.MustRegister(scripttools.NewAnalysisTool(doctor.NewSessionAnalyzer(a.events, a.cfg.Monitor.EventWindow)))
}

// lazySwitcher defers the manager lookup: tools register before the
// manager exists.
type lazySwitcher struct{ a *app }

func (l lazySwitcher) SwitchAgent(ctx context.Context, sessionID, agentID string) error {
	if l.a.manager == nil {
		return fmt.Errorf("no session manager running")
	}
	return l.a.manager.SwitchAgent(ctx, sessionID, agentID)
}

func (a *app) healthScriptDir() string {
	dir := a.cfg.Health.ScriptDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(a.paths.Root(), dir)
	}
	return dir
}

const plannerPrompt = `You convert RFC documents into structured TDD plans.
Respond with a single JSON object matching this shape and nothing else:
{"plan_type":"initial","title":"...","description":"...","tdd_phases":{"red":["task"],"green":["task"],"refactor":["task"]},"tasks":[{"name":"...","description":"...","dependencies":[],"tdd_phase":"red","validation_criteria":["..."]}]}
Order tasks red, then green, then refactor. When updating an existing plan,
keep task names stable where the work is unchanged.`

// planGenerator regenerates plan JSON from RFC markdown through the
// configured provider, speaking as the planner.
func (a *app) planGenerator() plan.Generator {
	return func(ctx context.Context, rfcContent string, prior *models.Plan) (json.RawMessage, error) {
		user := "Generate a plan for this RFC:\n\n" + rfcContent
		if prior != nil {
			existing, err := json.Marshal(prior)
			if err != nil {
				return nil, models.NewToolError(models.ErrJSONSerialization, "encode prior plan: %v", err)
			}
			user += "\n\nThe existing plan to update:\n\n" + string(existing)
		}

		resp, err := a.provider.Complete(ctx, &agent.CompletionRequest{
			Model: a.cfg.LLM.Model,
			Messages: []models.Message{
				{Role: models.RoleSystem, Content: plannerPrompt},
				{Role: models.RoleUser, Content: user},
			},
			Temperature: a.cfg.LLM.Temperature,
			MaxTokens:   a.cfg.LLM.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return json.RawMessage(stripCodeFence(resp.Content)), nil
	}
}

// stripCodeFence unwraps ```json blocks models like to emit around JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Close shuts subsystems down in dependency order.
func (a *app) Close(ctx context.Context) {
	if a.engine != nil {
		a.engine.Stop()
	}
	a.manager.Shutdown(ctx)
	if a.mon != nil {
		a.mon.Stop()
	}
	if a.transcripts != nil {
		if err := a.transcripts.Close(); err != nil {
			a.logger.Warn(ctx, "transcript store close failed", "error", err)
		}
	}
	if err := a.tracerShutdown(ctx); err != nil {
		a.logger.Warn(ctx, "tracer shutdown failed", "error", err)
	}
}

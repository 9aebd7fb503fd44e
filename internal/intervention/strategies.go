package intervention

import (
	"context"
	"fmt"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// Commander is what the engine needs from the session layer. The session
// manager implements it; keeping it an interface here breaks the import
// cycle and lets tests drive the engine with a fake.
type Commander interface {
	// InjectMessage delivers a system-privileged user message into the
	// session's AI loop.
	InjectMessage(ctx context.Context, sessionID, content string) error

	// RestartSession snapshots the session's context, tears the session
	// down, and recreates it with the snapshot restored.
	RestartSession(ctx context.Context, sessionID string) error

	// SessionHealthy reports whether the session currently shows activity
	// and no firing alerts. Used as the post-condition check.
	SessionHealthy(sessionID string) bool
}

// Analyzer runs a canned diagnostic script against a session's recent
// activity and returns its findings. The doctor wires the batch runtime in
// here; a nil analyzer makes analysis strategies fail over to the next one.
type Analyzer interface {
	Analyze(ctx context.Context, sessionID string) (string, error)
}

// strategyChains maps each alert kind to its ordered recovery chain.
var strategyChains = map[models.AlertKind][]models.Strategy{
	models.AlertSessionStall:  {models.StrategyPromptInjection, models.StrategySessionRestart},
	models.AlertToolLoop:      {models.StrategyStateReset, models.StrategyEscalate},
	models.AlertHighErrorRate: {models.StrategyToolRetry, models.StrategyPythonAnalysis},
	models.AlertSlowResponse:  {models.StrategyPythonAnalysis, models.StrategyEscalate},
	models.AlertMemorySpike:   {models.StrategyStateReset, models.StrategySessionRestart},
}

// continuationTemplates rotate by prior-intervention count so a repeatedly
// stalled session does not see the same nudge every time.
var continuationTemplates = []string{
	"You appear to have stopped responding. Please continue with your current task. If you are blocked, say what is blocking you.",
	"Your last activity was a while ago. Summarise where you are and take the next concrete step.",
	"Please resume. If the previous approach is not working, pick a different one and explain the change.",
}

const stateResetPrompt = "Summarise your current state in two or three sentences, then continue the task from that summary. Do not repeat the last tool call."

const toolRetryPrompt = "The recent tool calls have been failing. Retry the operation with alternative parameters, or use a different tool that achieves the same result."

func (e *Engine) runStrategy(ctx context.Context, strategy models.Strategy, alert *models.Alert) error {
	switch strategy {
	case models.StrategyPromptInjection:
		tmpl := continuationTemplates[e.history.Count(alert.SessionID)%len(continuationTemplates)]
		return e.commander.InjectMessage(ctx, alert.SessionID, tmpl)

	case models.StrategySessionRestart:
		if e.history.Attempts(alert.SessionID, models.StrategySessionRestart) >= e.cfg.MaxRestartAttempts {
			return fmt.Errorf("restart attempts exhausted (%d)", e.cfg.MaxRestartAttempts)
		}
		return e.commander.RestartSession(ctx, alert.SessionID)

	case models.StrategyStateReset:
		return e.commander.InjectMessage(ctx, alert.SessionID, stateResetPrompt)

	case models.StrategyToolRetry:
		msg := toolRetryPrompt
		if e.analyzer != nil {
			if findings, err := e.analyzer.Analyze(ctx, alert.SessionID); err == nil && findings != "" {
				msg = msg + "\n\nDiagnostics:\n" + findings
			}
		}
		return e.commander.InjectMessage(ctx, alert.SessionID, msg)

	case models.StrategyPythonAnalysis:
		if e.analyzer == nil {
			return fmt.Errorf("no analyzer configured")
		}
		findings, err := e.analyzer.Analyze(ctx, alert.SessionID)
		if err != nil {
			return err
		}
		return e.commander.InjectMessage(ctx, alert.SessionID,
			"Automated diagnostics for the recent slowdown:\n"+findings)

	case models.StrategyEscalate:
		// No remediation; the caller records the escalation.
		return nil

	default:
		return fmt.Errorf("unknown strategy %q", strategy)
	}
}

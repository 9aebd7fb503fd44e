package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiwhisperer/aiwhisperer/internal/agent"
	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/internal/monitor"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
)

// Manager owns all live sessions. It implements the command surface the
// intervention engine recovers through: message injection, restart, and
// the health post-condition check.
type Manager struct {
	cfg    *config.Config
	deps   agent.LoopDeps
	mon    *monitor.Monitor
	trans  TranscriptStore
	logger *observability.Logger
	obs    *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. mon may be nil when monitoring is
// disabled (one-shot CLI commands).
func NewManager(cfg *config.Config, deps agent.LoopDeps, mon *monitor.Monitor, trans TranscriptStore, logger *observability.Logger, obs *observability.Metrics) *Manager {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		mon:      mon,
		trans:    trans,
		logger:   logger,
		obs:      obs,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session with the given agent persona.
func (m *Manager) Create(ctx context.Context, agentID string) (*Session, error) {
	agentCfg, err := m.cfg.Agent(agentID)
	if err != nil {
		return nil, err
	}

	opts := agent.LoopOptions{
		Model:                   m.cfg.LLM.Model,
		Temperature:             m.cfg.LLM.Temperature,
		MaxTokens:               m.cfg.LLM.MaxTokens,
		MaxConsecutiveToolCalls: m.cfg.Loop.MaxConsecutiveToolCalls,
		MaxIterations:           m.cfg.Loop.MaxIterations,
		PausePollInterval:       m.cfg.Loop.PausePollInterval,
	}

	id := uuid.NewString()
	session := newSession(id, agentCfg, m.deps, opts, m.trans, m.logger)

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	if m.mon != nil {
		m.mon.Watch(id)
	}
	if m.obs != nil {
		m.obs.ActiveSessions.Inc()
	}
	m.logger.Info(ctx, "session created", "session_id", id, "agent_id", agentID)
	return session, nil
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Close stops a session and releases its monitoring state. The transcript
// is kept.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}

	session.Stop()
	if m.mon != nil {
		m.mon.Unwatch(sessionID)
	}
	if m.obs != nil {
		m.obs.ActiveSessions.Dec()
	}
	m.logger.Info(ctx, "session closed", "session_id", sessionID)
	return nil
}

// Shutdown closes every session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(ctx, id)
	}
}

// InjectMessage implements intervention.Commander.
func (m *Manager) InjectMessage(ctx context.Context, sessionID, content string) error {
	session, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	return session.Inject(ctx, content)
}

// RestartSession implements intervention.Commander.
func (m *Manager) RestartSession(ctx context.Context, sessionID string) error {
	session, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	return session.Restart(ctx)
}

// SwitchAgent implements the switch_agent tool's command surface.
func (m *Manager) SwitchAgent(ctx context.Context, sessionID, agentID string) error {
	agentCfg, err := m.cfg.Agent(agentID)
	if err != nil {
		return err
	}
	session, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	return session.SetAgent(ctx, agentCfg)
}

// SessionHealthy implements intervention.Commander: the loop is not failed
// and the monitor sees recent activity.
func (m *Manager) SessionHealthy(sessionID string) bool {
	session, ok := m.Get(sessionID)
	if !ok {
		return false
	}
	switch session.Phase() {
	case agent.PhaseFailed, agent.PhaseStopped:
		return false
	}
	if m.mon != nil {
		if metrics, ok := m.mon.Metrics(sessionID); ok {
			if metrics.StallDuration(timeNow()) > m.cfg.Monitor.StallThreshold {
				return false
			}
		}
	}
	return true
}

// timeNow is a test seam.
var timeNow = time.Now

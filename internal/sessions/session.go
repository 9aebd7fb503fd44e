package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiwhisperer/aiwhisperer/internal/agent"
	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/internal/taskctx"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// Session is one live conversation: an agent persona, an AI loop over a
// task context, and a transcript trail. Turns are serialised; callers and
// the intervention engine can both drive the session without racing the
// loop.
type Session struct {
	ID string

	deps agent.LoopDeps
	opts agent.LoopOptions

	transcripts TranscriptStore
	logger      *observability.Logger

	// turnSem serialises Send / Inject / Restart. A channel rather than a
	// mutex so acquisition observes the caller's context: a recovery
	// attempt with a deadline must not wedge behind a turn stuck in a
	// hung model call.
	turnSem chan struct{}

	mu           sync.Mutex
	agentID      string
	loop         *agent.Loop
	pendingAgent *config.AgentConfig
	persisted    int
	restarts     int
	createdAt    time.Time
}

func newSession(id string, agentCfg config.AgentConfig, deps agent.LoopDeps, opts agent.LoopOptions, transcripts TranscriptStore, logger *observability.Logger) *Session {
	if logger == nil {
		logger = observability.NopLogger()
	}
	opts.SystemPreamble = agentCfg.SystemPrompt
	if agentCfg.Model != "" {
		opts.Model = agentCfg.Model
	}

	s := &Session{
		ID:          id,
		deps:        deps,
		opts:        opts,
		transcripts: transcripts,
		logger:      logger,
		turnSem:     make(chan struct{}, 1),
		agentID:     agentCfg.ID,
		createdAt:   time.Now(),
	}
	s.loop = s.newLoop()
	return s
}

func (s *Session) newLoop() *agent.Loop {
	deps := s.deps
	deps.Store = taskctx.New(uuid.NewString())
	return agent.NewLoop(s.ID, deps.Store.TaskID(), deps, s.opts)
}

// AgentID returns the active agent persona.
func (s *Session) AgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentID
}

// Phase returns the loop's current lifecycle phase.
func (s *Session) Phase() agent.Phase {
	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()
	return loop.Phase()
}

// Restarts returns how many times the session has been recreated.
func (s *Session) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// acquireTurn takes the turn slot, or gives up when ctx expires first.
func (s *Session) acquireTurn(ctx context.Context) error {
	select {
	case s.turnSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return models.NewToolError(models.ErrProcessingTimeout,
			"session %s is busy with another turn: %v", s.ID, ctx.Err())
	}
}

func (s *Session) releaseTurn() { <-s.turnSem }

// Send runs one conversation turn and persists the new messages.
func (s *Session) Send(ctx context.Context, userMessage string) (*agent.TurnResult, error) {
	if err := s.acquireTurn(ctx); err != nil {
		return nil, err
	}
	defer s.releaseTurn()
	return s.runTurn(ctx, userMessage)
}

// Inject delivers a system-privileged recovery message. It is a normal
// turn under the hood; the distinction is who is talking. A session stuck
// mid-turn does not absorb the injection silently: the acquire fails when
// ctx expires and the caller sees the timeout.
func (s *Session) Inject(ctx context.Context, content string) error {
	if err := s.acquireTurn(ctx); err != nil {
		return err
	}
	defer s.releaseTurn()
	_, err := s.runTurn(ctx, content)
	return err
}

func (s *Session) runTurn(ctx context.Context, userMessage string) (*agent.TurnResult, error) {
	s.mu.Lock()
	pending := s.pendingAgent
	s.pendingAgent = nil
	s.mu.Unlock()
	if pending != nil {
		s.applySwitch(ctx, *pending)
	}

	s.mu.Lock()
	loop := s.loop
	agentID := s.agentID
	s.mu.Unlock()

	ctx = observability.AddSessionID(ctx, s.ID)
	ctx = observability.AddAgentID(ctx, agentID)

	result, err := loop.Continue(ctx, userMessage)
	s.persistNew(ctx, loop)
	return result, err
}

// persistNew appends context messages not yet written to the transcript.
// Failed turns still persist what the loop got through.
func (s *Session) persistNew(ctx context.Context, loop *agent.Loop) {
	if s.transcripts == nil {
		return
	}
	history := loop.Context().History()

	s.mu.Lock()
	offset := s.persisted
	if offset > len(history) {
		offset = 0
	}
	fresh := history[offset:]
	s.persisted = len(history)
	s.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	for i := range fresh {
		fresh[i].SessionID = s.ID
		fresh[i].TaskID = loop.TaskID()
	}
	if err := s.transcripts.SaveMessages(ctx, s.ID, fresh); err != nil {
		s.logger.Warn(ctx, "transcript write failed", "session_id", s.ID, "error", err)
	}
}

// Pause blocks the loop before its next model call.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop.Pause()
}

// Resume clears a pause.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop.Resume()
}

// Stop requests a graceful loop exit.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop.Stop()
}

// Restart snapshots the conversation, tears the loop down, and recreates it
// with the context restored. The fresh loop keeps the old system prompt, so
// the session resumes mid-conversation rather than from scratch.
func (s *Session) Restart(ctx context.Context) error {
	if err := s.acquireTurn(ctx); err != nil {
		return err
	}
	defer s.releaseTurn()

	s.mu.Lock()
	old := s.loop
	s.mu.Unlock()

	snapshot := old.Context().History()
	old.Stop()

	fresh := s.newLoop()
	fresh.Context().Restore(snapshot)

	s.mu.Lock()
	s.loop = fresh
	s.restarts++
	restarts := s.restarts
	s.mu.Unlock()

	s.logger.Info(ctx, "session restarted",
		"session_id", s.ID, "restart_count", restarts, "messages", len(snapshot))
	return nil
}

// SetAgent swaps the session's persona. If a turn is in flight (the
// switch_agent tool fires mid-turn) the swap is deferred to the start of
// the next turn; otherwise it applies immediately.
func (s *Session) SetAgent(ctx context.Context, agentCfg config.AgentConfig) error {
	select {
	case s.turnSem <- struct{}{}:
	default:
		s.mu.Lock()
		s.pendingAgent = &agentCfg
		s.mu.Unlock()
		s.logger.Info(ctx, "agent switch deferred to next turn",
			"session_id", s.ID, "agent_id", agentCfg.ID)
		return nil
	}
	defer s.releaseTurn()
	s.applySwitch(ctx, agentCfg)
	return nil
}

// applySwitch replaces the loop with one speaking as the new agent,
// carrying the conversation over with its system message rewritten.
// Callers hold the turn slot.
func (s *Session) applySwitch(ctx context.Context, agentCfg config.AgentConfig) {
	s.mu.Lock()
	old := s.loop
	s.opts.SystemPreamble = agentCfg.SystemPrompt
	if agentCfg.Model != "" {
		s.opts.Model = agentCfg.Model
	}
	s.agentID = agentCfg.ID
	s.mu.Unlock()

	snapshot := old.Context().History()
	for i := range snapshot {
		if snapshot[i].Role == models.RoleSystem {
			snapshot[i].Content = agentCfg.SystemPrompt
			break
		}
	}
	old.Stop()

	fresh := s.newLoop()
	fresh.Context().Restore(snapshot)

	s.mu.Lock()
	s.loop = fresh
	s.mu.Unlock()

	s.logger.Info(ctx, "agent switched", "session_id", s.ID, "agent_id", agentCfg.ID)
}

// History returns the live conversation context.
func (s *Session) History() []models.Message {
	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()
	return loop.Context().History()
}

package config

import (
	"fmt"
	"time"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// Config is the main configuration structure for AIWhisperer.
type Config struct {
	Workspace    WorkspaceConfig    `yaml:"workspace"`
	LLM          LLMConfig          `yaml:"llm"`
	Loop         LoopConfig         `yaml:"loop"`
	Tools        ToolsConfig        `yaml:"tools"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Intervention InterventionConfig `yaml:"intervention"`
	Batch        BatchConfig        `yaml:"batch"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Health       HealthConfig       `yaml:"health"`
	Agents       []AgentConfig      `yaml:"agents"`
}

// WorkspaceConfig locates the .WHISPER tree.
type WorkspaceConfig struct {
	// Root is the project directory containing (or to contain) .WHISPER.
	Root string `yaml:"root"`
}

// LLMConfig configures the chat-completion endpoint.
type LLMConfig struct {
	// Provider selects the backend; only "openrouter" is built in.
	Provider string `yaml:"provider"`

	// Model is the default model id, e.g. "openai/gpt-4o".
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable carrying the API key.
	// Default: OPENROUTER_API_KEY. The value itself is never logged.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider endpoint (tests point this at a fake).
	BaseURL string `yaml:"base_url"`

	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoopConfig bounds one AI interaction loop.
type LoopConfig struct {
	// MaxConsecutiveToolCalls caps tool-only responses in a row before the
	// loop fails with tool_loop_limit. Default: 5.
	MaxConsecutiveToolCalls int `yaml:"max_consecutive_tool_calls"`

	// MaxIterations caps total loop iterations as a hard backstop. Default: 50.
	MaxIterations int `yaml:"max_iterations"`

	// PausePollInterval is how often a paused loop re-checks shutdown.
	// Default: 100ms.
	PausePollInterval time.Duration `yaml:"pause_poll_interval"`
}

// ToolsConfig bounds tool execution.
type ToolsConfig struct {
	// Timeout is the per-call deadline. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`

	// Concurrency is the worker-pool width for offloaded tools. Default: 4.
	Concurrency int `yaml:"concurrency"`
}

// MonitorConfig tunes anomaly detection.
type MonitorConfig struct {
	CheckInterval     time.Duration `yaml:"check_interval"`      // default 5s
	StallThreshold    time.Duration `yaml:"stall_threshold"`     // default 30s
	ErrorRateLimit    float64       `yaml:"error_rate_limit"`    // default 0.2
	ToolLoopCount     int           `yaml:"tool_loop_count"`     // default 5 in last 50 events
	ToolLoopWindow    int           `yaml:"tool_loop_window"`    // default 50
	SlowResponseAlpha float64       `yaml:"slow_response_alpha"` // EMA alpha, default 0.1
	SlowResponseRatio float64       `yaml:"slow_response_ratio"` // default 2.0
	MemorySpikeRatio  float64       `yaml:"memory_spike_ratio"`  // default 1.5
	EventWindow       int           `yaml:"event_window"`        // events pulled per check, default 100
}

// InterventionConfig tunes the recovery engine.
type InterventionConfig struct {
	MaxPerSession      int           `yaml:"max_per_session"`      // default 10
	RetryDelay         time.Duration `yaml:"retry_delay"`          // default 2s
	StrategyTimeout    time.Duration `yaml:"strategy_timeout"`     // default 10s
	VerifyWindow       time.Duration `yaml:"verify_window"`        // default 2s
	MaxRestartAttempts int           `yaml:"max_restart_attempts"` // default 2
	QueueSize          int           `yaml:"queue_size"`           // default 64
}

// BatchConfig bounds script parsing and execution.
type BatchConfig struct {
	MaxSteps       int           `yaml:"max_steps"`        // default 1000
	MaxDepth       int           `yaml:"max_depth"`        // default 10
	MaxFileSize    int64         `yaml:"max_file_size"`    // default 1 MiB
	MaxYAMLAliases int           `yaml:"max_yaml_aliases"` // default 100
	ParseTimeout   time.Duration `yaml:"parse_timeout"`    // default 5s
}

// LoggingConfig mirrors observability.LogConfig.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig mirrors observability.TraceConfig.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
	Insecure     bool    `yaml:"insecure"`
}

// HealthConfig drives the batch-script health runner.
type HealthConfig struct {
	// ScriptDir is where health scripts are discovered, relative to the
	// workspace root. Default: .WHISPER/health.
	ScriptDir string `yaml:"script_dir"`

	// Schedule is an optional cron expression for periodic runs in serve
	// mode, e.g. "@every 15m". Empty disables scheduling.
	Schedule string `yaml:"schedule"`
}

// AgentConfig declares one agent persona.
type AgentConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	Model        string `yaml:"model"`
}

// Default returns a fully-populated configuration with documented defaults.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{Root: "."},
		LLM: LLMConfig{
			Provider:    "openrouter",
			Model:       "openai/gpt-4o",
			APIKeyEnv:   "OPENROUTER_API_KEY",
			Temperature: 0.7,
			MaxTokens:   4096,
			Timeout:     60 * time.Second,
		},
		Loop: LoopConfig{
			MaxConsecutiveToolCalls: 5,
			MaxIterations:           50,
			PausePollInterval:       100 * time.Millisecond,
		},
		Tools: ToolsConfig{
			Timeout:     30 * time.Second,
			Concurrency: 4,
		},
		Monitor: MonitorConfig{
			CheckInterval:     5 * time.Second,
			StallThreshold:    30 * time.Second,
			ErrorRateLimit:    0.2,
			ToolLoopCount:     5,
			ToolLoopWindow:    50,
			SlowResponseAlpha: 0.1,
			SlowResponseRatio: 2.0,
			MemorySpikeRatio:  1.5,
			EventWindow:       100,
		},
		Intervention: InterventionConfig{
			MaxPerSession:      10,
			RetryDelay:         2 * time.Second,
			StrategyTimeout:    10 * time.Second,
			VerifyWindow:       2 * time.Second,
			MaxRestartAttempts: 2,
			QueueSize:          64,
		},
		Batch: BatchConfig{
			MaxSteps:       1000,
			MaxDepth:       10,
			MaxFileSize:    1 << 20,
			MaxYAMLAliases: 100,
			ParseTimeout:   5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Health:  HealthConfig{ScriptDir: ".WHISPER/health"},
		Agents: []AgentConfig{
			{ID: "alice", Name: "Alice", SystemPrompt: "You are Alice, the general assistant."},
			{ID: "patricia", Name: "Patricia", SystemPrompt: "You are Patricia, the planner. You turn RFCs into TDD plans."},
			{ID: "debbie", Name: "Debbie", SystemPrompt: "You are Debbie, the debugger. You monitor sessions and inject recovery guidance."},
		},
	}
}

// Validate checks cross-field consistency. Violations map onto the
// invalid_configuration / conflicting_options taxonomy.
func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return models.NewToolError(models.ErrInvalidConfiguration, "workspace.root must not be empty")
	}
	if c.LLM.Provider != "openrouter" {
		return models.NewToolError(models.ErrInvalidConfiguration, "unknown llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return models.NewToolError(models.ErrInvalidParameterType, "llm.temperature %v out of range [0,2]", c.LLM.Temperature)
	}
	if c.Loop.MaxConsecutiveToolCalls <= 0 {
		return models.NewToolError(models.ErrInvalidConfiguration, "loop.max_consecutive_tool_calls must be positive")
	}
	if c.Monitor.CheckInterval <= 0 {
		return models.NewToolError(models.ErrInvalidConfiguration, "monitor.check_interval must be positive")
	}
	if c.Intervention.MaxPerSession <= 0 {
		return models.NewToolError(models.ErrInvalidConfiguration, "intervention.max_per_session must be positive")
	}
	if c.Batch.MaxSteps <= 0 || c.Batch.MaxDepth <= 0 {
		return models.NewToolError(models.ErrInvalidConfiguration, "batch limits must be positive")
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return models.NewToolError(models.ErrInvalidConfiguration, "agent with empty id")
		}
		if seen[a.ID] {
			return models.NewToolError(models.ErrConflictingOptions, "duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// Agent returns the agent config with the given id.
func (c *Config) Agent(id string) (AgentConfig, error) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, nil
		}
	}
	return AgentConfig{}, fmt.Errorf("unknown agent %q", id)
}

// Package main provides the whisperer CLI.
//
// Whisperer runs a multi-agent AI workspace: interactive sessions with
// tool-using agents, batch script execution, RFC and plan management, and
// workspace diagnostics, all anchored at a project's .WHISPER directory.
//
// # Basic Usage
//
// Start an interactive session:
//
//	whisperer serve --agent alice
//
// Run a batch script:
//
//	whisperer run-script tasks.yaml
//
// Check the workspace:
//
//	whisperer validate --init
//	whisperer health
//
// # Environment Variables
//
//   - WHISPERER_CONFIG: Path to configuration file (default: whisperer.yaml)
//   - OPENROUTER_API_KEY: OpenRouter API key (or the variable named by
//     llm.api_key_env)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "whisperer",
		Short: "Whisperer - multi-agent AI workspace",
		Long: `Whisperer drives tool-using AI agents over a project workspace.

Agents converse through an OpenRouter-backed loop, collaborate via an
internal mailbox, and manage RFC documents and derived TDD plans under
the project's .WHISPER directory. Sessions are supervised: a monitor
detects stalls, tool loops, error spikes, slow responses, and memory
spikes, and an intervention engine applies recovery strategies.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to configuration file")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunScriptCmd(),
		buildValidateCmd(),
		buildHealthCmd(),
		buildRFCCmd(),
		buildPlanCmd(),
	)
	return rootCmd
}

func defaultConfigPath() string {
	if p := os.Getenv("WHISPERER_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("whisperer.yaml"); err == nil {
		return "whisperer.yaml"
	}
	return ""
}

// Exit codes: 0 success, 1 validation failure, 2 configuration error,
// 3 uncaught runtime error.
const (
	exitOK      = 0
	exitFailed  = 1
	exitConfig  = 2
	exitRuntime = 3
)

// validationError marks failures of the "the input was bad" kind, as
// opposed to configuration or runtime faults.
type validationError struct{ err error }

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

func failValidation(format string, args ...any) error {
	return &validationError{err: fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	var ve *validationError
	if errors.As(err, &ve) {
		return exitFailed
	}
	var te *models.ToolError
	if errors.As(err, &te) {
		switch te.Type {
		case models.ErrInvalidConfiguration, models.ErrConflictingOptions, models.ErrInvalidParameterType:
			return exitConfig
		case models.ErrInvalidArguments, models.ErrInvalidPath, models.ErrFileNotFound:
			return exitFailed
		}
	}
	return exitRuntime
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiwhisperer/aiwhisperer/internal/batch"
)

func buildRunScriptCmd() *cobra.Command {
	var opts batch.Options
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run-script <file>",
		Short: "Execute a batch script (JSON, YAML, or text)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.Context(), args[0], opts, quiet)
		},
	}
	cmd.Flags().BoolVar(&opts.StopOnError, "stop-on-error", false, "Abort on the first failed step")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Validate and simulate without invoking tools")
	cmd.Flags().BoolVar(&opts.PassContext, "pass-context", false, "Thread accumulated context into each step")
	cmd.Flags().BoolVar(&opts.ValidateFirst, "validate-first", true, "Validate every step before executing any")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the summary")
	return cmd
}

func runScript(ctx context.Context, path string, opts batch.Options, quiet bool) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	script, err := a.parser.Parse(ctx, path)
	if err != nil {
		return failValidation("parse %s: %w", path, err)
	}

	var progress batch.Progress
	if !quiet {
		progress = func(index, total int, result batch.StepResult) {
			status := "ok"
			switch {
			case result.Skipped:
				status = "skipped"
			case result.Simulated:
				status = "simulated"
			case !result.OK:
				status = fmt.Sprintf("failed (%s)", result.ErrorType)
			}
			fmt.Printf("[%d/%d] %-20s %s\n", index+1, total, result.Action, status)
		}
	}

	result, err := a.executor.Run(ctx, script, opts, progress)
	if err != nil {
		return failValidation("%w", err)
	}

	fmt.Printf("%s: %d/%d steps succeeded", script.Name, result.Completed, result.Total)
	if result.Failed > 0 {
		fmt.Printf(", %d failed", result.Failed)
	}
	fmt.Println()
	if result.Cascade.Detected {
		fmt.Fprintf(os.Stderr, "cascading failure detected, root cause %s\n", result.Cascade.RootCause)
		for _, step := range result.Cascade.MitigationSteps {
			fmt.Fprintln(os.Stderr, "  -", step)
		}
	}

	if !result.Success {
		return failValidation("%d of %d steps failed", result.Failed, result.Total)
	}
	return nil
}

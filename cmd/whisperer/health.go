package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func buildHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the workspace health scripts",
		Long: `Health discovers batch scripts under the configured health directory,
runs each through the batch runtime, and reports a pass-rate score.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context())
		},
	}
}

func runHealth(ctx context.Context) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	report, err := a.health.Run(ctx)
	if err != nil {
		return err
	}

	for _, script := range report.Scripts {
		fmt.Printf("%-8s %s", "["+script.Outcome+"]", script.Script)
		if script.Detail != "" {
			fmt.Printf("  (%s)", script.Detail)
		}
		fmt.Println()
	}
	fmt.Printf("score: %.0f%%  %s\n", report.Score, report.Summary)

	if report.Failed > 0 || report.Timeout > 0 || report.Error > 0 {
		return failValidation("%d of %d health scripts did not pass",
			report.Failed+report.Timeout+report.Error, len(report.Scripts))
	}
	return nil
}

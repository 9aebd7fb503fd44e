package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiwhisperer/aiwhisperer/internal/doctor"
)

func buildValidateCmd() *cobra.Command {
	var initWorkspace bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check workspace structure, config, and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), initWorkspace)
		},
	}
	cmd.Flags().BoolVar(&initWorkspace, "init", false, "Create the .WHISPER tree before validating")
	return cmd
}

func runValidate(ctx context.Context, initWorkspace bool) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	if initWorkspace {
		if err := a.paths.Bootstrap(); err != nil {
			return err
		}
		fmt.Println("workspace initialised at", a.paths.Whisper())
	}

	report := a.validator.Validate(ctx)
	printValidationReport(report)

	if report.Overall == doctor.StatusFail {
		return failValidation("workspace validation failed")
	}
	return nil
}

func printValidationReport(report *doctor.ValidationReport) {
	for _, check := range report.Checks {
		fmt.Printf("%-8s %-24s %s\n", statusGlyph(check.Status), check.Name, check.Message)
		if check.Recommendation != "" {
			fmt.Printf("         %-24s hint: %s\n", "", check.Recommendation)
		}
	}
	fmt.Println("overall:", report.Overall)
}

func statusGlyph(status doctor.CheckStatus) string {
	switch status {
	case doctor.StatusPass:
		return "[pass]"
	case doctor.StatusWarning:
		return "[warn]"
	case doctor.StatusFail:
		return "[FAIL]"
	default:
		return "[info]"
	}
}

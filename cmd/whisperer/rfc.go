package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func buildRFCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rfc",
		Short: "Manage RFC documents",
	}
	cmd.AddCommand(buildRFCCreateCmd(), buildRFCMoveCmd(), buildRFCListCmd())
	return cmd
}

// withApp runs a one-shot command body against a freshly composed app.
func withApp(ctx context.Context, body func(*app) error) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()
	if err := a.paths.Bootstrap(); err != nil {
		return err
	}
	return body(a)
}

func buildRFCCreateCmd() *cobra.Command {
	var shortName string

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create an RFC in in_progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				name := shortName
				if name == "" {
					name = args[0]
				}
				meta, err := a.rfcs.Create(cmd.Context(), args[0], name, "user")
				if err != nil {
					return err
				}
				fmt.Printf("created %s (%s)\n", meta.RFCID, meta.Filename)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&shortName, "short-name", "", "Short name used for the filename")
	return cmd
}

func buildRFCMoveCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "move <rfc-id> <status>",
		Short: "Move an RFC between in_progress and archived",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				meta, err := a.rfcs.Move(cmd.Context(), args[0], models.NormalizeRFCStatus(args[1]), reason)
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", meta.RFCID, meta.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Recorded with the status change")
	return cmd
}

func buildRFCListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List RFCs in both status folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				for _, status := range []models.RFCStatus{models.RFCInProgress, models.RFCArchived} {
					metas, err := a.rfcs.List(status)
					if err != nil {
						return err
					}
					for _, meta := range metas {
						fmt.Printf("%-22s %-12s %s\n", meta.RFCID, meta.Status, meta.Title)
					}
				}
				return nil
			})
		},
	}
}

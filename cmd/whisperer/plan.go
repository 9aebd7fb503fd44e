package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func buildPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage plans derived from RFCs",
	}
	cmd.AddCommand(
		buildPlanPrepareCmd(),
		buildPlanSaveCmd(),
		buildPlanUpdateCmd(),
		buildPlanMoveCmd(),
		buildPlanDeleteCmd(),
		buildPlanListCmd(),
	)
	return cmd
}

func buildPlanPrepareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare <rfc-id>",
		Short: "Print the generation input for a plan (RFC content, hash, plan name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				prep, err := a.plans.Prepare(args[0])
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(prep, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			})
		},
	}
}

func buildPlanSaveCmd() *cobra.Command {
	var planFile string

	cmd := &cobra.Command{
		Use:   "save <rfc-id> <plan-name>",
		Short: "Validate plan JSON from a file and persist it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				raw, err := os.ReadFile(planFile)
				if err != nil {
					return failValidation("read plan file: %w", err)
				}
				p, err := a.plans.Save(cmd.Context(), args[0], args[1], raw)
				if err != nil {
					return err
				}
				fmt.Printf("saved %s with %d tasks\n", args[1], len(p.Tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&planFile, "file", "", "Path to the generated plan JSON")
	cmd.MarkFlagRequired("file")
	return cmd
}

func buildPlanUpdateCmd() *cobra.Command {
	var force bool
	var preserveProgress bool

	cmd := &cobra.Command{
		Use:   "update <plan-name>",
		Short: "Regenerate a plan from its source RFC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				_, changed, err := a.plans.UpdateFromRFC(cmd.Context(), args[0], a.planGenerator(), force, preserveProgress)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Println("RFC unchanged; plan left as is")
					return nil
				}
				fmt.Printf("regenerated %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate even when the RFC hash is unchanged")
	cmd.Flags().BoolVar(&preserveProgress, "preserve-progress", true, "Carry task statuses over to same-named tasks")
	return cmd
}

func buildPlanMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <plan-name> <status>",
		Short: "Move a plan between in_progress and archived",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.plans.Move(cmd.Context(), args[0], models.NormalizeRFCStatus(args[1])); err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func buildPlanDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <plan-name>",
		Short: "Delete a plan and unlink it from its RFC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.plans.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func buildPlanListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plans in both status folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				for _, status := range []models.PlanStatus{models.RFCInProgress, models.RFCArchived} {
					names, err := a.plans.List(status)
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Printf("%-40s %s\n", name, status)
					}
				}
				return nil
			})
		},
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// buildScheduleCmd groups the Task Scheduler's (spec §4.7) admin surface:
// listing and manually triggering tasks declared in tasks.json. Creating
// tasks is left to plugin-authored `manual`-trigger actions rather than a
// CLI flag grammar for cron expressions.
func buildScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and manually trigger scheduled tasks",
	}
	cmd.AddCommand(buildScheduleListCmd(), buildScheduleRunCmd())
	return cmd
}

func buildScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered scheduled task",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, t := range a.taskStore.List() {
				next := "-"
				if t.NextRun != nil {
					next = t.NextRun.Format("2006-01-02T15:04:05")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\tnext=%s\n", t.ID, t.Name, t.ActionName, t.Status, next)
			}
			return nil
		},
	}
}

func buildScheduleRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task-id>",
		Short: "Manually fire a scheduled task's action immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.scheduler.RunTask(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s output=%v\n", result.Status, result.Output)
			return nil
		},
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gantry/cli/style"
)

func init() {
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(abandonCmd)
}

var advanceCmd = &cobra.Command{
	Use:   "advance <release-id>",
	Short: "Trigger the next stage of a release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.Advance(args[0]); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		fmt.Println(style.SuccessBox.Render("stage transition triggered"))
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Re-queue a failed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.RetryTask(args[0]); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
		fmt.Println(style.SuccessBox.Render("task re-queued"))
		return nil
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <cycle-id>",
	Short: "Abandon an in-progress regression cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.AbandonCycle(args[0]); err != nil {
			return fmt.Errorf("abandon: %w", err)
		}
		fmt.Println(style.SuccessBox.Render("cycle abandoned"))
		return nil
	},
}

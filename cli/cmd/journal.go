package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gantry/cli/api"
	"gantry/cli/style"
)

func init() {
	rootCmd.AddCommand(journalCmd)
}

var journalCmd = &cobra.Command{
	Use:   "journal [release-id]",
	Short: "View the release event journal (all releases when none given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			events []api.JournalEvent
			err    error
			title  string
		)
		if len(args) == 1 {
			events, err = client.Journal(args[0])
			title = "journal " + short(args[0])
		} else {
			events, err = client.RecentJournal()
			title = "journal"
		}
		if err != nil {
			return fmt.Errorf("fetch journal: %w", err)
		}

		if len(events) == 0 {
			fmt.Println(style.DimText.Render("no journal events"))
			return nil
		}

		fmt.Println(style.Title.Render(title))
		fmt.Println()

		for _, evt := range events {
			ts, _ := time.Parse(time.RFC3339Nano, evt.Timestamp)
			fmt.Printf("  %s %s %s\n",
				style.DimText.Render(ts.Format("Jan 02 15:04:05")),
				actionIcon(evt.Action),
				evt.Message,
			)
		}
		return nil
	},
}

func actionIcon(action string) string {
	switch action {
	case "task.completed", "stage.completed", "cycle.done", "release.finalized":
		return style.StepDone.Render("✓")
	case "task.failed":
		return style.StepFailed.Render("✗")
	case "task.dispatched", "cycle.started":
		return style.StepRunning.Render("▶")
	case "cycle.abandoned":
		return style.Warning.Render("!")
	default:
		return style.DimText.Render("·")
	}
}

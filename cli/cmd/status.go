package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gantry/cli/api"
	"gantry/cli/style"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <release-id>",
	Short: "Show stage and task status for a release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := client.GetRelease(args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch release: %w", err)
		}

		rel := snap.Release
		name := rel.Tenant + "/" + rel.App + " " + rel.Version
		fmt.Println(style.Title.Render(name))
		fmt.Printf("  %s %s\n", style.Key.Render("Phase"), style.Val.Render(rel.Phase))
		fmt.Printf("  %s %s\n", style.Key.Render("Platforms"), strings.Join(rel.Platforms, ", "))
		if rel.Branch != "" {
			fmt.Printf("  %s %s\n", style.Key.Render("Branch"), rel.Branch)
		}
		fmt.Println()

		fmt.Println(style.Subtitle.Render("stages"))
		for _, st := range snap.Stages {
			marker := ""
			if st.AutoAdvance {
				marker = style.DimText.Render(" (auto)")
			}
			fmt.Printf("  %s %s %s%s\n",
				style.StageGlyph(st.State),
				style.Bold.Render(st.Stage),
				style.DimText.Render(st.State),
				marker,
			)
		}
		fmt.Println()

		if len(snap.Tasks) > 0 {
			fmt.Println(style.Subtitle.Render("tasks"))
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, t := range snap.Tasks {
				scope := ""
				if t.CycleID != "" {
					scope = style.DimText.Render(" cycle " + short(t.CycleID))
				}
				fmt.Fprintf(w, "  %s %s\t%s\t%s%s\n",
					style.TaskIcon(t.Status),
					t.Type,
					t.Status,
					reasonOrPlatforms(t),
					scope,
				)
			}
			w.Flush()
			fmt.Println()
		}

		if len(snap.Cycles) > 0 {
			fmt.Println(style.Subtitle.Render("regression cycles"))
			for _, c := range snap.Cycles {
				tag := ""
				if c.Tag != "" {
					tag = " " + style.PlatformBadge.Render(c.Tag)
				}
				fmt.Printf("  %s cycle %d %s%s\n",
					style.TaskIcon(cycleIcon(c.Status)),
					c.Slot+1,
					style.DimText.Render(c.Status),
					tag,
				)
			}
		}
		return nil
	},
}

func reasonOrPlatforms(t api.Task) string {
	if t.Reason != "" {
		return style.Unhealthy.Render(t.Reason)
	}
	return style.DimText.Render(strings.Join(t.Platforms, ", "))
}

func cycleIcon(status string) string {
	switch status {
	case "DONE":
		return "COMPLETED"
	case "ABANDONED":
		return "FAILED"
	default:
		return "IN_PROGRESS"
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

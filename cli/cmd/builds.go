package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gantry/cli/style"
)

func init() {
	rootCmd.AddCommand(buildsCmd)
}

var buildsCmd = &cobra.Command{
	Use:   "builds <release-id>",
	Short: "List staged and consumed build artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		builds, err := client.ListBuilds(args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch builds: %w", err)
		}

		if len(builds) == 0 {
			fmt.Println(style.DimText.Render("no builds uploaded"))
			return nil
		}

		fmt.Println(style.Title.Render("build artifacts"))
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, style.TableHeader.Render("PLATFORM")+"\t"+
			style.TableHeader.Render("STAGE")+"\t"+
			style.TableHeader.Render("SOURCE")+"\t"+
			style.TableHeader.Render("STATE")+"\t"+
			style.TableHeader.Render("STAGED"))

		for _, b := range builds {
			state := style.Warning.Render("staged")
			if b.Consumed {
				state = style.DimText.Render("consumed")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				style.PlatformBadge.Render(b.Platform),
				b.Stage,
				b.Source,
				state,
				shortTime(b.StagedAt),
			)
		}
		w.Flush()

		for _, b := range builds {
			if b.DownloadURL != "" && !b.Consumed {
				fmt.Println()
				fmt.Printf("  %s %s\n", style.Key.Render(b.Platform), style.DimText.Render(b.DownloadURL))
			}
		}
		return nil
	},
}

func shortTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("Jan 02 15:04")
}

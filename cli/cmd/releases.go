package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gantry/cli/style"
)

func init() {
	rootCmd.AddCommand(releasesCmd)
}

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "List all release trains",
	RunE: func(cmd *cobra.Command, args []string) error {
		releases, err := client.ListReleases()
		if err != nil {
			return fmt.Errorf("failed to fetch releases: %w", err)
		}

		if len(releases) == 0 {
			fmt.Println(style.DimText.Render("no releases"))
			return nil
		}

		fmt.Println(style.Title.Render("release trains"))
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, style.TableHeader.Render("RELEASE")+"\t"+
			style.TableHeader.Render("PHASE")+"\t"+
			style.TableHeader.Render("PLATFORMS")+"\t"+
			style.TableHeader.Render("KICKOFF")+"\t"+
			style.TableHeader.Render("TARGET"))

		for _, rel := range releases {
			name := rel.Tenant + "/" + rel.App + " " + rel.Version
			fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\t%s\n",
				style.PhaseDot(rel.Phase),
				style.Bold.Render(name),
				rel.Phase,
				strings.Join(rel.Platforms, ", "),
				shortDate(rel.KickoffAt),
				shortDate(rel.TargetAt),
			)
		}
		w.Flush()
		return nil
	},
}

func shortDate(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("Jan 02")
}

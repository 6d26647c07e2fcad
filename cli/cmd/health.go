package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gantry/cli/style"
)

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check API and backing service health",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := client.Health()
		if err != nil {
			fmt.Println(style.ErrorBox.Render("API unreachable: " + err.Error()))
			return nil
		}

		dot := style.StatusDot(h["status"] == "ok")
		fmt.Printf("%s api %s\n", dot, h["status"])
		for svc, status := range h {
			if svc == "status" {
				continue
			}
			srvDot := style.DotUnhealthy
			if status == "ok" {
				srvDot = style.DotHealthy
			}
			fmt.Printf("  %s %s %s\n", srvDot, svc, status)
		}
		return nil
	},
}

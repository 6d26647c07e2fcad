package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"gantry/cli/api"
)

var (
	apiURL   string
	apiToken string
	client   *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Release train CLI for mobile and web apps",
	Long: `Gantry — a release orchestration engine for app release trains.

Track releases through kickoff, regression, and submission, watch task
progress, retry failures, and advance stages from the terminal.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = api.New(apiURL, apiToken)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("GANTRY_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8700"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "Gantry API URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("GANTRY_API_TOKEN"), "API bearer token")
}

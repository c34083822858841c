package main

import (
	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "reporterctl",
	Short: "CLI for the report generation server",
	Long: `reporterctl submits report jobs to the reporter server and tracks them.

generate submits a job for a plan, a single run, or an explicit run list, and
can watch it to completion with a live progress bar. status, history and
health inspect a running server.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Reporter server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(healthCmd)
}

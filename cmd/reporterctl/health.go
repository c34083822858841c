package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/jobs"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show queue and worker health",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := newClient()

	var stats jobs.Stats
	if err := client.getJSON("/health", &stats); err != nil {
		return err
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(stats)
	}

	fields := [][2]string{
		{"Queued", strconv.Itoa(stats.Queued)},
		{"Running", strconv.Itoa(stats.Running)},
		{"Size", strconv.Itoa(stats.Size)},
		{"History limit", strconv.Itoa(stats.HistoryLimit)},
	}
	if stats.LastJobID != "" {
		fields = append(fields,
			[2]string{"Last job", stats.LastJobID},
			[2]string{"Last job status", string(stats.LastJobState)},
		)
	}

	printFields(fields)
	return nil
}

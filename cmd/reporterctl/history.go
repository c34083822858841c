package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// historyEntry mirrors the server's report history JSON.
type historyEntry struct {
	ID           string     `json:"ID"`
	ProjectID    int        `json:"ProjectID"`
	PlanID       int        `json:"PlanID"`
	RunID        int        `json:"RunID"`
	RunIDs       string     `json:"RunIDs"`
	Status       string     `json:"Status"`
	Artifact     string     `json:"Artifact"`
	Error        string     `json:"Error"`
	GeneratedAt  *time.Time `json:"GeneratedAt"`
	DurationMs   int64      `json:"DurationMs"`
	APICallCount int        `json:"APICallCount"`
	CreatedAt    time.Time  `json:"CreatedAt"`
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently generated reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			var resp struct {
				Reports []historyEntry `json:"reports"`
				Count   int            `json:"count"`
			}
			if err := client.getJSON("/history?limit="+strconv.Itoa(limit), &resp); err != nil {
				return err
			}

			if outputFmt == "json" || outputFmt == "yaml" {
				return printOutput(resp)
			}

			rows := make([][]string, 0, len(resp.Reports))
			for _, r := range resp.Reports {
				rows = append(rows, []string{
					r.ID,
					scopeOf(r),
					r.Status,
					formatMillis(r.DurationMs),
					clip(r.Artifact, 40),
					r.CreatedAt.Format(time.RFC3339),
				})
			}
			printRows([]string{"Job", "Scope", "Status", "Duration", "Artifact", "Created"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to list")
	return cmd
}

func scopeOf(r historyEntry) string {
	switch {
	case r.PlanID != 0:
		return "plan " + strconv.Itoa(r.PlanID)
	case r.RunID != 0:
		return "run " + strconv.Itoa(r.RunID)
	case r.RunIDs != "":
		return "runs " + r.RunIDs
	default:
		return "project " + strconv.Itoa(r.ProjectID)
	}
}

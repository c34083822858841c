package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/jobs"
	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/progress"
)

const animationTick = 120 * time.Millisecond

func newGenerateCmd() *cobra.Command {
	var (
		project     int
		plan        int
		run         int
		runs        []int
		attachments bool
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Submit a report job",
		Long: `Submit a report job for a plan, a single run, or an explicit run list.
Exactly one of --plan, --run, --runs must be given. With --watch the command
polls the job and renders a progress bar until it completes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			params := jobs.Params{
				ProjectID:          project,
				PlanID:             plan,
				RunID:              run,
				RunIDs:             runs,
				IncludeAttachments: attachments,
			}

			snap, err := client.submit(params)
			if err != nil {
				return err
			}

			if snap.Status.Terminal() {
				// Fast path: the server completed the job inline.
				return printResult(snap)
			}

			if !watch {
				if outputFmt == "json" || outputFmt == "yaml" {
					return printOutput(snap)
				}
				fmt.Printf("Job %s queued (position %d). Track it with:\n  reporterctl status %s --watch\n",
					snap.ID, snap.QueuePosition, snap.ID)
				return nil
			}

			return watchJob(client, snap.ID)
		},
	}

	cmd.Flags().IntVar(&project, "project", 0, "Project id (falls back to the server default)")
	cmd.Flags().IntVar(&plan, "plan", 0, "Generate a report for every run in this plan")
	cmd.Flags().IntVar(&run, "run", 0, "Generate a report for a single run")
	cmd.Flags().IntSliceVar(&runs, "runs", nil, "Generate a report for an explicit run id list")
	cmd.Flags().BoolVar(&attachments, "attachments", false, "Download and embed attachments")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll the job and render progress until done")

	return cmd
}

// watchJob polls the job with the adaptive interval and animates the
// displayed percentage toward each new projection.
func watchJob(client *reporterClient, id string) error {
	var bar progress.Smoother

	for attempt := 0; ; attempt++ {
		snap, err := client.job(id)
		if err != nil {
			return err
		}
		proj := progress.Project(snap, time.Now())

		if snap.Status.Terminal() {
			// Let the bar catch up before printing the outcome.
			for bar.Shown() < float64(proj.Percent) {
				drawBar(bar.Tick(float64(proj.Percent)), proj.Label, nil)
				time.Sleep(animationTick / 3)
			}
			fmt.Println()
			return printResult(snap)
		}

		deadline := time.Now().Add(progress.PollInterval(attempt))
		for time.Now().Before(deadline) {
			drawBar(bar.Tick(float64(proj.Percent)), proj.Label, proj.ETA)
			time.Sleep(animationTick)
		}
	}
}

func drawBar(shown float64, label string, eta *time.Duration) {
	const width = 30
	filled := int(shown / 100 * width)
	if filled > width {
		filled = width
	}

	suffix := ""
	if eta != nil {
		suffix = fmt.Sprintf(" (about %s left)", eta.Round(time.Second))
	}

	fmt.Printf("\r[%s%s] %3.0f%% %s%s\033[K",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		shown,
		clip(label, 48),
		suffix,
	)
}

func printResult(snap jobs.Snapshot) error {
	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(snap)
	}

	if snap.Status == jobs.StateError {
		return fmt.Errorf("job %s failed: %s", snap.ID, snap.Error)
	}

	fmt.Printf("Report ready: %s\n", snap.Result)
	if snap.Meta.DurationMs > 0 {
		fmt.Printf("Generated in %s with %d upstream calls.\n",
			(time.Duration(snap.Meta.DurationMs) * time.Millisecond).Round(time.Millisecond),
			snap.Meta.APICallCount)
	}
	return nil
}

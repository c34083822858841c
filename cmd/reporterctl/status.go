package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/progress"
)

func newStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a report job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			if watch {
				return watchJob(client, args[0])
			}

			snap, err := client.job(args[0])
			if err != nil {
				return err
			}

			if outputFmt == "json" || outputFmt == "yaml" {
				return printOutput(snap)
			}

			proj := progress.Project(snap, time.Now())

			fields := [][2]string{
				{"Job", snap.ID},
				{"Status", string(snap.Status)},
				{"Progress", fmt.Sprintf("%d%% (%s)", proj.Percent, proj.Label)},
			}
			if snap.Status == "queued" {
				fields = append(fields, [2]string{"Queue position", strconv.Itoa(snap.QueuePosition)})
			}
			if snap.Meta.Stage != "" {
				fields = append(fields, [2]string{"Stage", snap.Meta.Stage})
			}
			if proj.ETA != nil {
				fields = append(fields, [2]string{"ETA", proj.ETA.Round(time.Second).String()})
			}
			if snap.Result != "" {
				fields = append(fields, [2]string{"Artifact", snap.Result})
			}
			if snap.Error != "" {
				fields = append(fields, [2]string{"Error", clip(snap.Error, 80)})
			}
			fields = append(fields, [2]string{"API calls", strconv.Itoa(snap.Meta.APICallCount)})

			printFields(fields)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll the job and render progress until done")
	return cmd
}

// Package report assembles the dataset behind one generated report: it
// orchestrates the upstream API client and the response cache, streams stage
// events into the owning job, and hands the result to the renderer.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/jobs"
	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/testrail"
)

// Stage names emitted into a job's progress history, in pipeline order.
const (
	StageInitializing          = "initializing"
	StageProcessingRun         = "processing_run"
	StageFetchingAttachments   = "fetching_attachment_metadata"
	StageDownloadingAll        = "downloading_attachments"
	StageDownloadingAttachment = "downloading_attachment"
	StageRendering             = "rendering_report"
)

// ProgressSink receives stage events as the pipeline advances. *jobs.Job
// satisfies it.
type ProgressSink interface {
	SetStage(stage string, payload map[string]any)
}

// Data is the fully aggregated dataset handed to the renderer.
type Data struct {
	ProjectID   int
	Plan        *testrail.Plan // nil for run-scoped reports
	Runs        []RunData
	GeneratedAt time.Time
}

// RunData is everything collected for one run.
type RunData struct {
	Run         testrail.Run
	Tests       []TestRow
	Results     []testrail.Result
	Attachments []AttachmentData
}

// TestRow is a test with its display names resolved. When enrichment lookups
// fail the names fall back to the raw numeric ids.
type TestRow struct {
	Test         testrail.Test
	StatusName   string
	PriorityName string
	AssigneeName string
}

// AttachmentData is one downloaded attachment, or a placeholder when the
// download failed (the report still renders; see Failed).
type AttachmentData struct {
	Meta   testrail.Attachment
	Bytes  []byte
	Failed bool
}

// Pipeline aggregates report data for a plan or run.
type Pipeline struct {
	client   *testrail.Client
	renderer Renderer
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(client *testrail.Client, renderer Renderer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{client: client, renderer: renderer, logger: logger}
}

// Run executes the pipeline for one job, satisfying jobs.Runner. Every
// external call made on the job's behalf lands in its call log, and stage
// events land in its progress history.
func (p *Pipeline) Run(ctx context.Context, job *jobs.Job) (string, error) {
	client := p.client.WithRecorder(job)

	start := time.Now()
	if t := job.StartedAt(); t != nil {
		start = *t
	}

	data, err := p.generate(ctx, client, job.JobParams(), job)
	if err != nil {
		return "", err
	}

	artifact, err := p.renderer.Render(data)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	job.Finalize(data.GeneratedAt, time.Since(start))
	return artifact, nil
}

// generate aggregates the dataset, emitting stage events into sink.
func (p *Pipeline) generate(ctx context.Context, client *testrail.Client, params jobs.Params, sink ProgressSink) (*Data, error) {
	sink.SetStage(StageInitializing, nil)

	data := &Data{ProjectID: params.ProjectID}

	runs, err := p.resolveRuns(ctx, client, params, data)
	if err != nil {
		return nil, err
	}

	names := p.fetchNames(ctx, client, params.ProjectID)

	total := len(runs)
	for i, run := range runs {
		sink.SetStage(StageProcessingRun, map[string]any{
			"run_id": run.ID,
			"index":  i + 1,
			"total":  total,
		})

		runData, err := p.processRun(ctx, client, run, names)
		if err != nil {
			return nil, err
		}
		data.Runs = append(data.Runs, *runData)
	}

	if params.IncludeAttachments {
		p.collectAttachments(ctx, client, data, sink)
	}

	sink.SetStage(StageRendering, nil)
	data.GeneratedAt = time.Now()
	return data, nil
}

// resolveRuns determines the runs in scope, in ascending run id order so
// report output is deterministic. Failures here are fatal to the job.
func (p *Pipeline) resolveRuns(ctx context.Context, client *testrail.Client, params jobs.Params, data *Data) ([]testrail.Run, error) {
	var runs []testrail.Run

	switch {
	case params.PlanID != 0:
		plan, err := client.GetPlan(ctx, params.PlanID)
		if err != nil {
			return nil, fmt.Errorf("fetch plan %d: %w", params.PlanID, err)
		}
		data.Plan = plan
		for _, entry := range plan.Entries {
			runs = append(runs, entry.Runs...)
		}

	case params.RunID != 0:
		run, err := client.GetRun(ctx, params.RunID)
		if err != nil {
			return nil, fmt.Errorf("fetch run %d: %w", params.RunID, err)
		}
		runs = append(runs, *run)

	default:
		for _, id := range params.RunIDs {
			run, err := client.GetRun(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("fetch run %d: %w", id, err)
			}
			runs = append(runs, *run)
		}
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}

// nameMaps holds the best-effort enrichment lookups.
type nameMaps struct {
	users      map[int]string
	priorities map[int]string
	statuses   map[int]string
}

// fetchNames loads user/priority/status display names once per job. Lookup
// failures are absorbed: missing maps mean rows display raw numeric ids.
func (p *Pipeline) fetchNames(ctx context.Context, client *testrail.Client, projectID int) nameMaps {
	names := nameMaps{
		users:      map[int]string{},
		priorities: map[int]string{},
		statuses:   map[int]string{},
	}

	if users, err := client.GetUsers(ctx, projectID); err != nil {
		p.logger.Warn("user lookup failed, falling back to ids", "error", err)
	} else {
		for _, u := range users {
			names.users[u.ID] = u.Name
		}
	}

	if priorities, err := client.GetPriorities(ctx); err != nil {
		p.logger.Warn("priority lookup failed, falling back to ids", "error", err)
	} else {
		for _, pr := range priorities {
			names.priorities[pr.ID] = pr.Name
		}
	}

	if statuses, err := client.GetStatuses(ctx); err != nil {
		p.logger.Warn("status lookup failed, falling back to ids", "error", err)
	} else {
		for _, st := range statuses {
			names.statuses[st.ID] = st.Label
		}
	}

	return names
}

// processRun fetches the test and result data of one run. The run's own
// counters are the source of truth for pass/fail totals; tests and results
// provide the row-level detail. Failures here are fatal to the job.
func (p *Pipeline) processRun(ctx context.Context, client *testrail.Client, run testrail.Run, names nameMaps) (*RunData, error) {
	tests, err := client.GetTests(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch tests for run %d: %w", run.ID, err)
	}

	results, err := client.GetResultsForRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch results for run %d: %w", run.ID, err)
	}

	runData := &RunData{Run: run, Results: results}
	for _, test := range tests {
		row := TestRow{
			Test:         test,
			StatusName:   lookupName(names.statuses, test.StatusID),
			PriorityName: lookupName(names.priorities, test.PriorityID),
		}
		if test.AssignedTo != nil {
			row.AssigneeName = lookupName(names.users, *test.AssignedTo)
		}
		runData.Tests = append(runData.Tests, row)
	}
	return runData, nil
}

// collectAttachments fetches attachment metadata and bytes for every run in
// the dataset. Nothing here fails the job: a failed download is recorded as
// a placeholder and the report renders degraded rather than broken.
func (p *Pipeline) collectAttachments(ctx context.Context, client *testrail.Client, data *Data, sink ProgressSink) {
	type pending struct {
		runIdx int
		meta   testrail.Attachment
	}
	var all []pending

	for i := range data.Runs {
		metas, err := client.GetAttachmentsForRun(ctx, data.Runs[i].Run.ID)
		if err != nil {
			p.logger.Warn("attachment metadata fetch failed, skipping run",
				"run", data.Runs[i].Run.ID, "error", err)
			continue
		}
		for _, meta := range metas {
			all = append(all, pending{runIdx: i, meta: meta})
		}
	}

	sink.SetStage(StageFetchingAttachments, map[string]any{"count": len(all)})
	if len(all) == 0 {
		return
	}

	total := len(all)
	sink.SetStage(StageDownloadingAll, map[string]any{"total": total})

	for i, item := range all {
		sink.SetStage(StageDownloadingAttachment, map[string]any{
			"current": i + 1,
			"total":   total,
		})

		att := AttachmentData{Meta: item.meta}
		body, err := client.DownloadAttachment(ctx, item.meta.ID)
		if err != nil {
			p.logger.Warn("attachment download failed, rendering placeholder",
				"attachment", item.meta.ID, "error", err)
			att.Failed = true
		} else {
			att.Bytes = body
		}
		data.Runs[item.runIdx].Attachments = append(data.Runs[item.runIdx].Attachments, att)
	}
}

// lookupName resolves an id against an enrichment map, falling back to the
// raw numeric id when missing.
func lookupName(m map[int]string, id int) string {
	if name, ok := m[id]; ok && name != "" {
		return name
	}
	return strconv.Itoa(id)
}

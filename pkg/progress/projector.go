// Package progress turns the sparse stage events recorded on a job into a
// smooth display percentage and a remaining-time estimate. It is the client
// half of the progress model: the server only records what stage it is in,
// the projector decides what that looks like on a progress bar.
package progress

import (
	"fmt"
	"math"
	"time"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/jobs"
)

// Stage names mirrored here so the projector has no dependency on the
// report package.
const (
	stageInitializing          = "initializing"
	stageProcessingRun         = "processing_run"
	stageFetchingAttachments   = "fetching_attachment_metadata"
	stageDownloadingAll        = "downloading_attachments"
	stageDownloadingAttachment = "downloading_attachment"
	stageRendering             = "rendering_report"
)

// etaMinElapsed and etaMinFraction gate the ETA: below these the projection
// is a wild guess and is withheld instead.
const (
	etaMinElapsed  = 5 * time.Second
	etaMinFraction = 0.05
)

// Projection is what a progress display needs for one poll of a job.
type Projection struct {
	Percent int
	Label   string
	ETA     *time.Duration // nil while too early to estimate
}

// Project maps the latest state of a job snapshot to a display projection.
// now is the observation time, used for the elapsed-based ETA.
func Project(snap jobs.Snapshot, now time.Time) Projection {
	switch snap.Status {
	case jobs.StateQueued:
		if snap.QueuePosition == 0 {
			return Projection{Percent: 5, Label: "Queued, starting soon"}
		}
		return Projection{Percent: 2, Label: fmt.Sprintf("Queued (position %d)", snap.QueuePosition)}
	case jobs.StateSuccess:
		return Projection{Percent: 100, Label: "Report ready"}
	case jobs.StateError:
		label := snap.Error
		if label == "" {
			label = "Report generation failed"
		}
		return Projection{Percent: 100, Label: label}
	}

	index, total := currentRun(snap.Meta.ProgressUpdates)
	basePerRun := 1.0 / math.Max(1, float64(total))
	completed := math.Max(0, float64(index-1)) * basePerRun

	fraction := math.Min(0.995, completed+stageWeight(snap.Meta)*basePerRun)

	// Rounding 0.995 up would show a false 100% before the terminal state;
	// the displayed value is pinned to 99 until the job actually finishes.
	return Projection{
		Percent: int(math.Min(99, math.Round(fraction*100))),
		Label:   stageLabel(snap.Meta, index, total),
		ETA:     projectETA(snap.StartedAt, now, fraction),
	}
}

// currentRun scans the updates backward for the most recent processing_run
// event. Before the first run starts the job is treated as run 1 of 1.
func currentRun(updates []jobs.ProgressUpdate) (index, total int) {
	for i := len(updates) - 1; i >= 0; i-- {
		if updates[i].Stage != stageProcessingRun {
			continue
		}
		index = payloadInt(updates[i].Payload, "index")
		total = payloadInt(updates[i].Payload, "total")
		if index < 1 {
			index = 1
		}
		if total < 1 {
			total = 1
		}
		return index, total
	}
	return 1, 1
}

// stageWeight maps the current stage to its fractional position within one
// run. Unknown stages project as a freshly started run.
func stageWeight(meta jobs.Meta) float64 {
	switch meta.Stage {
	case stageFetchingAttachments:
		return 0.18
	case stageDownloadingAll:
		if payloadInt(meta.StagePayload, "total") <= 0 {
			return 0.25
		}
		return 0.20
	case stageDownloadingAttachment:
		current := payloadInt(meta.StagePayload, "current")
		total := payloadInt(meta.StagePayload, "total")
		if total < 1 {
			total = 1
		}
		return 0.20 + math.Min(1, float64(current)/float64(total))*0.65
	case stageRendering:
		return 0.95
	case stageInitializing, stageProcessingRun:
		return 0.05
	default:
		return 0.05
	}
}

func stageLabel(meta jobs.Meta, index, total int) string {
	switch meta.Stage {
	case stageProcessingRun:
		return fmt.Sprintf("Processing run %d of %d", index, total)
	case stageFetchingAttachments:
		return "Collecting attachment metadata"
	case stageDownloadingAll:
		return "Downloading attachments"
	case stageDownloadingAttachment:
		current := payloadInt(meta.StagePayload, "current")
		dlTotal := payloadInt(meta.StagePayload, "total")
		return fmt.Sprintf("Downloading attachment %d of %d", current, dlTotal)
	case stageRendering:
		return "Rendering report"
	default:
		return "Initializing"
	}
}

// projectETA extrapolates remaining time from the elapsed/fraction ratio.
// Returns nil until enough has elapsed and enough ground has been covered
// for the extrapolation to mean anything.
func projectETA(startedAt *time.Time, now time.Time, fraction float64) *time.Duration {
	if startedAt == nil {
		return nil
	}
	elapsed := now.Sub(*startedAt)
	if elapsed <= etaMinElapsed || fraction <= etaMinFraction {
		return nil
	}
	eta := time.Duration(math.Max(0, float64(elapsed)/fraction-float64(elapsed)))
	return &eta
}

// payloadInt reads an integer out of a stage payload. Payloads that crossed
// a JSON boundary carry float64 values, in-process ones carry ints.
func payloadInt(payload map[string]any, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Smoother animates a displayed percentage toward a moving target so the
// bar advances continuously instead of jumping between coarse stage events.
type Smoother struct {
	shown float64
}

// Tick advances the displayed value one animation step toward target and
// returns the new value. The step grows with the remaining gap but never
// overshoots.
func (s *Smoother) Tick(target float64) float64 {
	gap := target - s.shown
	if gap == 0 {
		return s.shown
	}

	step := math.Max(0.25, math.Abs(gap)*0.18)
	if step >= math.Abs(gap) {
		s.shown = target
		return s.shown
	}
	if gap > 0 {
		s.shown += step
	} else {
		s.shown -= step
	}
	return s.shown
}

// Shown returns the current displayed value without advancing it.
func (s *Smoother) Shown() float64 { return s.shown }

// PollInterval returns how long a status-polling client should wait before
// poll number attempt (0-based). It backs off linearly and tops out at 5s.
func PollInterval(attempt int) time.Duration {
	interval := 1200*time.Millisecond + time.Duration(attempt)*200*time.Millisecond
	if interval > 5*time.Second {
		return 5 * time.Second
	}
	return interval
}

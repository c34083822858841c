package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/jobs"
)

// ReportRecord persists the outcome of one report job so the artifact index
// survives server restarts (the job queue itself is deliberately volatile).
type ReportRecord struct {
	ID           string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	ProjectID    int        `gorm:"column:project_id;index"`
	PlanID       int        `gorm:"column:plan_id"`
	RunID        int        `gorm:"column:run_id"`
	RunIDs       string     `gorm:"column:run_ids"` // comma-joined explicit run list
	Status       string     `gorm:"column:status;not null"`
	Artifact     string     `gorm:"column:artifact"`
	Error        string     `gorm:"column:error"`
	GeneratedAt  *time.Time `gorm:"column:generated_at"`
	DurationMs   int64      `gorm:"column:duration_ms"`
	APICallCount int        `gorm:"column:api_call_count"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (ReportRecord) TableName() string { return "report_history" }

// HistoryStore provides database operations for report records.
type HistoryStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewHistoryStore creates a HistoryStore. db may be nil, in which case every
// operation is a no-op (history is optional).
func NewHistoryStore(db *gorm.DB, logger *slog.Logger) *HistoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStore{db: db, logger: logger}
}

// AutoMigrate creates or updates the report_history table.
func (s *HistoryStore) AutoMigrate() error {
	if s.db == nil {
		return nil
	}
	return s.db.AutoMigrate(&ReportRecord{})
}

// JobCompleted persists the terminal snapshot of a job, satisfying
// jobs.CompletionSink. Persistence failures are logged, never propagated:
// the job outcome is already decided.
func (s *HistoryStore) JobCompleted(snap jobs.Snapshot) {
	if s.db == nil {
		return
	}

	record := ReportRecord{
		ID:           snap.ID,
		ProjectID:    snap.Params.ProjectID,
		PlanID:       snap.Params.PlanID,
		RunID:        snap.Params.RunID,
		RunIDs:       joinIDs(snap.Params.RunIDs),
		Status:       string(snap.Status),
		Artifact:     snap.Result,
		Error:        snap.Error,
		GeneratedAt:  snap.Meta.GeneratedAt,
		DurationMs:   snap.Meta.DurationMs,
		APICallCount: snap.Meta.APICallCount,
	}

	if err := s.db.Save(&record).Error; err != nil {
		s.logger.Error("failed to save report record", "jobID", snap.ID, "error", err)
	}
}

// Get retrieves one record by job id. Returns nil when not found.
func (s *HistoryStore) Get(id string) (*ReportRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	var record ReportRecord
	if err := s.db.First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get report record: %w", err)
	}
	return &record, nil
}

// List returns the most recent records, newest first.
func (s *HistoryStore) List(limit int) ([]ReportRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var records []ReportRecord
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list report records: %w", err)
	}
	return records, nil
}

// DeleteOlderThan removes records older than the cutoff.
func (s *HistoryStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	result := s.db.Where("created_at < ?", cutoff).Delete(&ReportRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old report records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RetentionLoop periodically deletes records older than maxAge. It blocks
// until ctx is done; run it on its own goroutine.
func (s *HistoryStore) RetentionLoop(ctx context.Context, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.DeleteOlderThan(time.Now().Add(-maxAge))
			if err != nil {
				s.logger.Error("report history retention sweep failed", "error", err)
			} else if deleted > 0 {
				s.logger.Info("report history retention sweep", "deleted", deleted)
			}
		}
	}
}

// HistoryHandler handles GET /api/reports/v1/history?limit=N.
func HistoryHandler(store *HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		records, err := store.List(limit)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"reports": records, "count": len(records)})
	}
}

func joinIDs(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

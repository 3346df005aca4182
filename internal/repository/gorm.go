package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/model"
)

// traceBatchSize bounds the rows of one INSERT statement.
const traceBatchSize = 500

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// CreateRun inserts run and copies the generated ID back.
func (r *GormRunRepository) CreateRun(ctx context.Context, run *model.Run) error {
	if run.UUID == "" {
		run.UUID = uuid.NewString()
	}
	rec := &RunRecord{
		UUID:       run.UUID,
		Kind:       run.Kind,
		Status:     run.Status,
		StatusInfo: run.StatusInfo,
		Threads:    run.Threads,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to create run", err)
	}
	run.ID = rec.ID
	run.CreateTime = rec.CreateTime
	return nil
}

// StartRun moves a pending run to running.
func (r *GormRunRepository) StartRun(ctx context.Context, id int64) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&RunRecord{}).
		Where("id = ? AND status = ?", id, model.RunStatusPending).
		Updates(map[string]interface{}{
			"status":     model.RunStatusRunning,
			"begin_time": &now,
		})

	if result.Error != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to start run", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("pending run not found: %d", id))
	}
	return nil
}

// FinishRun records the summary of a run and marks it completed.
func (r *GormRunRepository) FinishRun(ctx context.Context, id int64, summary *model.RunSummary) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":      model.RunStatusCompleted,
		"threads":     summary.Threads,
		"nodes":       summary.Nodes,
		"samples":     summary.Samples,
		"total":       summary.Total,
		"result_file": summary.ResultFile,
	})
}

// FailRun marks a run failed with the given status info.
func (r *GormRunRepository) FailRun(ctx context.Context, id int64, info string) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":      model.RunStatusFailed,
		"status_info": info,
	})
}

// finish applies updates to a run that has not reached a terminal state.
func (r *GormRunRepository) finish(ctx context.Context, id int64, updates map[string]interface{}) error {
	now := time.Now()
	updates["end_time"] = &now

	result := r.db.WithContext(ctx).
		Model(&RunRecord{}).
		Where("id = ? AND status IN ?", id, []model.RunStatus{model.RunStatusPending, model.RunStatusRunning}).
		Updates(updates)

	if result.Error != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to update run", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("open run not found: %d", id))
	}
	return nil
}

// GetRun retrieves a run by its ID.
func (r *GormRunRepository) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	var rec RunRecord

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("run not found: %d", id))
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get run", err)
	}

	return rec.ToModel(), nil
}

// ListRuns returns the most recent runs, newest first.
func (r *GormRunRepository) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	var recs []RunRecord

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list runs", err)
	}

	runs := make([]*model.Run, len(recs))
	for i := range recs {
		runs[i] = recs[i].ToModel()
	}
	return runs, nil
}

// GormTraceRepository implements TraceRepository using GORM.
type GormTraceRepository struct {
	db *gorm.DB
}

// NewGormTraceRepository creates a new GormTraceRepository.
func NewGormTraceRepository(db *gorm.DB) *GormTraceRepository {
	return &GormTraceRepository{db: db}
}

// AppendTrace inserts a batch of trace records.
func (r *GormTraceRepository) AppendTrace(ctx context.Context, records []model.TraceRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]ActivityTrace, len(records))
	for i := range records {
		rows[i] = FromTraceRecord(&records[i])
	}

	if err := r.db.WithContext(ctx).CreateInBatches(rows, traceBatchSize).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to append trace", err)
	}
	return nil
}

// CountTraces returns the number of records stored for a run.
func (r *GormTraceRepository) CountTraces(ctx context.Context, runID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&ActivityTrace{}).
		Where("run_id = ?", runID).
		Count(&n).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to count traces", err)
	}
	return n, nil
}

// ListTraces returns up to limit records of a run ordered by start time.
func (r *GormTraceRepository) ListTraces(ctx context.Context, runID int64, limit int) ([]model.TraceRecord, error) {
	var rows []ActivityTrace

	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("start_ns ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list traces", err)
	}

	out := make([]model.TraceRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].ToModel()
	}
	return out, nil
}

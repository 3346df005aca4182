// Package repository persists runs and device activity traces.
package repository

import (
	"context"

	"github.com/callpath-core/pkg/model"
)

// RunRepository defines the interface for run bookkeeping.
type RunRepository interface {
	// CreateRun inserts run and sets its ID and UUID when empty.
	CreateRun(ctx context.Context, run *model.Run) error

	// StartRun moves a pending run to running.
	StartRun(ctx context.Context, id int64) error

	// FinishRun records the summary of a run and marks it completed.
	FinishRun(ctx context.Context, id int64, summary *model.RunSummary) error

	// FailRun marks a run failed with the given status info.
	FailRun(ctx context.Context, id int64, info string) error

	// GetRun retrieves a run by its ID.
	GetRun(ctx context.Context, id int64) (*model.Run, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)
}

// TraceRepository defines the interface for activity trace storage.
type TraceRepository interface {
	// AppendTrace inserts a batch of trace records.
	AppendTrace(ctx context.Context, records []model.TraceRecord) error

	// CountTraces returns the number of records stored for a run.
	CountTraces(ctx context.Context, runID int64) (int64, error)

	// ListTraces returns up to limit records of a run ordered by start time.
	ListTraces(ctx context.Context, runID int64, limit int) ([]model.TraceRecord, error)
}

// Package model defines the records persisted by the repository layer.
package model

import (
	"time"
)

// RunKind is what produced a run.
type RunKind int

const (
	RunKindAggregate RunKind = 0 // Reduction of collapsed stack files
	RunKindSimulate  RunKind = 1 // Synthetic producer/consumer session
)

// String returns the string representation of RunKind.
func (k RunKind) String() string {
	switch k {
	case RunKindAggregate:
		return "aggregate"
	case RunKindSimulate:
		return "simulate"
	default:
		return "unknown"
	}
}

// RunStatus represents the lifecycle state of a run.
type RunStatus int

const (
	RunStatusPending   RunStatus = 0
	RunStatusRunning   RunStatus = 1
	RunStatusCompleted RunStatus = 2
	RunStatusFailed    RunStatus = 3
)

// String returns the string representation of RunStatus.
func (s RunStatus) String() string {
	switch s {
	case RunStatusPending:
		return "pending"
	case RunStatusRunning:
		return "running"
	case RunStatusCompleted:
		return "completed"
	case RunStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the run can no longer change state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one aggregation or simulation session.
type Run struct {
	ID         int64      `json:"id"`
	UUID       string     `json:"uuid"`
	Kind       RunKind    `json:"kind"`
	Status     RunStatus  `json:"status"`
	StatusInfo string     `json:"status_info,omitempty"`
	Threads    int        `json:"threads"`
	Nodes      int        `json:"nodes"`
	Samples    int64      `json:"samples"`
	Total      float64    `json:"total"`
	ResultFile string     `json:"result_file,omitempty"`
	CreateTime time.Time  `json:"create_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

// RunSummary is what a finished run reports.
type RunSummary struct {
	Threads    int
	Nodes      int
	Samples    int64
	Total      float64
	ResultFile string
}

package repository

import (
	"time"

	"github.com/callpath-core/pkg/model"
)

// RunRecord represents the callpath_run table.
type RunRecord struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	UUID       string          `gorm:"column:uuid;type:varchar(64);uniqueIndex"`
	Kind       model.RunKind   `gorm:"column:kind"`
	Status     model.RunStatus `gorm:"column:status;index"`
	StatusInfo string          `gorm:"column:status_info;type:text"`
	Threads    int             `gorm:"column:threads"`
	Nodes      int             `gorm:"column:nodes"`
	Samples    int64           `gorm:"column:samples"`
	Total      float64         `gorm:"column:total"`
	ResultFile string          `gorm:"column:result_file;type:varchar(512)"`
	CreateTime time.Time       `gorm:"column:create_time;autoCreateTime"`
	BeginTime  *time.Time      `gorm:"column:begin_time"`
	EndTime    *time.Time      `gorm:"column:end_time"`
}

// TableName returns the table name for RunRecord.
func (RunRecord) TableName() string {
	return "callpath_run"
}

// ToModel converts RunRecord to model.Run.
func (r *RunRecord) ToModel() *model.Run {
	return &model.Run{
		ID:         r.ID,
		UUID:       r.UUID,
		Kind:       r.Kind,
		Status:     r.Status,
		StatusInfo: r.StatusInfo,
		Threads:    r.Threads,
		Nodes:      r.Nodes,
		Samples:    r.Samples,
		Total:      r.Total,
		ResultFile: r.ResultFile,
		CreateTime: r.CreateTime,
		EndTime:    r.EndTime,
	}
}

// ActivityTrace represents the activity_trace table.
type ActivityTrace struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID         int64  `gorm:"column:run_id;index:idx_trace_run_start,priority:1"`
	CorrelationID uint64 `gorm:"column:correlation_id"`
	Kind          string `gorm:"column:kind;type:varchar(16)"`
	HostNodeID    uint32 `gorm:"column:host_node_id"`
	NodeID        uint32 `gorm:"column:node_id"`
	DeviceID      uint32 `gorm:"column:device_id"`
	StreamID      uint32 `gorm:"column:stream_id"`
	StartNs       int64  `gorm:"column:start_ns;index:idx_trace_run_start,priority:2"`
	EndNs         int64  `gorm:"column:end_ns"`
	Bytes         uint64 `gorm:"column:bytes"`
}

// TableName returns the table name for ActivityTrace.
func (ActivityTrace) TableName() string {
	return "activity_trace"
}

// ToModel converts ActivityTrace to model.TraceRecord.
func (a *ActivityTrace) ToModel() model.TraceRecord {
	return model.TraceRecord{
		RunID:         a.RunID,
		CorrelationID: a.CorrelationID,
		Kind:          a.Kind,
		HostNodeID:    a.HostNodeID,
		NodeID:        a.NodeID,
		DeviceID:      a.DeviceID,
		StreamID:      a.StreamID,
		Start:         a.StartNs,
		End:           a.EndNs,
		Bytes:         a.Bytes,
	}
}

// FromTraceRecord converts model.TraceRecord to ActivityTrace.
func FromTraceRecord(r *model.TraceRecord) ActivityTrace {
	return ActivityTrace{
		RunID:         r.RunID,
		CorrelationID: r.CorrelationID,
		Kind:          r.Kind,
		HostNodeID:    r.HostNodeID,
		NodeID:        r.NodeID,
		DeviceID:      r.DeviceID,
		StreamID:      r.StreamID,
		StartNs:       r.Start,
		EndNs:         r.End,
		Bytes:         r.Bytes,
	}
}

// AllModels lists every table managed by the repositories.
func AllModels() []interface{} {
	return []interface{}{&RunRecord{}, &ActivityTrace{}}
}

package model

// TraceRecord is one device activity attributed to a calling context.
type TraceRecord struct {
	RunID         int64  `json:"run_id"`
	CorrelationID uint64 `json:"correlation_id"`
	Kind          string `json:"kind"`
	// HostNodeID is the id of the host context that launched the activity,
	// 0 when the correlation was unknown.
	HostNodeID uint32 `json:"host_node_id"`
	// NodeID is the id of the device context the activity was charged to.
	NodeID   uint32 `json:"node_id"`
	DeviceID uint32 `json:"device_id"`
	StreamID uint32 `json:"stream_id"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Bytes    uint64 `json:"bytes"`
}

// Duration returns End-Start, or 0 for inverted timestamps.
func (r TraceRecord) Duration() int64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

package channel

import (
	"fmt"

	"github.com/callpath-core/pkg/cct"
	"github.com/callpath-core/pkg/lockfree"
)

// ============================================================================
// Correlation records
// ============================================================================

// CorrelationRecord ties a host correlation id to the calling context that
// launched an asynchronous operation.
type CorrelationRecord struct {
	lockfree.Link[CorrelationRecord]

	HostCorrelationID uint64
	Node              *cct.Node
	Timestamp         int64 // ns
}

// CorrelationChannel carries correlation records from one host thread.
type CorrelationChannel struct {
	*Channel[CorrelationRecord, *CorrelationRecord]
}

// NewCorrelationChannel returns an empty correlation channel.
func NewCorrelationChannel(name string, opts Options) *CorrelationChannel {
	return &CorrelationChannel{New[CorrelationRecord](name, opts)}
}

// Produce publishes (id, node, ts). Producer only.
func (c *CorrelationChannel) Produce(id uint64, node *cct.Node, ts int64) {
	c.Channel.Produce(func(r *CorrelationRecord) {
		r.HostCorrelationID = id
		r.Node = node
		r.Timestamp = ts
	})
}

// ============================================================================
// Activity records
// ============================================================================

// ActivityKind classifies a device activity.
type ActivityKind uint8

const (
	ActivityUnknown ActivityKind = iota
	ActivityKernel
	ActivityMemcpy
	ActivityMemset
	ActivitySync
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityKernel:
		return "kernel"
	case ActivityMemcpy:
		return "memcpy"
	case ActivityMemset:
		return "memset"
	case ActivitySync:
		return "sync"
	case ActivityUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("ActivityKind(%d)", uint8(k))
	}
}

// ParseActivityKind maps a name produced by String back to its kind.
func ParseActivityKind(s string) (ActivityKind, bool) {
	for k := ActivityUnknown; k <= ActivitySync; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return ActivityUnknown, false
}

// Activity is one completed device activity.
type Activity struct {
	Kind          ActivityKind
	CorrelationID uint64
	Start, End    int64 // ns
	Bytes         uint64
	DeviceID      uint32
	StreamID      uint32
}

// Duration returns End-Start, or 0 for inverted timestamps.
func (a *Activity) Duration() int64 {
	return max(a.End-a.Start, 0)
}

// ActivityRecord is the channel item carrying an Activity.
type ActivityRecord struct {
	lockfree.Link[ActivityRecord]
	Activity
}

// ActivityChannel carries activity records from one device monitor thread.
type ActivityChannel struct {
	*Channel[ActivityRecord, *ActivityRecord]
}

// NewActivityChannel returns an empty activity channel.
func NewActivityChannel(name string, opts Options) *ActivityChannel {
	return &ActivityChannel{New[ActivityRecord](name, opts)}
}

// Produce publishes a. Producer only.
func (c *ActivityChannel) Produce(a Activity) {
	c.Channel.Produce(func(r *ActivityRecord) {
		r.Activity = a
	})
}

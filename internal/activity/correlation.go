// Package activity attributes asynchronous device activities to the host
// calling contexts that launched them.
//
// Host threads publish (correlation id, context) pairs on correlation
// channels when they launch an operation; device monitors publish the
// completed activities on activity channels. A Processor, run on the
// monitor's consumer goroutine, joins the two streams: each activity is
// charged to a device tree under its host context and a trace record is
// written.
package activity

import (
	"sync/atomic"

	"github.com/callpath-core/pkg/cct"
)

// HostCorrelationMap maps host correlation ids to launching contexts. It
// is owned by the consumer goroutine and not synchronized.
type HostCorrelationMap struct {
	m map[uint64]*cct.Node
}

// NewHostCorrelationMap returns an empty map.
func NewHostCorrelationMap() *HostCorrelationMap {
	return &HostCorrelationMap{m: make(map[uint64]*cct.Node)}
}

// Insert records node for id. It reports false when id was already
// present; the newer node replaces it.
func (h *HostCorrelationMap) Insert(id uint64, node *cct.Node) bool {
	_, dup := h.m[id]
	h.m[id] = node
	return !dup
}

// Lookup returns the context recorded for id.
func (h *HostCorrelationMap) Lookup(id uint64) (*cct.Node, bool) {
	n, ok := h.m[id]
	return n, ok
}

// Delete forgets id.
func (h *HostCorrelationMap) Delete(id uint64) {
	delete(h.m, id)
}

// Len returns the number of live correlations.
func (h *HostCorrelationMap) Len() int { return len(h.m) }

// CPIDAllocator hands out call-path ids that survive pruning. One
// allocator should be shared by every processor whose trees are reduced
// together.
type CPIDAllocator struct {
	next atomic.Uint32
}

// Next returns a fresh id carrying cct.RetainIDFlag.
func (a *CPIDAllocator) Next() uint32 {
	return a.next.Add(1)<<1 | cct.RetainIDFlag
}

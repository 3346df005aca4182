package cct

// MergeMeAlloc merges y's metrics into x for nodes attributed to memory
// allocations. The two nodes are merged when they reference the same static
// data object, share an allocation-site id, or their address ranges overlap.
// The range is held in the first and last metric slots whose AddrFmt is 1;
// those two slots keep their bounds instead of being summed. Every other slot
// in [metricBegIdx, metricBegIdx+len(y)) is summed.
//
// It reports whether the nodes were merged.
func (x *Node) MergeMeAlloc(y *Node, metricBegIdx int) bool {
	if y.Alloc != nil && y.Alloc.StaticID != 0 {
		y.Alloc.MallocIDs = nil
	}

	end := metricBegIdx + len(y.metrics)
	x.EnsureMetricsSize(end)

	umin, umax := -1, -1
	for i := metricBegIdx; i < end; i++ {
		if x.Alloc.addrFmt(i) != 1 {
			continue
		}
		if umin < 0 {
			umin = i
		} else {
			umax = i
		}
	}
	if umin < 0 || umax < 0 {
		return false
	}

	merge := false
	if x.Alloc != nil && x.Alloc.StaticID != 0 {
		if y.Alloc != nil && x.Alloc.StaticID == y.Alloc.StaticID {
			merge = true
		}
		x.Alloc.MallocIDs = nil
	}
	if !merge && x.Alloc != nil && y.Alloc != nil {
	search:
		for _, xm := range x.Alloc.MallocIDs {
			for _, ym := range y.Alloc.MallocIDs {
				if xm == ym {
					merge = true
					break search
				}
			}
		}
	}

	// The bounds of y are read at x's slot indices, not shifted by
	// metricBegIdx.
	if !merge && (x.metrics[umin] > y.Metric(umax) || x.metrics[umax] < y.Metric(umin)) {
		return false
	}

	for xi, yi := metricBegIdx, 0; xi < end; xi, yi = xi+1, yi+1 {
		switch xi {
		case umin:
			if !(x.metrics[umin] < y.Metric(umin)) {
				x.metrics[umin] = y.Metric(umin)
			}
		case umax:
			if !(x.metrics[umax] > y.Metric(umax)) {
				x.metrics[umax] = y.Metric(umax)
			}
		default:
			x.metrics[xi] += y.metrics[yi]
		}
	}
	return true
}

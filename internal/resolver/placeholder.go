// Package resolver maps instruction addresses to function bounds and
// provides the synthetic placeholder frames used when an address cannot
// be classified.
package resolver

import (
	"fmt"
	"math"

	"github.com/callpath-core/pkg/cct"
)

// Bounds is the half-open address range [Start, End) of one function.
type Bounds struct {
	Start        uint64
	End          uint64
	LoadModuleID uint32
}

// Contains reports whether addr lies in b.
func (b Bounds) Contains(addr uint64) bool {
	return addr >= b.Start && addr < b.End
}

// Resolver classifies instruction addresses. Implementations must be safe
// for concurrent use by producer goroutines.
type Resolver interface {
	Resolve(addr uint64) (Bounds, bool)
}

// Placeholder names a synthetic calling context.
type Placeholder uint8

const (
	Unknown Placeholder = iota
	Idle
	Overhead
	GPUKernel
	GPUCopy
	GPUSync
	GPUMemset

	numPlaceholders
)

// PlaceholderLoadModule is the load module id reserved for placeholders.
const PlaceholderLoadModule uint32 = math.MaxUint32

const (
	placeholderBase   uint64 = 0xffff_ffff_ffff_0000
	placeholderStride uint64 = 0x10
)

var placeholderNames = [numPlaceholders]string{
	Unknown:   "<unknown>",
	Idle:      "<idle>",
	Overhead:  "<overhead>",
	GPUKernel: "<gpu kernel>",
	GPUCopy:   "<gpu copy>",
	GPUSync:   "<gpu sync>",
	GPUMemset: "<gpu memset>",
}

func (p Placeholder) String() string {
	if p < numPlaceholders {
		return placeholderNames[p]
	}
	return fmt.Sprintf("Placeholder(%d)", uint8(p))
}

// Placeholders returns every placeholder kind.
func Placeholders() []Placeholder {
	out := make([]Placeholder, numPlaceholders)
	for i := range out {
		out[i] = Placeholder(i)
	}
	return out
}

// Addr returns the placeholder's canonical synthetic address.
func (p Placeholder) Addr() uint64 {
	return placeholderBase + uint64(p)*placeholderStride
}

// Bounds returns the synthetic function bounds of p.
func (p Placeholder) Bounds() Bounds {
	return Bounds{Start: p.Addr(), End: p.Addr() + placeholderStride, LoadModuleID: PlaceholderLoadModule}
}

// Frame returns the frame that attributes a sample to p.
func (p Placeholder) Frame() cct.Frame {
	return cct.Frame{
		IP:           p.Addr(),
		LoadModuleID: PlaceholderLoadModule,
		LIP:          uint64(p),
		Name:         p.String(),
	}
}

// Canonicalize maps any address inside a placeholder's synthetic range to
// that placeholder.
func Canonicalize(addr uint64) (Placeholder, bool) {
	if addr < placeholderBase {
		return Unknown, false
	}
	p := (addr - placeholderBase) / placeholderStride
	if p >= uint64(numPlaceholders) {
		return Unknown, false
	}
	return Placeholder(p), true
}

// IsPlaceholder reports whether f was produced by Placeholder.Frame.
func IsPlaceholder(f cct.Frame) bool {
	_, ok := Canonicalize(f.IP)
	return ok && f.LoadModuleID == PlaceholderLoadModule
}

// Classify rewrites frames for insertion: frames the resolver cannot
// classify are replaced by the Unknown placeholder, and placeholder
// addresses are canonicalized. The slice is modified in place.
func Classify(r Resolver, frames []cct.Frame) []cct.Frame {
	for i := range frames {
		f := &frames[i]
		if p, ok := Canonicalize(f.IP); ok {
			*f = p.Frame()
			continue
		}
		b, ok := r.Resolve(f.IP)
		if !ok {
			*f = Unknown.Frame()
			continue
		}
		f.LoadModuleID = b.LoadModuleID
		if f.LIP == 0 {
			f.LIP = f.IP - b.Start
		}
	}
	return frames
}

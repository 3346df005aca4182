package profile

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/callpath-core/pkg/cct"
	"github.com/callpath-core/pkg/collections"
	"github.com/callpath-core/pkg/config"
	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/interval"
	"github.com/callpath-core/pkg/metric"
	"github.com/callpath-core/pkg/parallel"
	"github.com/callpath-core/pkg/utils"
)

const tracerName = "github.com/callpath-core/internal/profile"

// ReducerConfig holds reducer configuration.
type ReducerConfig struct {
	MaxWorkers     int
	PruneThreshold float64 // percent of the root's total; 0 disables pruning
}

// DefaultReducerConfig returns default reducer configuration.
func DefaultReducerConfig() *ReducerConfig {
	return &ReducerConfig{MaxWorkers: parallel.Workers()}
}

// ReducerConfigFrom creates reducer config from application config.
func ReducerConfigFrom(cfg *config.ReduceConfig) *ReducerConfig {
	return &ReducerConfig{
		MaxWorkers:     cfg.MaxWorkers,
		PruneThreshold: cfg.PruneThreshold,
	}
}

// Block is the metric range owned by one source in the reduced tree.
type Block struct {
	Name  string
	Off   int
	Width int
}

// Slot returns the id of the block-relative slot.
func (b Block) Slot(slot int) int { return b.Off + slot }

// Summary holds the ids of the cross-thread metrics of a reduced tree.
type Summary struct {
	Sum, Count, Mean, Min, Max, StdDev int
}

// Result is a reduced tree and the table describing its metric vectors.
type Result struct {
	Tree    *cct.Tree
	Metrics *metric.Mgr
	Blocks  []Block
	Summary Summary
	// Effects lists call-path id conflicts the merges left unresolved.
	Effects []cct.MergeEffect
	MaxID   uint32
	Pruned  int
}

// Total returns the root's summed sample value.
func (r *Result) Total() float64 {
	return r.Tree.Root().Metric(r.Summary.Sum)
}

// Reducer merges sealed thread profiles into one tree.
type Reducer struct {
	config *ReducerConfig
	logger utils.Logger
	tracer trace.Tracer
}

// NewReducer creates a reducer. A nil logger discards output.
func NewReducer(cfg *ReducerConfig, logger utils.Logger) *Reducer {
	if cfg == nil {
		cfg = DefaultReducerConfig()
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Reducer{
		config: cfg,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

type partial struct {
	tree    *cct.Tree
	effects []cct.MergeEffect
}

// Reduce merges sources into a single tree. Every source gets its own
// metric block; inclusive and exclusive slots are then aggregated, the cross-thread
// summaries computed, low-value contexts pruned when configured and dense
// ids assigned. The source trees are consumed.
func (r *Reducer) Reduce(ctx context.Context, sources []Source) (*Result, error) {
	if len(sources) == 0 {
		return nil, apperrors.ErrEmptyInput
	}

	ctx, span := r.tracer.Start(ctx, "profile.reduce",
		trace.WithAttributes(attribute.Int("sources", len(sources))))
	defer span.End()
	start := time.Now()

	blocks, err := allocBlocks(sources)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	workers := r.config.MaxWorkers

	// Shift each source into its block before any two trees meet, so the
	// pairwise merges only ever add aligned vectors.
	relocated := parallel.Map(ctx, workers, indices(len(sources)),
		func(ctx context.Context, i int) (partial, error) {
			if err := ctx.Err(); err != nil {
				return partial{}, err
			}
			t := cct.NewRootTree("")
			effects := t.Merge(sources[i].Tree, blocks[i].Off, 0)
			return partial{tree: t, effects: effects}, nil
		})
	parts := make([]partial, 0, len(relocated))
	for _, res := range relocated {
		if res.Err != nil {
			span.RecordError(res.Err)
			return nil, res.Err
		}
		parts = append(parts, res.Value)
	}

	merged, err := parallel.PairwiseReduce(ctx, workers, parts,
		func(ctx context.Context, dst, src partial) (partial, error) {
			if err := ctx.Err(); err != nil {
				return partial{}, err
			}
			dst.effects = append(dst.effects, src.effects...)
			dst.effects = append(dst.effects, dst.tree.Merge(src.tree, 0, 0)...)
			return dst, nil
		})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	mgr, summary := buildTable(sources, blocks)
	tree := merged.tree
	root := tree.Root()
	root.Name = "<program root>"

	root.AggregateMetricsIncl(mgr.InclusiveSet())
	root.AggregateMetricsExcl(mgr.ExclusiveSet())
	root.ComputeMetrics(mgr, summary.Sum, mgr.Size(), true)

	res := &Result{
		Tree:    tree,
		Metrics: mgr,
		Blocks:  blocks,
		Summary: summary,
		Effects: merged.effects,
	}

	res.MaxID = tree.MakeDensePreorderIds()
	if pct := r.config.PruneThreshold; pct > 0 && res.Total() > 0 {
		deleted := collections.NewBitset(int(res.MaxID) + 1)
		tree.PruneByMetrics(mgr, cct.RangeSet(summary.Sum, summary.Sum+1), pct, deleted)
		res.Pruned = deleted.Count()
		res.MaxID = tree.MakeDensePreorderIds()
	}

	if ok, dups := tree.VerifyUniqueCPIds(); !ok {
		r.logger.Warn("Reduced tree has %d duplicate call-path ids", len(dups))
	}

	span.SetAttributes(
		attribute.Int("nodes", int(res.MaxID)),
		attribute.Int("pruned", res.Pruned),
		attribute.Int("effects", len(res.Effects)),
	)
	r.logger.Info("Reduced %d thread profiles into %d nodes in %v (%d pruned, %d merge effects)",
		len(sources), res.MaxID, time.Since(start), res.Pruned, len(res.Effects))
	return res, nil
}

// allocBlocks gives every source the lowest free metric range wide enough
// for its layout.
func allocBlocks(sources []Source) ([]Block, error) {
	used := interval.NewSet()
	blocks := make([]Block, len(sources))
	for i, s := range sources {
		if s.Tree == nil || s.Layout == nil {
			return nil, apperrors.New(apperrors.CodeInvalidInput,
				fmt.Sprintf("source %q has no tree or layout", s.Name))
		}
		w := s.Width()
		if w == 0 {
			return nil, apperrors.New(apperrors.CodeInvalidInput,
				fmt.Sprintf("source %q has an empty metric layout", s.Name))
		}
		off := firstFit(used, uint64(w))
		used.Insert(interval.New(off, off+uint64(w)-1))
		blocks[i] = Block{Name: s.Name, Off: int(off), Width: w}
	}
	return blocks, nil
}

func firstFit(used *interval.Set, width uint64) uint64 {
	var at uint64
	for iv := range used.All() {
		if iv.Beg >= at+width {
			break
		}
		at = max(at, iv.End+1)
	}
	return at
}

// buildTable lays out the reduced tree's metrics: each block's
// descriptors renamed after their source, followed by the summaries over
// every block's value and count slots.
func buildTable(sources []Source, blocks []Block) (*metric.Mgr, Summary) {
	mgr := metric.NewMgr()
	var values, counts []int
	for i, b := range blocks {
		for _, d := range sources[i].Layout.Metrics() {
			mgr.Add(metric.Desc{
				Name:        b.Name + ":" + d.Name,
				Description: d.Description,
				Unit:        d.Unit,
				Kind:        metric.KindRaw,
				Type:        d.Type,
				Visible:     d.Visible,
			})
		}
		values = append(values, b.Slot(SlotValue))
		counts = append(counts, b.Slot(SlotCount))
	}

	unit := ""
	if d := sources[0].Layout.Metric(SlotValue); d != nil {
		unit = d.Unit
	}
	vals := metric.Vars(values...)
	var s Summary
	s.Sum = mgr.Add(metric.Desc{Name: "value:sum", Unit: unit, Kind: metric.KindDerived, Type: metric.TypeIncl, Visible: true,
		Expr: metric.Sum(vals)}).ID
	s.Count = mgr.Add(metric.Desc{Name: "count:sum", Unit: "samples", Kind: metric.KindDerived, Type: metric.TypeIncl, Visible: true,
		Expr: metric.Sum(metric.Vars(counts...))}).ID
	s.Mean = mgr.Add(metric.Desc{Name: "value:mean", Unit: unit, Kind: metric.KindDerived, Visible: true, Expr: metric.Mean(vals)}).ID
	s.Min = mgr.Add(metric.Desc{Name: "value:min", Unit: unit, Kind: metric.KindDerived, Visible: true, Expr: metric.Min(vals)}).ID
	s.Max = mgr.Add(metric.Desc{Name: "value:max", Unit: unit, Kind: metric.KindDerived, Visible: true, Expr: metric.Max(vals)}).ID
	s.StdDev = mgr.Add(metric.Desc{Name: "value:stddev", Unit: unit, Kind: metric.KindDerived, Visible: true, Expr: metric.StdDev(vals)}).ID
	return mgr, s
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

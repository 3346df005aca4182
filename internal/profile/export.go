package profile

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	pprofile "github.com/google/pprof/profile"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/callpath-core/internal/storage"
	"github.com/callpath-core/pkg/cct"
	"github.com/callpath-core/pkg/compression"
	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/telemetry"
	"github.com/callpath-core/pkg/utils"
)

// ThreadLabel is the pprof sample label carrying the source thread name.
const ThreadLabel = "thread"

// ModuleNamer names load modules for pprof mappings.
type ModuleNamer interface {
	ModuleName(id uint32) string
}

type locKey struct {
	lm   uint32
	ip   uint64
	name string
}

type funcKey struct {
	name, file string
}

type pprofBuilder struct {
	p         *pprofile.Profile
	modules   ModuleNamer
	mappings  map[uint32]*pprofile.Mapping
	locations map[locKey]*pprofile.Location
	functions map[funcKey]*pprofile.Function
}

// ToPprof converts a reduced tree to a pprof profile. Every context with
// exclusive value or samples in a block becomes one sample labelled with
// the block's thread; samples charged to the root carry no frames and are
// dropped.
func ToPprof(res *Result, modules ModuleNamer) (*pprofile.Profile, error) {
	unit := "count"
	if d := res.Metrics.Metric(res.Summary.Sum); d != nil && d.Unit != "" {
		unit = d.Unit
	}
	b := &pprofBuilder{
		p: &pprofile.Profile{
			SampleType: []*pprofile.ValueType{
				{Type: "value", Unit: unit},
				{Type: "samples", Unit: "count"},
			},
			DefaultSampleType: "value",
		},
		modules:   modules,
		mappings:  make(map[uint32]*pprofile.Mapping),
		locations: make(map[locKey]*pprofile.Location),
		functions: make(map[funcKey]*pprofile.Function),
	}

	root := res.Tree.Root()
	for n := range root.SortedPreOrder(cct.CompareByID) {
		if n == root {
			continue
		}
		var stack []*pprofile.Location
		for _, blk := range res.Blocks {
			v := exclusive(n, blk.Slot(SlotValue))
			c := exclusive(n, blk.Slot(SlotCount))
			if v == 0 && c == 0 {
				continue
			}
			if stack == nil {
				stack = b.stack(n)
			}
			b.p.Sample = append(b.p.Sample, &pprofile.Sample{
				Location: stack,
				Value:    []int64{v, c},
				Label:    map[string][]string{ThreadLabel: {blk.Name}},
			})
		}
	}

	if err := b.p.CheckValid(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeExportError, "invalid pprof profile", err)
	}
	return b.p, nil
}

// exclusive returns the part of an inclusive metric not attributed to any
// child.
func exclusive(n *cct.Node, id int) int64 {
	v := n.Metric(id)
	for _, c := range n.Children() {
		v -= c.Metric(id)
	}
	return int64(math.Round(v))
}

// stack returns the locations from n up to the root, leaf first.
func (b *pprofBuilder) stack(n *cct.Node) []*pprofile.Location {
	var locs []*pprofile.Location
	for x := n; x.Parent() != nil; x = x.Parent() {
		locs = append(locs, b.location(x))
	}
	return locs
}

func (b *pprofBuilder) location(n *cct.Node) *pprofile.Location {
	key := locKey{name: n.Name}
	if d := n.Dyn(); d != nil {
		key.lm, key.ip = d.LoadModuleID, d.IP
	}
	if loc, ok := b.locations[key]; ok {
		return loc
	}

	loc := &pprofile.Location{
		ID:      uint64(len(b.p.Location) + 1),
		Mapping: b.mapping(key.lm),
		Address: key.ip,
	}
	name := n.Name
	if name == "" {
		name = fmt.Sprintf("0x%x", key.ip)
	}
	loc.Line = []pprofile.Line{{Function: b.function(name, n.File), Line: int64(n.Line)}}
	b.locations[key] = loc
	b.p.Location = append(b.p.Location, loc)
	return loc
}

func (b *pprofBuilder) mapping(lm uint32) *pprofile.Mapping {
	if m, ok := b.mappings[lm]; ok {
		return m
	}
	file := ""
	if b.modules != nil {
		file = b.modules.ModuleName(lm)
	}
	if file == "" {
		file = fmt.Sprintf("module-%d", lm)
	}
	m := &pprofile.Mapping{
		ID:           uint64(len(b.p.Mapping) + 1),
		File:         file,
		HasFunctions: true,
	}
	b.mappings[lm] = m
	b.p.Mapping = append(b.p.Mapping, m)
	return m
}

func (b *pprofBuilder) function(name, file string) *pprofile.Function {
	key := funcKey{name, file}
	if f, ok := b.functions[key]; ok {
		return f
	}
	f := &pprofile.Function{
		ID:         uint64(len(b.p.Function) + 1),
		Name:       name,
		SystemName: name,
		Filename:   file,
	}
	b.functions[key] = f
	b.p.Function = append(b.p.Function, f)
	return f
}

// Encode serializes p and compresses it with comp.
func Encode(p *pprofile.Profile, comp compression.Compressor) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.WriteUncompressed(&buf); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeExportError, "failed to serialize profile", err)
	}
	data, err := comp.Compress(buf.Bytes())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeExportError, "failed to compress profile", err)
	}
	return data, nil
}

// Extension returns the file suffix for profiles compressed with comp.
func Extension(comp compression.Compressor) string {
	return ".pb" + comp.Type().Extension()
}

// ExportResult describes a written profile.
type ExportResult struct {
	Path    string
	Key     string
	URL     string
	Size    int
	Samples int
}

// Exporter writes reduced trees as pprof profiles to a directory and,
// when a store is configured, uploads them.
type Exporter struct {
	dir     string
	store   storage.Store
	comp    compression.Compressor
	modules ModuleNamer
	logger  utils.Logger
}

// NewExporter creates an exporter writing into dir. store may be nil.
// A nil compressor produces gzip, which pprof tools read natively.
func NewExporter(dir string, store storage.Store, comp compression.Compressor, logger utils.Logger) *Exporter {
	if comp == nil {
		comp = compression.NewGzipCompressor(compression.LevelDefault)
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Exporter{dir: dir, store: store, comp: comp, logger: logger}
}

// WithModules sets the namer used for pprof mappings.
func (e *Exporter) WithModules(m ModuleNamer) *Exporter {
	e.modules = m
	return e
}

// Export converts res and writes it as name plus the compressor's
// extension. The local write and the upload run concurrently.
func (e *Exporter) Export(ctx context.Context, res *Result, name string) (_ *ExportResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "profile.export",
		attribute.String("name", name), attribute.Bool("upload", e.store != nil))
	defer func() { telemetry.EndSpan(span, err) }()

	p, err := ToPprof(res, e.modules)
	if err != nil {
		return nil, err
	}
	data, err := Encode(p, e.comp)
	if err != nil {
		return nil, err
	}

	out := &ExportResult{
		Path:    filepath.Join(e.dir, name+Extension(e.comp)),
		Key:     "profiles/" + name + Extension(e.comp),
		Size:    len(data),
		Samples: len(p.Sample),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := os.MkdirAll(e.dir, 0755); err != nil {
			return apperrors.Wrap(apperrors.CodeExportError, "failed to create export directory", err)
		}
		if err := os.WriteFile(out.Path, data, 0644); err != nil {
			return apperrors.Wrap(apperrors.CodeExportError, "failed to write profile", err)
		}
		return nil
	})
	if e.store != nil {
		g.Go(func() error {
			if err := e.store.Put(ctx, out.Key, bytes.NewReader(data)); err != nil {
				return apperrors.Wrap(apperrors.CodeStorageError, "failed to upload profile", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.store != nil {
		out.URL = e.store.URL(out.Key)
	} else {
		out.Key = ""
	}
	e.logger.Info("Exported %d samples to %s (%d bytes, %s)", out.Samples, out.Path, out.Size, e.comp.Name())
	return out, nil
}

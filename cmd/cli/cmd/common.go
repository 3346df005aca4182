package cmd

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/callpath-core/internal/profile"
	"github.com/callpath-core/internal/repository"
	"github.com/callpath-core/internal/storage"
	"github.com/callpath-core/pkg/cct"
	"github.com/callpath-core/pkg/compression"
	"github.com/callpath-core/pkg/model"
)

// openRepositories connects to the configured database and migrates it.
func openRepositories(ctx context.Context) (*repository.Repositories, error) {
	db, err := repository.NewGormDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	repos := repository.NewRepositories(db, cfg.Database.Type)
	if err := repos.Migrate(ctx); err != nil {
		repos.Close()
		return nil, err
	}
	return repos, nil
}

// newExporter builds an exporter over the configured storage backend.
func newExporter(modules profile.ModuleNamer, comp compression.Compressor, upload bool) (*profile.Exporter, error) {
	var store storage.Store
	if upload {
		s, err := storage.New(&cfg.Storage)
		if err != nil {
			return nil, err
		}
		store = s
	}
	return profile.NewExporter(cfg.Reduce.ExportDir, store, comp, GetLogger()).WithModules(modules), nil
}

// runTracker records a run's lifecycle. A nil tracker records nothing.
type runTracker struct {
	repo repository.RunRepository
	run  *model.Run
}

func startRun(ctx context.Context, repo repository.RunRepository, kind model.RunKind) (*runTracker, error) {
	t := &runTracker{repo: repo, run: &model.Run{Kind: kind}}
	if err := t.repo.CreateRun(ctx, t.run); err != nil {
		return nil, err
	}
	if err := t.repo.StartRun(ctx, t.run.ID); err != nil {
		return nil, err
	}
	GetLogger().Info("Run %d (%s) started", t.run.ID, t.run.UUID)
	return t, nil
}

func (t *runTracker) id() int64 {
	if t == nil {
		return 0
	}
	return t.run.ID
}

func (t *runTracker) finish(ctx context.Context, summary *model.RunSummary) {
	if t == nil {
		return
	}
	if err := t.repo.FinishRun(ctx, t.run.ID, summary); err != nil {
		GetLogger().Warn("Failed to record run %d: %v", t.run.ID, err)
	}
}

func (t *runTracker) fail(ctx context.Context, cause error) {
	if t == nil {
		return
	}
	if err := t.repo.FailRun(ctx, t.run.ID, cause.Error()); err != nil {
		GetLogger().Warn("Failed to record failure of run %d: %v", t.run.ID, err)
	}
}

// HotPath is a leaf context and its summed value.
type HotPath struct {
	Path    string
	Value   float64
	Percent float64
}

// hotPaths returns the n leaves of res with the largest summed value,
// outermost frame first.
func hotPaths(res *profile.Result, n int) []HotPath {
	total := res.Total()
	var out []HotPath
	for leaf := range res.Tree.Root().Leaves() {
		v := leaf.Metric(res.Summary.Sum)
		if v == 0 || leaf == res.Tree.Root() {
			continue
		}
		p := HotPath{Path: pathOf(leaf), Value: v}
		if total > 0 {
			p.Percent = v / total * 100
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b HotPath) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// pathOf joins the names of n's call chain below the root.
func pathOf(n *cct.Node) string {
	var names []string
	for x := n; x != nil && x.Parent() != nil; x = x.Parent() {
		if x.Name != "" {
			names = append(names, x.Name)
		}
	}
	slices.Reverse(names)
	return strings.Join(names, ";")
}

func printResult(res *profile.Result, top int) {
	log := GetLogger()
	log.Info("=== Reduced Tree ===")
	log.Info("Threads:   %d", len(res.Blocks))
	log.Info("Nodes:     %d", res.Tree.NodeCount())
	log.Info("Total:     %.0f", res.Total())
	log.Info("Samples:   %.0f", res.Tree.Root().Metric(res.Summary.Count))
	if res.Pruned > 0 {
		log.Info("Pruned:    %d", res.Pruned)
	}
	if len(res.Effects) > 0 {
		log.Warn("Unresolved call-path conflicts: %d", len(res.Effects))
	}
	log.Info("")

	log.Info("=== Hot Paths ===")
	for i, p := range hotPaths(res, top) {
		log.Info("  %2d. %6.2f%%  %s", i+1, p.Percent, truncateString(p.Path, 100))
	}
	log.Info("")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen+3:]
}

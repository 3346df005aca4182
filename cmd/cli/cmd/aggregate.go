package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/callpath-core/internal/collapsed"
	"github.com/callpath-core/internal/profile"
	"github.com/callpath-core/pkg/compression"
	"github.com/callpath-core/pkg/model"
	"github.com/callpath-core/pkg/telemetry"
	"github.com/callpath-core/pkg/utils"
)

var (
	// Aggregate command flags
	inputFiles     []string
	includeSwapper bool
	strictMode     bool
	unit           string
	topN           int
	pruneThreshold float64
	exportProfile  bool
	exportName     string
	compressFlag   string
	uploadProfile  bool
	recordRun      bool
)

// aggregateCmd represents the aggregate command
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Reduce collapsed stack files into one calling context tree",
	Long: `Replay collapsed stack files as per-thread profiles and reduce them.

Every "thread;frame;...;frame count" line is one sample of count units
charged to the calling context the frames describe. Each thread gets its
own profile; the reducer merges them into one tree carrying a metric block
per thread plus sum, count, mean, min, max and stddev across threads.

Frames may name their module as "func (module)". Swapper lines are idle
time and are dropped unless --include-swapper is set.`,
	RunE: runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)

	binName := BinName()
	aggregateCmd.Example = `  # Reduce one file and print the hottest contexts
  ` + binName + ` aggregate -i ./stacks.folded -n 20

  # Export a zstd-compressed pprof profile and upload it to storage
  ` + binName + ` aggregate -i ./stacks.folded --export --compress zstd --upload`

	aggregateCmd.Flags().StringSliceVarP(&inputFiles, "input", "i", nil, "Collapsed stack file (repeatable, required)")
	aggregateCmd.MarkFlagRequired("input")

	aggregateCmd.Flags().BoolVar(&includeSwapper, "include-swapper", false, "Charge swapper samples to the idle placeholder")
	aggregateCmd.Flags().BoolVar(&strictMode, "strict", false, "Fail on the first malformed line")
	aggregateCmd.Flags().StringVar(&unit, "unit", "samples", "Unit of line counts")
	aggregateCmd.Flags().IntVarP(&topN, "top", "n", 10, "Number of hot paths to print")
	aggregateCmd.Flags().Float64Var(&pruneThreshold, "prune", -1, "Prune contexts below this percent of the total (default: config)")

	aggregateCmd.Flags().BoolVar(&exportProfile, "export", false, "Write the reduced tree as a pprof profile")
	aggregateCmd.Flags().StringVar(&exportName, "name", "", "Export file name without extension (default: first input)")
	aggregateCmd.Flags().StringVar(&compressFlag, "compress", "gzip", "Profile compression: gzip, zstd, none")
	aggregateCmd.Flags().BoolVar(&uploadProfile, "upload", false, "Upload the exported profile to the configured storage")
	aggregateCmd.Flags().BoolVar(&recordRun, "record", false, "Record the run in the configured database")
}

func runAggregate(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartSpan(cmd.Context(), "cli.aggregate")
	defer func() { telemetry.EndSpan(span, err) }()
	log := GetLogger()
	timer := utils.NewTimer("aggregate", utils.WithLogger(log), utils.WithEnabled(verbose))

	comp, err := compression.Parse(compressFlag)
	if err != nil {
		return err
	}
	defer compression.Close(comp)

	var tracker *runTracker
	if recordRun {
		repos, openErr := openRepositories(ctx)
		if openErr != nil {
			return openErr
		}
		defer repos.Close()
		if tracker, err = startRun(ctx, repos.Run, model.RunKindAggregate); err != nil {
			return err
		}
		defer func() {
			if err != nil {
				tracker.fail(ctx, err)
			}
		}()
	}

	opts := &collapsed.Options{IncludeSwapper: includeSwapper, StrictMode: strictMode, Unit: unit}
	loader := collapsed.NewLoader(opts, nil, log)

	phase := timer.Start("load")
	for _, path := range inputFiles {
		if err := loader.LoadFile(ctx, path); err != nil {
			return err
		}
	}
	sources := loader.Sources()
	phase.Stop()

	stats := loader.Stats()
	log.Info("Read %d lines: %d samples, %d idle, %d skipped", stats.Lines, stats.Samples, stats.Idle, stats.Skipped)

	reduceCfg := profile.ReducerConfigFrom(&cfg.Reduce)
	if pruneThreshold >= 0 {
		reduceCfg.PruneThreshold = pruneThreshold
	}

	phase = timer.Start("reduce")
	res, err := profile.NewReducer(reduceCfg, log).Reduce(ctx, sources)
	phase.Stop()
	if err != nil {
		return fmt.Errorf("reduce failed: %w", err)
	}
	printResult(res, topN)

	summary := &model.RunSummary{
		Threads: len(res.Blocks),
		Nodes:   res.Tree.NodeCount(),
		Samples: stats.Samples,
		Total:   res.Total(),
	}

	if exportProfile {
		exporter, err := newExporter(loader.Symbols(), comp, uploadProfile)
		if err != nil {
			return err
		}
		name := exportName
		if name == "" {
			name = defaultExportName(inputFiles[0])
		}

		phase = timer.Start("export")
		out, err := exporter.Export(ctx, res, name)
		phase.Stop()
		if err != nil {
			return err
		}
		summary.ResultFile = out.Path
		if out.URL != "" {
			summary.ResultFile = out.URL
			log.Info("Uploaded profile: %s", out.URL)
		}
	}

	tracker.finish(ctx, summary)
	timer.PrintSummary()
	return nil
}

// defaultExportName derives an export name from an input path.
func defaultExportName(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return fmt.Sprintf("%s-%s", base, time.Now().Format("20060102-150405"))
}

package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/callpath-core/internal/activity"
	"github.com/callpath-core/internal/channel"
	"github.com/callpath-core/internal/profile"
	"github.com/callpath-core/internal/repository"
	"github.com/callpath-core/internal/workload"
	"github.com/callpath-core/pkg/compression"
	"github.com/callpath-core/pkg/model"
	"github.com/callpath-core/pkg/telemetry"
	"github.com/callpath-core/pkg/utils"
)

var (
	// Simulate command flags
	simThreads  int
	simLaunches int
	simDepth    int
	simSeed     int64
	simTrace    bool
	simExport   bool
	simCompress string
)

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic host/device session through the channels",
	Long: `Run a synthetic session exercising the producer/consumer channels.

Host threads sample their calling contexts and launch device operations,
publishing a correlation record per launch. A device goroutine completes
the launches and publishes activity records. The channel monitor joins the
two streams and attributes every activity to the host context that
launched it, building a device tree with time, count and byte metrics.

With --trace each attributed activity is also written to the configured
database.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	binName := BinName()
	simulateCmd.Example = `  # Four host threads, a thousand launches each
  ` + binName + ` simulate --threads 4 --launches 1000

  # Persist activity traces and export the device tree
  ` + binName + ` simulate --trace --export`

	simulateCmd.Flags().IntVar(&simThreads, "threads", 4, "Number of host threads")
	simulateCmd.Flags().IntVar(&simLaunches, "launches", 1000, "Device operations per host thread")
	simulateCmd.Flags().IntVar(&simDepth, "sites", 4, "Distinct launch sites per thread")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "Random seed")
	simulateCmd.Flags().BoolVar(&simTrace, "trace", false, "Persist activity traces (default: config trace.enabled)")
	simulateCmd.Flags().BoolVar(&simExport, "export", false, "Write the device tree as a pprof profile")
	simulateCmd.Flags().StringVar(&simCompress, "compress", "gzip", "Profile compression: gzip, zstd, none")
}

func runSimulate(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartSpan(cmd.Context(), "cli.simulate")
	defer func() { telemetry.EndSpan(span, err) }()
	log := GetLogger()
	timer := utils.NewTimer("simulate", utils.WithLogger(log), utils.WithEnabled(verbose))

	var summary *model.RunSummary
	reg := prometheus.NewRegistry()
	metrics := channel.NewMetrics(reg)

	runner := workload.NewRunner(&workload.Config{
		Threads:  simThreads,
		Launches: simLaunches,
		Depth:    simDepth,
		Seed:     simSeed,
	}, log).
		WithChannels(channel.Options{
			SlabSize: cfg.Channel.SlabSize,
			MaxItems: cfg.Channel.MaxItems,
			Metrics:  metrics,
		}, channel.FromConfig(&cfg.Channel)).
		WithProcessor(activity.ProcessorConfigFrom(&cfg.Trace, "gpu"))

	if simTrace || cfg.Trace.Enabled {
		repos, openErr := openRepositories(ctx)
		if openErr != nil {
			return openErr
		}
		defer repos.Close()

		tracker, startErr := startRun(ctx, repos.Run, model.RunKindSimulate)
		if startErr != nil {
			return startErr
		}
		defer func() {
			if err != nil {
				tracker.fail(ctx, err)
				return
			}
			tracker.finish(ctx, summary)
			reportTraces(cmd, repos, tracker.id())
		}()
		runner.WithSink(repos.Trace, tracker.id())
	}

	phase := timer.Start("session")
	res, err := runner.Run(ctx)
	phase.Stop()
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	printSession(res, reg)

	phase = timer.Start("reduce")
	reducer := profile.NewReducer(profile.ReducerConfigFrom(&cfg.Reduce), log)
	host, err := reducer.Reduce(ctx, res.Host)
	if err != nil {
		return fmt.Errorf("host reduce failed: %w", err)
	}
	device, err := reducer.Reduce(ctx, []profile.Source{res.Device})
	phase.Stop()
	if err != nil {
		return fmt.Errorf("device reduce failed: %w", err)
	}

	log.Info("Host samples: %.0f", host.Total())
	printResult(device, 10)

	summary = &model.RunSummary{
		Threads: len(res.Host),
		Nodes:   device.Tree.NodeCount(),
		Samples: res.Processor.Activities,
		Total:   device.Total(),
	}

	if simExport {
		comp, err := compression.Parse(simCompress)
		if err != nil {
			return err
		}
		defer compression.Close(comp)

		exporter, err := newExporter(res.Symbols, comp, false)
		if err != nil {
			return err
		}
		phase = timer.Start("export")
		out, err := exporter.Export(ctx, device, fmt.Sprintf("device-seed%d", simSeed))
		phase.Stop()
		if err != nil {
			return err
		}
		summary.ResultFile = out.Path
	}

	timer.PrintSummary()
	return nil
}

func printSession(res *workload.Result, reg *prometheus.Registry) {
	log := GetLogger()
	log.Info("=== Channels ===")
	for _, st := range res.Channels {
		log.Info("  %-10s produced=%d consumed=%d recycled=%d fresh=%d",
			st.Name, st.Produced, st.Consumed, st.Recycled, st.Fresh)
	}
	log.Info("Monitor: %d passes, %d records", res.Monitor.Passes, res.Monitor.Handled)

	p := res.Processor
	log.Info("Processor: %d correlations, %d activities, %d deferred, %d unmatched, %d duplicates",
		p.Correlations, p.Activities, p.Deferred, p.Unmatched, p.Duplicates)
	if p.Traced > 0 || p.FlushErrors > 0 {
		log.Info("Traces: %d written, %d flush errors", p.Traced, p.FlushErrors)
	}

	families, err := reg.Gather()
	if err != nil {
		log.Warn("Failed to gather metrics: %v", err)
		return
	}
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		log.Debug("  %s = %.0f", mf.GetName(), total)
	}
	log.Info("")
}

func reportTraces(cmd *cobra.Command, repos *repository.Repositories, runID int64) {
	n, err := repos.Trace.CountTraces(cmd.Context(), runID)
	if err != nil {
		GetLogger().Warn("Failed to count traces: %v", err)
		return
	}
	GetLogger().Info("Run %d: %d activity traces stored", runID, n)
}

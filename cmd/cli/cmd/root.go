package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/callpath-core/pkg/config"
	"github.com/callpath-core/pkg/telemetry"
	"github.com/callpath-core/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string

	logger            utils.Logger
	cfg               *config.Config
	telemetryShutdown telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "callpath",
	Short: "A calling context tree aggregation tool",
	Long: `callpath builds calling context trees from per-thread samples and
merges them into a single profile.

It reads collapsed stack files, replays them as thread profiles and reduces
them into one tree with a metric block per thread plus cross-thread
summaries. The simulate command drives the producer/consumer channels that
attribute asynchronous device activity to the host context that launched it.
Reduced trees are exported as pprof profiles.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logLevel := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			logLevel = utils.LevelDebug
		}
		format := utils.ParseLogFormat(cfg.Log.Format)
		if cfg.Log.OutputPath != "" {
			fileLogger, err := utils.NewFileLogger(logLevel, cfg.Log.OutputPath)
			if err != nil {
				return err
			}
			fileLogger.SetFormat(format)
			logger = fileLogger
		} else {
			logger = utils.NewLogger(logLevel, format, os.Stdout)
		}
		utils.SetGlobalLogger(logger)

		shutdown, err := telemetry.Init(cmd.Context())
		if err != nil {
			logger.Warn("Failed to initialize telemetry: %v", err)
		}
		telemetryShutdown = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown == nil {
			return nil
		}
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush telemetry: %v", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./config.yaml)")

	binName := BinName()
	rootCmd.Example = `  # Reduce collapsed stacks and export a pprof profile
  ` + binName + ` aggregate -i ./stacks.folded --export

  # Reduce several files, keeping only contexts above 0.5% of the total
  ` + binName + ` aggregate -i a.folded -i b.folded --prune 0.5

  # Run a synthetic host/device session and persist activity traces
  ` + binName + ` simulate --threads 8 --launches 10000 --trace

  # Print version information
  ` + binName + ` version`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	if logger == nil {
		return utils.GetGlobalLogger()
	}
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

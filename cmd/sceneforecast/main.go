// Package main implements the sceneforecast CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Noofbiz/sceneforecast/config"
	"github.com/Noofbiz/sceneforecast/metrics"
)

var (
	// Global flags
	verbose         bool
	configPath      string
	fromDB          bool
	metricsAddr     string
	metricsTextfile string

	// Logger
	logger *zap.Logger

	// Loaded in PersistentPreRunE
	cfg     *config.Config
	manager *metrics.Manager
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "sceneforecast",
	Short: "sceneforecast - trajectory prediction toolkit",
	Long: `sceneforecast loads agent annotations, produces multi-modal trajectory
predictions with physics, nearest-neighbour, and learned models, and checks and
scores prediction submissions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		var err error
		cfg, err = config.Load(ctx, configPath)
		if err != nil {
			return err
		}
		if metricsAddr != "" {
			cfg.Metrics.Addr = metricsAddr
		}
		if metricsTextfile != "" {
			cfg.Metrics.Textfile = metricsTextfile
		}

		zapConfig := zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		zapConfig.Level = zap.NewAtomicLevelAt(level)
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		manager = metrics.NewManager()
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		if cfg.Metrics.Textfile == "" {
			return nil
		}
		if err := manager.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return fmt.Errorf("write metrics textfile: %w", err)
		}
		logger.Debug("metrics written", zap.String("path", cfg.Metrics.Textfile))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $SCENEFORECAST_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&fromDB, "from-db", false, "Read annotations from the SQLite store instead of CSV")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		importCmd,
		predictCmd,
		trainCmd,
		validateCmd,
		evaluateCmd,
		rasterCmd,
		runsCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

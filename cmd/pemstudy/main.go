package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pemstudy/internal/config"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Shared state built in PersistentPreRunE
	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pemstudy",
	Short: "pemstudy - error-message quality study pipeline",
	Long: `pemstudy runs the programming-error-message study pipeline, one stage
per subcommand, each reading the previous stage's artifact:

  filter -> index -> sample -> materialize -> enhance -> assign -> rate -> combine

Every stage exits non-zero on fatal input problems; per-row problems are
logged, counted, and never abort a run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "pemstudy.yaml", "Path to the study configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(materializeCmd)
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(combineCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled by SIGINT/SIGTERM, so external
// calls and interactive input stay interruptible.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tristendillon/delombok/core/logger"
	"github.com/tristendillon/delombok/core/pipeline"
	"github.com/tristendillon/delombok/core/telemetry"
	"github.com/tristendillon/delombok/core/watcher"
)

var (
	watchFlags       pipelineFlags
	watchDebounce    time.Duration
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rerun delombok whenever the source tree changes",
	Long: `Runs the pipeline once, then watches the root directory and reruns it
after changes settle. The output directory is ignored when it lives under
the root. With --metrics-addr, run counters are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := watchFlags.load(cmd, true)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("debounce") {
			cfg.Watch.Debounce = watchDebounce
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.Watch.MetricsAddr = watchMetricsAddr
		}

		if info, err := os.Stat(cfg.Root); err != nil || !info.IsDir() {
			return &pipeline.ConfigError{Root: cfg.Root, Reason: "does not exist"}
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		p := newPipeline(cmd, cfg)
		if cfg.Watch.MetricsAddr != "" {
			p.Metrics = telemetry.New()
			go func() {
				if err := telemetry.Serve(ctx, cfg.Watch.MetricsAddr, p.Metrics); err != nil {
					logger.Error("Metrics server stopped: %v", err)
				}
			}()
		}

		fw, err := watcher.NewFileWatcher(cfg.Root, []string{cfg.Output}, cfg.Watch.Debounce)
		if err != nil {
			return err
		}
		defer fw.Close()

		runOnce := func() error {
			started := time.Now()
			res, err := p.Run(ctx)
			writeReport(cfg, res, err, started)
			if err != nil {
				return fmt.Errorf("delombok run failed: %w", err)
			}
			logger.Info("Watching %s for changes", cfg.Root)
			return nil
		}
		fw.OnStart = runOnce
		fw.OnChange = runOnce

		return fw.Watch(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchFlags.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before rerunning")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
}

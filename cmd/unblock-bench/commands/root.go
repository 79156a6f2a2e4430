// Package commands implements the unblock-bench command line.
package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/utkarsh5026/unblock/config"
	"github.com/utkarsh5026/unblock/internal/bench"
	"github.com/utkarsh5026/unblock/pool"
)

var errScenariosFailed = errors.New("scenarios failed")

// Global flags.
var (
	cfgFile     string
	parallel    int
	scenarios   []string
	metricsFile string
	saveConfig  string
	quiet       bool
)

// flagKeys maps config flags onto the keys config.Bind reads.
var flagKeys = map[string]string{
	"max-workers":     "max_workers",
	"min-workers":     "min_workers",
	"idle-timeout":    "idle_timeout",
	"buffer-size":     "buffer_size",
	"thread-affinity": "thread_affinity",
}

var rootCmd = &cobra.Command{
	Use:   "unblock-bench",
	Short: "Exercise the blocking worker pool and stream adapters",
	Long: `unblock-bench runs live scenarios against a worker pool built from the
given configuration: parallel sleeps, stream round trips and seeks, channel
draining, idle shrinking and cooperative coroutines. It prints a report and
exits non-zero if any scenario fails.

Configuration is read from --config, then UNBLOCK_* environment variables,
then flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBench,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML, optional)")

	d := config.Default()
	flags.Int("max-workers", d.MaxWorkers, "maximum number of worker threads")
	flags.Int("min-workers", d.MinWorkers, "workers kept alive past the idle timeout")
	flags.Duration("idle-timeout", d.IdleTimeout, "how long an idle worker waits before exiting")
	flags.Int("buffer-size", d.BufferSize, "stream buffer capacity in bytes")
	flags.Bool("thread-affinity", d.ThreadAffinity, "pin worker threads to CPU cores")

	flags.IntVar(&parallel, "parallel", 1, "scenarios run at the same time")
	flags.StringSliceVar(&scenarios, "scenario", nil, "run only the named scenarios")
	flags.StringVar(&metricsFile, "metrics-file", "", "write the pool's Prometheus metrics to this file")
	flags.StringVar(&saveConfig, "save-config", "", "write the effective configuration to this file")
	flags.BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
}

func runBench(cmd *cobra.Command, _ []string) error {
	undo, err := maxprocs.Set(maxprocs.Logger(func(string, ...any) {}))
	if err != nil {
		return fmt.Errorf("failed to set GOMAXPROCS: %w", err)
	}
	defer undo()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if saveConfig != "" {
		if err := config.Save(cfg, saveConfig); err != nil {
			return err
		}
	}

	picked, err := bench.Select(scenarios)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "unblock-bench-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	reg := prometheus.NewRegistry()
	p := pool.New(
		pool.WithConfig(cfg),
		pool.WithName("bench"),
		pool.WithMetrics(reg),
	)
	defer p.Close(5 * time.Second)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	bench.PrintConfig(out, cfg)

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = bench.NewProgressBar(len(picked))
	}
	env := &bench.Env{Config: cfg, Pool: p, Dir: dir}
	results := bench.Run(ctx, env, picked, parallel, bar)
	if bar != nil {
		_ = bar.Finish()
	}

	failed := bench.Render(out, results, p.Stats())

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errScenariosFailed, failed, len(results))
	}
	return nil
}

// loadConfig layers flags that were set explicitly over the file and the
// environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.Bind(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if err := bindFlags(cmd, v); err != nil {
		return config.Config{}, err
	}
	return config.Decode(v)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

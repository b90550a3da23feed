package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jpequegn/parallelcache/internal/backend"
	"github.com/jpequegn/parallelcache/internal/cache"
	"github.com/jpequegn/parallelcache/internal/config"
	"github.com/jpequegn/parallelcache/internal/driver"
	"github.com/jpequegn/parallelcache/internal/examples"
	"github.com/jpequegn/parallelcache/internal/registry"
	"github.com/jpequegn/parallelcache/internal/reporter"
	"github.com/jpequegn/parallelcache/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a bundled demonstration pipeline through capture, compute, and replay",
	Long: `Run exercises the capture/replay driver end to end using a small
synthetic histogramming pipeline, a motivating use case for batching and
parallelizing cacheable analysis calls.

Example:
  parallelcache run --example histogram --backend pool --pool-size 4`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("example", "histogram", "bundled example pipeline to run")
	runCmd.Flags().String("backend", "", "dispatch backend: pool or inline (default from config)")
	runCmd.Flags().Int("pool-size", 0, "worker pool size for the pool backend (default from config)")
	runCmd.Flags().String("cache-driver", "", "cache oracle: memory or sqlite (default from config)")
	runCmd.Flags().String("cache-path", "", "sqlite cache path, used when cache-driver=sqlite")
	runCmd.Flags().String("format", "text", "report format: text or json")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	example, _ := cmd.Flags().GetString("example")
	if example != "histogram" {
		return fmt.Errorf("unknown example %q (only \"histogram\" is bundled)", example)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Backend = v
	}
	if v, _ := cmd.Flags().GetInt("pool-size"); v > 0 {
		cfg.PoolSize = v
	}
	if v, _ := cmd.Flags().GetString("cache-driver"); v != "" {
		cfg.CacheDriver = v
	}
	if v, _ := cmd.Flags().GetString("cache-path"); v != "" {
		cfg.CachePath = v
	}

	reg := registry.New()
	fn := examples.NewHistogramFunction()
	reg.Register(fn)

	oracle, closeOracle, err := buildOracle(cfg.CacheDriver, cfg.CachePath)
	if err != nil {
		return err
	}
	if closeOracle != nil {
		defer closeOracle()
	}

	b := buildBackend(cfg.Backend, reg, cfg.PoolSize)

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	events := telemetry.LogHandler(slog.Default())

	d, closeScope, err := driver.Scope(b, oracle,
		driver.WithEvents(events),
		driver.WithMetrics(metrics),
		driver.WithPollInterval(cfg.PollInterval),
	)
	if err != nil {
		return fmt.Errorf("open driver scope: %w", err)
	}
	defer closeScope()

	slog.Info("parallelcache: running example", "example", example, "backend", cfg.Backend, "cache_driver", cfg.CacheDriver)

	counts, err := examples.Run(ctx, d, fn)
	if err != nil {
		return err
	}

	for key, count := range counts {
		slog.Debug("bin result", "bin", key, "count", count)
	}

	report := reporter.FromSummary(d.Summary())
	format, _ := cmd.Flags().GetString("format")
	return printReport(report, format)
}

func printReport(report reporter.Report, format string) error {
	switch format {
	case "json":
		data, err := reporter.RenderJSON(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
	default:
		text, err := reporter.RenderText(report)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, text)
	}
	return nil
}

func buildOracle(cacheDriver, cachePath string) (cache.Oracle, func(), error) {
	switch cacheDriver {
	case "sqlite":
		o, err := cache.NewSQLiteOracle(cachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return o, func() { _ = o.Close() }, nil
	default:
		return cache.NewMemoryOracle(), nil, nil
	}
}

func buildBackend(name string, reg *registry.Registry, poolSize int) backend.Backend {
	if name == "inline" {
		return backend.NewInlineBackend(reg)
	}
	return backend.NewPoolBackend(reg, poolSize)
}

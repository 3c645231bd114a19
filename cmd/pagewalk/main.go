// pagewalk browses large line-oriented text files through a
// paged, cached sliding window.
//
// Usage:
//
//	pagewalk [flags] <file>
//
// Settings are read from a JSONC file (see --config) and may be
// overridden by flags. With --metrics-addr, cache metrics are
// served in the Prometheus exposition format at /metrics.
//
// Commands (in REPL):
//
//	show                 Print the lines in view
//	next / n [count]     Slide the window down
//	prev / p [count]     Slide the window up
//	grow [count]         Add lines to the window
//	shrink [count]       Remove lines from the window
//	jump / j <line>      Move the window to a line
//	top / end            Move the window to the start or end
//	prefetch             Load every page in view
//	stats                Show cache statistics
//	help                 Show this help
//	exit / quit / q      Exit
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/djdv/go-pagevirt"
	"github.com/djdv/go-pagevirt/internal/linefile"
	"github.com/djdv/go-pagevirt/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

const placeholderLine = "..."

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "pagewalk:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, path, err := parseArgs(args)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.level(),
	}))
	index, err := linefile.Open(path, cfg.Stride)
	if err != nil {
		return err
	}
	defer index.Close()
	logger.Debug("file indexed", "path", path, "lines", index.Len())

	registry := prometheus.NewRegistry()
	observer, err := metrics.New(registry, filepath.Base(path))
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		server := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer server.Close()
	}

	collection, closeCollection, err := openCollection(cfg, index, logger, observer)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCollection(); err != nil {
			logger.Warn("closing collection", "error", err)
		}
	}()
	window, err := pagevirt.NewSlidingWindow(context.Background(), collection, 0, cfg.Window)
	if err != nil {
		return err
	}
	defer window.Close()

	repl := newREPL(os.Stdout, collection, window, cfg.History)
	return repl.Run()
}

// openCollection assembles a collection over index as configured.
// The returned function releases the collection and its workers.
func openCollection(cfg Config, index *linefile.Index,
	logger *slog.Logger, observer pagevirt.Observer,
) (*pagevirt.Collection[string], func() error, error) {
	var (
		builder = pagevirt.NewBuilder[string](cfg.PageSize, nil,
			pagevirt.WithLogger(logger),
			pagevirt.WithObserver(observer),
		)
		removal pagevirt.RemovalStage[string]
	)
	if cfg.Preloading {
		removal = builder.Preloading(nil)
	} else {
		removal = builder.NonPreloading()
	}
	fetchers := withPolicy(removal, cfg).
		BlockingFetchers(index.Fetch, index.Count)
	if !cfg.Async {
		collection, err := fetchers.SyncIndexAccess()
		if err != nil {
			return nil, nil, err
		}
		return collection, collection.Close, nil
	}
	pool := pagevirt.NewWorkerPool(pagevirt.PoolConfig{
		MaxWorkers:       cfg.Workers,
		FetchesPerSecond: cfg.FetchRate,
	})
	placeholder := func(int, int) string { return placeholderLine }
	collection, err := fetchers.AsyncIndexAccess(placeholder, pool)
	if err != nil {
		return nil, nil, errors.Join(err, pool.Close())
	}
	closeAll := func() error {
		return errors.Join(collection.Close(), pool.Close())
	}
	return collection, closeAll, nil
}

func withPolicy(removal pagevirt.RemovalStage[string], cfg Config) pagevirt.FetcherStage[string] {
	switch cfg.Policy {
	case policyHoarding:
		return removal.Hoarding()
	case policyClockPro:
		return removal.ClockPro(cfg.Capacity)
	case policyARC:
		return removal.AdaptiveReplacement(cfg.Capacity)
	default:
		return removal.LeastRecentlyUsed(cfg.PageLimit, cfg.RemovalCount)
	}
}

func serveMetrics(address string, gatherer prometheus.Gatherer, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "address", address, "error", err)
		}
	}()
	return server
}

// Command query_exporter runs configured SQL queries on a schedule and
// exposes their results as Prometheus metrics, the way pgbouncer_exporter
// and sql_exporter wire up kingpin, promlog, and exporter-toolkit's web
// server bring-up.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/promlog"
	"github.com/prometheus/common/promlog/flag"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
	webflag "github.com/prometheus/exporter-toolkit/web/kingpinflag"

	"github.com/queryexporter/query-exporter/internal/config"
	"github.com/queryexporter/query-exporter/internal/executor"
	"github.com/queryexporter/query-exporter/internal/metrics"
)

func main() {
	var (
		configFiles = kingpin.Flag("config", "Path to a configuration file; may be given multiple times.").
				Required().Strings()
		checkOnly = kingpin.Flag("check-only", "Validate the configuration and exit.").Bool()
		toolkitFlags = webflag.AddFlags(kingpin.CommandLine, ":9560")
		metricsPath  = kingpin.Flag("web.metrics-path", "Path under which to expose metrics.").Default("/metrics").String()
	)

	promlogConfig := &promlog.Config{}
	flag.AddFlags(kingpin.CommandLine, promlogConfig)
	kingpin.CommandLine.GetFlag(flag.LevelFlagName).Envar("QE_LOG_LEVEL")
	kingpin.Version(version.Print("query_exporter"))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := promlog.New(promlogConfig)

	cfg, err := config.Load(*configFiles)
	if err != nil {
		level.Error(logger).Log("msg", "error loading configuration", "err", err)
		os.Exit(1)
	}
	if *checkOnly {
		level.Info(logger).Log("msg", "configuration is valid")
		os.Exit(0)
	}

	registry := metrics.New()
	exec, err := executor.New(cfg, registry, logger)
	if err != nil {
		level.Error(logger).Log("msg", "error building executor", "err", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := exec.Start(ctx); err != nil {
		level.Error(logger).Log("msg", "error starting scheduler", "err", err)
		os.Exit(2)
	}

	go expireLoop(ctx, exec)

	mux := http.NewServeMux()
	mux.Handle(*metricsPath, scrapeHandler(exec, registry, logger))
	mux.HandleFunc("/", homeHandlerFunc(*metricsPath))
	mux.HandleFunc("/config", configHandlerFunc(*metricsPath, cfg))

	server := &http.Server{Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- web.ListenAndServe(server, toolkitFlags, logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		level.Error(logger).Log("msg", "server error", "err", err)
		cancel()
		exec.Stop()
		os.Exit(2)
	case <-sigCh:
		level.Info(logger).Log("msg", "shutting down")
		cancel()
		exec.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func expireLoop(ctx context.Context, exec *executor.Executor) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exec.ClearExpiredSeries(time.Now())
		}
	}
}

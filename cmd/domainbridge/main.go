// Command domainbridge runs a standalone bridge process driven by a YAML
// configuration file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openrelay/domainbridge"
	"github.com/openrelay/domainbridge/fabric"
	_ "github.com/openrelay/domainbridge/fabric/memory"
	_ "github.com/openrelay/domainbridge/fabric/nats"
)

func main() {
	configPath := flag.String("config", "bridge.yaml", "path to the bridge configuration file")
	flag.Parse()

	baseLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := domainbridge.NewSlogBridgeLogger(baseLogger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("bridge exited", err, nil)
		os.Exit(1)
	}
}

func run(configPath string, logger domainbridge.BridgeLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := domainbridge.LoadConfigFile(configPath)
	if err != nil {
		return err
	}

	fab, err := fabric.Build(ctx, cfg, domainbridge.NewWatermillAdapter(logger))
	if err != nil {
		return err
	}
	defer func() { _ = fab.Close() }()

	metrics := domainbridge.NewBridgeMetrics()
	if cfg.MetricsEnabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if cfg.MetricsPort > 0 {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			go func() {
				addr := fmt.Sprintf(":%d", cfg.MetricsPort)
				if err := http.ListenAndServe(addr, mux); err != nil {
					logger.Error("metrics server stopped", err, nil)
				}
			}()
		}
	}

	bridge, err := domainbridge.New(fab, domainbridge.Options{
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	topics, err := cfg.TopicOptions()
	if err != nil {
		return err
	}
	for _, opts := range topics {
		if _, err := bridge.BridgeTopic(ctx, opts); err != nil {
			_ = bridge.Close()
			return fmt.Errorf("bridge topic %q: %w", opts.Topic, err)
		}
	}

	go func() {
		for ev := range bridge.Events() {
			if ev.Err != nil {
				logger.Error("bridge health event", ev.Err, domainbridge.LogFields{
					"kind":   ev.Kind.String(),
					"bridge": ev.Key.String(),
				})
			}
		}
	}()

	logger.Info("domain bridge running", domainbridge.LogFields{
		"topics": len(topics),
		"fabric": cfg.Fabric,
	})

	<-ctx.Done()
	return bridge.Close()
}

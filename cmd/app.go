// cmd/app.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/config"
	"github.com/xkilldash9x/wardrunner/internal/login"
	"github.com/xkilldash9x/wardrunner/internal/observability"
	"github.com/xkilldash9x/wardrunner/internal/reporting"
	"github.com/xkilldash9x/wardrunner/internal/session"
)

const shutdownGracePeriod = 30 * time.Second

// app holds the components one CLI run wires together.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	gatherer *prometheus.Registry
	sessions *session.Registry
	login    *login.Orchestrator
}

func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	reporter, err := reporting.New(cfg.Report, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reporter: %w", err)
	}

	sessions := session.NewRegistry(cfg, session.NewBackends(cfg.Browser, logger), logger, metrics)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		gatherer: promRegistry,
		sessions: sessions,
		login:    login.New(cfg, sessions, login.SourcesFromConfig(cfg, EnvPrefix), reporter, logger, metrics),
	}, nil
}

// close quits every session, even when ctx has already been cancelled.
func (a *app) close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(driver.Detach(ctx), shutdownGracePeriod)
	defer cancel()
	a.sessions.Shutdown(shutdownCtx)
}

// writeMetrics dumps the run's counters in the node-exporter textfile format.
func (a *app) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, a.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/raysh454/zapscan/internal/apispec"
	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/metrics"
	"github.com/raysh454/zapscan/internal/pdfreport"
	"github.com/raysh454/zapscan/internal/probe"
	"github.com/raysh454/zapscan/internal/reports"
	"github.com/raysh454/zapscan/internal/webclient"
	"github.com/raysh454/zapscan/internal/zap"
)

// shutdownTimeout bounds how long Shutdown waits for running scans.
const shutdownTimeout = 15 * time.Second

// Application is the global runtime state container. It owns the
// long-lived resources (database, HTTP client) and the orchestrator that
// uses them. Pass Application into modules that need access to the global
// state rather than using package-level variables.
type Application struct {
	Config  *Config
	Logger  logging.Logger
	Orch    *Orchestrator
	Metrics *metrics.Metrics

	store *reports.Store
	wc    *webclient.NetHTTPClient
}

// NewApplication opens the report store and wires every component from cfg.
func NewApplication(ctx context.Context, cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wc, err := webclient.NewNetHTTPClient(cfg.WebClient, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("webclient: %w", err)
	}

	m, err := metrics.New()
	if err != nil {
		wc.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	fetcher := apispec.NewFetcher(wc, cfg.SpecFetchAttempts, cfg.SpecFetchSpacing, logger)
	gateway, err := zap.NewClient(cfg.Zap, wc, fetcher, logger)
	if err != nil {
		wc.Close()
		return nil, err
	}
	gateway.OnError(m.GatewayError)

	store, err := reports.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		wc.Close()
		return nil, fmt.Errorf("open report store: %w", err)
	}

	orch, err := NewOrchestrator(cfg, Deps{
		Store:    store,
		Gateway:  gateway,
		Specs:    fetcher,
		Prober:   probe.New(wc, logger),
		Renderer: pdfreport.New(),
		Metrics:  m,
	}, logger)
	if err != nil {
		store.Close()
		wc.Close()
		return nil, err
	}

	return &Application{
		Config:  cfg,
		Logger:  logger,
		Orch:    orch,
		Metrics: m,
		store:   store,
		wc:      wc,
	}, nil
}

// Start begins processing queued scans.
func (a *Application) Start() error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application starting",
		logging.Field{Key: "zap", Value: a.Config.Zap.BaseURL},
		logging.Field{Key: "db_driver", Value: a.Config.Database.Driver},
		logging.Field{Key: "workers", Value: a.Config.Workers})
	a.Orch.Start()
	return nil
}

// Shutdown drains the orchestrator with a bounded timeout, then releases
// the store and the HTTP client.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs *multierror.Error
	if err := a.Orch.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("orchestrator shutdown returned error", logging.Field{Key: "error", Value: err.Error()})
		errs = multierror.Append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := a.wc.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close webclient: %w", err))
	}

	return errs.ErrorOrNil()
}

// Command zapscand runs the scan orchestration service: the HTTP API, the
// background scan workers and the report store.
// Usage: zapscand --zap-api-url http://localhost:8080 --zap-api-key KEY
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/zapscan/internal/app"
	"github.com/raysh454/zapscan/internal/cli"
	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/server"
)

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		if cli.IsHelp(err) {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := args.Config()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}

	logger := logging.NewLagerLogger("zapscand", cfg.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.Error("exiting", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
}

func run(cfg *app.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{
		ListenAddr: cfg.ListenAddr,
		Logger:     logger,
		Metrics:    application.Metrics,
	}, application.Orch)
	if err != nil {
		_ = application.Shutdown(context.Background())
		return err
	}

	if err := application.Start(); err != nil {
		return err
	}

	httpServer := srv.HTTPServer()
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: cfg.ListenAddr})
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("signal received, shutting down")
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", logging.Field{Key: "error", Value: serr.Error()})
	}
	if aerr := application.Shutdown(context.Background()); aerr != nil {
		logger.Warn("application shutdown", logging.Field{Key: "error", Value: aerr.Error()})
	}
	return err
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josephblackelite/spur-protocol/pkg/api"
	"github.com/josephblackelite/spur-protocol/pkg/artifacts"
	"github.com/josephblackelite/spur-protocol/pkg/config"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/observability"
	"github.com/josephblackelite/spur-protocol/pkg/store"
)

// runServeCmd implements `spur serve`. It blocks until SIGINT or SIGTERM.
func runServeCmd(args []string, cfg *config.Config, _, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		addr   string
		export bool
	)
	cmd.StringVar(&addr, "addr", cfg.ListenAddr, "Listen address")
	cmd.BoolVar(&export, "export", false, "Export compiled plans to the artifact store")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, addr, export); err != nil {
		slog.Error("server stopped", "error", err)
		return exitError
	}
	return exitOK
}

func serve(ctx context.Context, cfg *config.Config, addr string, export bool) error {
	logger := slog.Default()

	lookup, closeRegistry, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer closeRegistry()

	telemetry, err := observability.New(ctx, observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: contracts.ProtocolVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       true,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	opts := api.Options{
		Registry:  lookup,
		Telemetry: telemetry,
		Limiter:   api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Logger:    logger,
	}
	if cfg.DatabaseURL != "" {
		s, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open plan store: %w", err)
		}
		defer func() { _ = s.Close() }()
		opts.Store = s
	}
	if export {
		blobs, err := artifacts.NewStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open artifact store: %w", err)
		}
		opts.Artifacts = blobs
	}

	srv, err := api.NewServer(opts)
	if err != nil {
		return err
	}
	go opts.Limiter.Run(ctx)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("spur server listening",
			"addr", addr,
			"plan_store", cfg.DatabaseURL != "",
			"export", export,
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

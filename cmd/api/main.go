package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"case-distribution/internal/assignment"
	"case-distribution/internal/bootstrap"
	"case-distribution/internal/config"
	"case-distribution/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &server{
		engine:      app.Engine,
		eligibility: assignment.Eligibility{BufferBusinessDays: cfg.Policy.LeaveBufferBusinessDays},
		loc:         cfg.GetLocation(),
		now:         time.Now,
		logger:      logger.Named("http"),
		gatherer:    app.Registry,
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Notify.NATSURL != "" {
		go retryNotifications(ctx, app.Engine, cfg.GetRetryInterval(), logger.Named("notify"))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server started", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Driver))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = httpServer.Shutdown(shutdownCtx)
	if ferr := app.Engine.FlushNotifications(shutdownCtx); ferr != nil {
		logger.Warn("entries left unpublished at shutdown",
			zap.Int("pending", app.Engine.PendingNotifications()), zap.Error(ferr))
	}
	return err
}

// retryNotifications republishes entries whose publish failed, until ctx ends.
func retryNotifications(ctx context.Context, engine *assignment.Engine, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if engine.PendingNotifications() == 0 {
				continue
			}
			if err := engine.FlushNotifications(ctx); err == nil {
				logger.Info("queued assignments published")
			}
		}
	}
}

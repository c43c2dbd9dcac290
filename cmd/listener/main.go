package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"case-distribution/internal/config"
	"case-distribution/internal/logging"
	"case-distribution/internal/notify"
	"case-distribution/internal/store"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// The listener follows the assignment feed and mirrors it into a CSV sheet,
// so the team keeps a spreadsheet view without touching the engine's store.
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
		logger.Fatal("listener failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Notify.NATSURL == "" {
		return fmt.Errorf("notify.nats_url is required")
	}

	if dir := filepath.Dir(cfg.Notify.SheetPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create sheet directory: %w", err)
		}
	}
	sheet, err := store.NewCSVAppender(cfg.Notify.SheetPath, cfg.GetLocation())
	if err != nil {
		return err
	}
	defer sheet.Close()

	nc, err := nats.Connect(cfg.Notify.NATSURL, nats.Name("case-distribution-listener"))
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create jetstream context: %w", err)
	}

	cc, err := notify.Subscribe(ctx, js, cfg.Notify.Stream, cfg.Notify.Durable, sheet.Append, logger.Named("consumer"))
	if err != nil {
		return err
	}
	defer cc.Stop()

	logger.Info("listener started",
		zap.String("stream", cfg.Notify.Stream),
		zap.String("durable", cfg.Notify.Durable),
		zap.String("sheet", cfg.Notify.SheetPath))

	<-ctx.Done()
	logger.Info("listener stopping")
	return nil
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"case-distribution/internal/config"
	"case-distribution/internal/models"
	"case-distribution/internal/notify"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRun_MirrorsFeedIntoSheet(t *testing.T) {
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	defer func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := config.DefaultConfig()
	cfg.Notify.NATSURL = ns.ClientURL()
	cfg.Notify.SheetPath = filepath.Join(t.TempDir(), "sheets", "distribution.csv")
	cfg.Policy.Timezone = "UTC"

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	pub, err := notify.NewJetStream(ctx, nc, cfg.Notify.Stream, cfg.Notify.Subject, nil)
	require.NoError(t, err)
	require.NoError(t, pub.AssignmentRecorded(ctx, &models.LedgerEntry{
		ID: "e1", Seq: 1, Timestamp: time.Date(2026, 3, 12, 13, 30, 0, 0, time.UTC),
		CaseIDs: []string{"P3", "P4", "P5"}, Assignee: "Ana", Weight: 1.2, Correlated: true,
	}))

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- run(runCtx, cfg, zap.NewNop()) }()

	want := "12/03/2026 13:30,\"P3, P4, P5\",Ana,1.2,Correlated,,e1"
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(cfg.Notify.SheetPath)
		return err == nil && strings.Contains(string(data), want)
	}, 5*time.Second, 50*time.Millisecond)

	stop()
	require.NoError(t, <-done)
}

func TestRun_RequiresNATS(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Notify.NATSURL = ""
	require.Error(t, run(context.Background(), cfg, zap.NewNop()))
}

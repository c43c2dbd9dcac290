package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"case-distribution/internal/config"
	"case-distribution/internal/models"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
members:
  - name: Ana
  - name: Bruno
case_types:
  - name: Embargos
    base_weight: 1
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedYAML), 0o644))

	cfg := config.DefaultConfig()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = filepath.Join(dir, "dist.db")
	cfg.Store.SeedPath = seed
	cfg.Policy.Timezone = "UTC"
	return cfg
}

func TestNew_SeedsEmptyStoreOnce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Len(t, app.Engine.Snapshot().Members, 2)

	_, err = app.Engine.Assign(ctx, &models.CaseRequest{CaseIDs: []string{"P1"}, CaseType: "Embargos"})
	require.NoError(t, err)
	require.NoError(t, app.Engine.RemoveMember(ctx, "Bruno"))
	require.NoError(t, app.Close())

	// The store is no longer empty, so the seed does not bring Bruno back.
	app, err = New(ctx, cfg, nil)
	require.NoError(t, err)
	defer app.Close()
	assert.Len(t, app.Engine.Snapshot().Members, 1)
	assert.Len(t, app.Engine.Snapshot().Entries, 1)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "mongo"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNew_PublishesToJetStream(t *testing.T) {
	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	})
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5*time.Second))
	defer func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	}()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Notify.NATSURL = srv.ClientURL()

	app, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Engine.Assign(ctx, &models.CaseRequest{CaseIDs: []string{"P1"}, CaseType: "Embargos"})
	require.NoError(t, err)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stream, err := js.Stream(ctx, cfg.Notify.Stream)
		if err != nil {
			return false
		}
		info, err := stream.Info(ctx)
		return err == nil && info.State.Msgs == 1
	}, 5*time.Second, 50*time.Millisecond)
}


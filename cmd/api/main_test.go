package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"case-distribution/internal/assignment"
	"case-distribution/internal/models"
	"case-distribution/internal/store"

	"go.uber.org/zap"
)

// outageNotifier fails the first few publishes, as a NATS outage would.
type outageNotifier struct {
	mu        sync.Mutex
	failures  int
	published []int64
}

func (n *outageNotifier) AssignmentRecorded(ctx context.Context, e *models.LedgerEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return errors.New("nats: timeout")
	}
	n.published = append(n.published, e.Seq)
	return nil
}

func TestRetryNotifications_PublishesQueuedEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := &outageNotifier{failures: 2}
	engine := assignment.NewEngine(store.NewMemoryStore(), assignment.WithNotifier(notifier))
	if err := engine.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := engine.UpsertCaseType(ctx, &models.CaseType{Name: "Embargos", BaseWeight: 1}); err != nil {
		t.Fatal(err)
	}
	if err := engine.UpsertMember(ctx, &models.TeamMember{Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Assign(ctx, &models.CaseRequest{CaseIDs: []string{"P1"}, CaseType: "Embargos"}); err != nil {
		t.Fatal(err)
	}
	if got := engine.PendingNotifications(); got != 1 {
		t.Fatalf("expected 1 queued entry after the failed publish, got %d", got)
	}

	done := make(chan struct{})
	go func() {
		retryNotifications(ctx, engine, 10*time.Millisecond, zap.NewNop())
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for engine.PendingNotifications() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("queued entry was never republished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.published) != 1 || notifier.published[0] != 1 {
		t.Errorf("expected seq 1 published once, got %v", notifier.published)
	}
}

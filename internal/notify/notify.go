// Package notify publishes committed ledger entries to downstream consumers
// (spreadsheet exporters, dashboards). Publication happens after the engine
// has released its critical section; a failed publish never undoes an assignment,
// the engine keeps the entry queued and retries it.
package notify

import (
	"context"

	"case-distribution/internal/models"
)

type Notifier interface {
	AssignmentRecorded(ctx context.Context, entry *models.LedgerEntry) error
}

// Cursor is implemented by notifiers whose feed can report the highest
// ledger seq it holds. Zero means the feed is empty.
type Cursor interface {
	LastPublishedSeq(ctx context.Context) (int64, error)
}

// Nop drops every notification.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) AssignmentRecorded(context.Context, *models.LedgerEntry) error { return nil }

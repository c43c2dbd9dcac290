// Package ledger holds the append-only history of assignment decisions.
// The ledger is the source of truth for accumulated load: a member's load is
// the sum of the weights of its entries recorded after the latest reset.
//
// A Ledger is not safe for concurrent use; the assignment engine owns it and
// only touches it inside its critical section.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"case-distribution/internal/models"
)

var (
	// ErrOutOfOrder is returned when an entry does not carry the next sequence number.
	ErrOutOfOrder = errors.New("ledger entry out of order")

	// ErrDuplicateID is returned when an entry ID is already recorded.
	ErrDuplicateID = errors.New("ledger entry id already recorded")
)

type Ledger struct {
	entries   []*models.LedgerEntry
	resets    []*models.LoadReset
	byID      map[string]*models.LedgerEntry
	byRequest map[string]*models.LedgerEntry
}

func New() *Ledger {
	return &Ledger{
		byID:      make(map[string]*models.LedgerEntry),
		byRequest: make(map[string]*models.LedgerEntry),
	}
}

// FromHistory rebuilds a ledger from stored entries and resets. Entries may
// arrive in any order but their sequence numbers must be gap-free from 1.
func FromHistory(entries []*models.LedgerEntry, resets []*models.LoadReset) (*Ledger, error) {
	sorted := append([]*models.LedgerEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	l := New()
	for _, e := range sorted {
		if err := l.Append(e); err != nil {
			return nil, err
		}
	}

	rs := append([]*models.LoadReset(nil), resets...)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].AfterSeq < rs[j].AfterSeq })
	for _, r := range rs {
		if err := l.Reset(r); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// LastSeq is the sequence number of the newest entry, 0 when empty.
func (l *Ledger) LastSeq() int64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Seq
}

func (l *Ledger) NextSeq() int64 {
	return l.LastSeq() + 1
}

// Append records e. The entry must carry NextSeq and an unused ID.
func (l *Ledger) Append(e *models.LedgerEntry) error {
	if e.Seq != l.NextSeq() {
		return fmt.Errorf("%w: got seq %d, want %d", ErrOutOfOrder, e.Seq, l.NextSeq())
	}
	if _, ok := l.byID[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
	}
	l.entries = append(l.entries, e)
	l.byID[e.ID] = e
	if e.RequestID != "" {
		l.byRequest[e.RequestID] = e
	}
	return nil
}

// Reset records a load reset marker. Markers must not point past the newest
// entry nor before the previous marker.
func (l *Ledger) Reset(r *models.LoadReset) error {
	if r.AfterSeq > l.LastSeq() {
		return fmt.Errorf("%w: reset after seq %d beyond last seq %d", ErrOutOfOrder, r.AfterSeq, l.LastSeq())
	}
	if last := l.LastReset(); last != nil && r.AfterSeq < last.AfterSeq {
		return fmt.Errorf("%w: reset after seq %d precedes previous reset at %d", ErrOutOfOrder, r.AfterSeq, last.AfterSeq)
	}
	l.resets = append(l.resets, r)
	return nil
}

func (l *Ledger) LastReset() *models.LoadReset {
	if len(l.resets) == 0 {
		return nil
	}
	return l.resets[len(l.resets)-1]
}

// ActiveFrom is the first sequence number that counts toward current load.
func (l *Ledger) ActiveFrom() int64 {
	if r := l.LastReset(); r != nil {
		return r.AfterSeq + 1
	}
	return 1
}

// Loads sums weight per assignee over the entries since the latest reset.
func (l *Ledger) Loads() map[string]float64 {
	loads := make(map[string]float64)
	for _, e := range l.Since(l.ActiveFrom()) {
		loads[e.Assignee] += e.Weight
	}
	return loads
}

// Since returns the entries with Seq >= seq, oldest first.
func (l *Ledger) Since(seq int64) []*models.LedgerEntry {
	if seq < 1 {
		seq = 1
	}
	if seq > l.LastSeq() {
		return nil
	}
	// Seq is gap-free from 1, so it doubles as an index.
	return l.entries[seq-1:]
}

// Entries returns a copy of the full history, oldest first.
func (l *Ledger) Entries() []*models.LedgerEntry {
	return append([]*models.LedgerEntry(nil), l.entries...)
}

// View returns the current history without copying. The slice is capped, so
// later appends never become visible through it and it is safe to hand to
// concurrent readers.
func (l *Ledger) View() []*models.LedgerEntry {
	n := len(l.entries)
	return l.entries[:n:n]
}

func (l *Ledger) Resets() []*models.LoadReset {
	return append([]*models.LoadReset(nil), l.resets...)
}

func (l *Ledger) ByID(id string) (*models.LedgerEntry, bool) {
	e, ok := l.byID[id]
	return e, ok
}

// ByRequestID finds the entry produced by an earlier submission with the same key.
func (l *Ledger) ByRequestID(requestID string) (*models.LedgerEntry, bool) {
	if requestID == "" {
		return nil, false
	}
	e, ok := l.byRequest[requestID]
	return e, ok
}

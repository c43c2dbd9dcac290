package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"case-distribution/internal/models"
)

var ledgerCSVHeader = []string{"Date", "Cases", "Assignee", "Weight", "Type", "Triager"}

// The mirrored sheet carries the entry ID last so rows can be deduplicated.
var sheetHeader = append(slices.Clone(ledgerCSVHeader), "Entry")

func ledgerRecord(e *models.LedgerEntry, loc *time.Location) []string {
	kind := "Normal"
	if e.Correlated {
		kind = "Correlated"
	}
	return []string{
		e.Timestamp.In(loc).Format("02/01/2006 15:04"),
		strings.Join(e.CaseIDs, ", "),
		e.Assignee,
		strconv.FormatFloat(e.Weight, 'f', -1, 64),
		kind,
		e.Triager,
	}
}

// WriteLedgerCSV writes entries in the layout of the distribution sheet.
// Timestamps are rendered in loc.
func WriteLedgerCSV(w io.Writer, entries []*models.LedgerEntry, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerCSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(ledgerRecord(e, loc)); err != nil {
			return fmt.Errorf("entry %d: %w", e.Seq, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVAppender keeps a distribution sheet on disk up to date, one row per
// entry, in arrival order. Entries whose ID is already in the sheet are
// skipped, so redeliveries and replays never duplicate rows.
type CSVAppender struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	loc  *time.Location
	seen map[string]struct{}
}

// NewCSVAppender opens path for appending, writing the header to a new file.
// The entry IDs of an existing sheet are read back for deduplication.
func NewCSVAppender(path string, loc *time.Location) (*CSVAppender, error) {
	if loc == nil {
		loc = time.UTC
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open sheet: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	a := &CSVAppender{f: f, w: csv.NewWriter(f), loc: loc, seen: make(map[string]struct{})}
	if info.Size() > 0 {
		if err := a.readSeen(path); err != nil {
			f.Close()
			return nil, err
		}
		return a, nil
	}
	if err := a.w.Write(sheetHeader); err != nil {
		f.Close()
		return nil, err
	}
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func (a *CSVAppender) readSeen(path string) error {
	r := csv.NewReader(a.f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", path, err)
	}
	if !slices.Equal(header, sheetHeader) {
		return fmt.Errorf("sheet %s has header %v, want %v", path, header, sheetHeader)
	}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read sheet %s: %w", path, err)
		}
		a.seen[rec[len(rec)-1]] = struct{}{}
	}
}

func (a *CSVAppender) Append(ctx context.Context, e *models.LedgerEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.seen[e.ID]; ok && e.ID != "" {
		return nil
	}
	if err := a.w.Write(append(ledgerRecord(e, a.loc), e.ID)); err != nil {
		return err
	}
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		return fmt.Errorf("failed to write entry %d: %w", e.Seq, err)
	}
	a.seen[e.ID] = struct{}{}
	return nil
}

func (a *CSVAppender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Close()
}

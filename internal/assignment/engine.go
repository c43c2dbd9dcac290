package assignment

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"case-distribution/internal/ledger"
	"case-distribution/internal/metrics"
	"case-distribution/internal/models"
	"case-distribution/internal/notify"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Engine owns the roster, the catalog and the ledger, and serializes every
// mutation through a single critical section. Reads go through Snapshot and
// never take the lock.
type Engine struct {
	db          DataStore
	logger      *zap.Logger
	metrics     metrics.Collector
	notifier    notify.Notifier
	weights     WeightPolicy
	eligibility Eligibility
	loc         *time.Location
	now         func() time.Time
	newID       func() string
	lockTimeout time.Duration
	maxRetries  int

	notifyTimeout time.Duration

	sem *semaphore.Weighted

	// Committed entries the notifier has not accepted yet, oldest first.
	// flushMu serializes publishing; pendingMu only guards the queue.
	flushMu   sync.Mutex
	pendingMu sync.Mutex
	pending   []*models.LedgerEntry

	// Guarded by sem.
	members map[string]*models.TeamMember
	catalog map[string]*models.CaseType
	ledger  *ledger.Ledger
	loads   map[string]float64
	version uint64

	snapshot atomic.Pointer[Snapshot]
}

func NewEngine(db DataStore, opts ...Option) *Engine {
	e := &Engine{
		db:          db,
		logger:      zap.NewNop(),
		metrics:     metrics.NewNop(),
		notifier:    notify.Nop{},
		weights:     DefaultWeightPolicy(),
		eligibility: Eligibility{BufferBusinessDays: 3},
		loc:         time.UTC,
		now:         time.Now,
		newID:       defaultIDGenerator,
		lockTimeout: 2 * time.Second,
		maxRetries:  3,

		notifyTimeout: 5 * time.Second,

		sem:         semaphore.NewWeighted(1),
		members:     make(map[string]*models.TeamMember),
		catalog:     make(map[string]*models.CaseType),
		ledger:      ledger.New(),
		loads:       make(map[string]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.publishLocked()
	return e
}

// Load replaces in-memory state with what the store holds. Accumulated load
// is recomputed from the ledger; stored counters are only cross-checked.
// When the notifier can report how far its feed got, entries committed after
// that point are published again.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	if err := e.reloadLocked(ctx); err != nil {
		e.sem.Release(1)
		return err
	}
	if replay := e.unpublishedLocked(ctx); len(replay) > 0 {
		e.logger.Info("republishing entries missing from the feed",
			zap.Int64("from_seq", replay[0].Seq), zap.Int("entries", len(replay)))
		e.enqueue(replay...)
	}
	e.sem.Release(1)

	_ = e.FlushNotifications(ctx)
	return nil
}

// Assign picks a member for req, records the decision and charges its weight.
// Either the ledger entry and the load increment are both applied or nothing is.
func (e *Engine) Assign(ctx context.Context, req *models.CaseRequest) (*models.Assignment, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", ErrInvalidInput)
	}

	if err := e.lock(ctx); err != nil {
		e.metrics.RecordAssignment(resultFor(err), 0)
		return nil, err
	}

	result, entry, err := e.assignLocked(ctx, req)
	if entry != nil {
		// Queued before release so the feed sees entries in seq order.
		e.enqueue(entry)
	}
	e.sem.Release(1)

	if err != nil {
		e.metrics.RecordAssignment(resultFor(err), 0)
		e.logger.Info("assignment rejected",
			zap.String("case_type", req.CaseType),
			zap.Strings("case_ids", req.CaseIDs),
			zap.Error(err))
		return nil, err
	}
	if entry == nil {
		e.metrics.RecordAssignment(metrics.ResultReplayed, result.Weight)
		return result, nil
	}

	e.metrics.RecordAssignment(metrics.ResultSuccess, result.Weight)
	e.logger.Info("case assigned",
		zap.String("assignee", result.Assignee),
		zap.String("case_type", result.CaseType),
		zap.Float64("weight", result.Weight),
		zap.Int64("seq", result.Seq),
		zap.Bool("escape_valve", result.EscapeValve))

	_ = e.FlushNotifications(ctx)
	return result, nil
}

// FlushNotifications hands every queued entry to the notifier, oldest first.
// It stops at the first failure and keeps the rest queued for the next call.
// The caller's cancellation does not abort publishing; the notify timeout does.
func (e *Engine) FlushNotifications(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
	defer cancel()

	for {
		entry := e.nextPending()
		if entry == nil {
			return nil
		}
		if err := e.notifier.AssignmentRecorded(pctx, entry); err != nil {
			e.logger.Warn("failed to publish assignment, will retry",
				zap.String("entry_id", entry.ID),
				zap.Int64("seq", entry.Seq),
				zap.Int("pending", e.PendingNotifications()),
				zap.Error(err))
			return fmt.Errorf("publish entry %d: %w", entry.Seq, err)
		}
		e.dropPending(entry.ID)
	}
}

// PendingNotifications reports how many committed entries still wait for the notifier.
func (e *Engine) PendingNotifications() int {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return len(e.pending)
}

func (e *Engine) nextPending() *models.LedgerEntry {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if len(e.pending) == 0 {
		return nil
	}
	return e.pending[0]
}

func (e *Engine) dropPending(id string) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.pending = slices.DeleteFunc(e.pending, func(p *models.LedgerEntry) bool { return p.ID == id })
}

func (e *Engine) enqueue(entries ...*models.LedgerEntry) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	for _, entry := range entries {
		if !slices.ContainsFunc(e.pending, func(p *models.LedgerEntry) bool { return p.ID == entry.ID }) {
			e.pending = append(e.pending, entry)
		}
	}
	slices.SortFunc(e.pending, func(a, b *models.LedgerEntry) int { return cmp.Compare(a.Seq, b.Seq) })
}

// unpublishedLocked lists the entries after the notifier's last confirmed seq.
func (e *Engine) unpublishedLocked(ctx context.Context) []*models.LedgerEntry {
	cursor, ok := e.notifier.(notify.Cursor)
	if !ok {
		return nil
	}
	last, err := cursor.LastPublishedSeq(ctx)
	if err != nil {
		e.logger.Warn("cannot read feed position, skipping replay", zap.Error(err))
		return nil
	}
	return e.ledger.Since(last + 1)
}

func (e *Engine) assignLocked(ctx context.Context, req *models.CaseRequest) (*models.Assignment, *models.LedgerEntry, error) {
	for attempt := 0; ; attempt++ {
		if prev, ok := e.ledger.ByRequestID(req.RequestID); ok {
			if !sameSubmission(prev, req) {
				return nil, nil, fmt.Errorf("%w: request id %q was already used for a different submission", ErrInvalidInput, req.RequestID)
			}
			return models.AssignmentFromEntry(prev, false), nil, nil
		}

		result, entry, err := e.tryAssignLocked(ctx, req)
		if !errors.Is(err, ErrConflict) || attempt >= e.maxRetries {
			return result, entry, err
		}

		e.metrics.RecordConflictRetry()
		e.logger.Warn("ledger moved underneath us, reloading", zap.Int("attempt", attempt+1), zap.Error(err))
		if rerr := e.reloadLocked(ctx); rerr != nil {
			return nil, nil, fmt.Errorf("reload after conflict: %w", rerr)
		}
	}
}

func (e *Engine) tryAssignLocked(ctx context.Context, req *models.CaseRequest) (*models.Assignment, *models.LedgerEntry, error) {
	ct, ok := e.catalog[req.CaseType]
	if !ok {
		return nil, nil, fmt.Errorf("%w: case type %q is not in the catalog", ErrUnknownCaseType, req.CaseType)
	}
	if req.Triager != "" {
		if _, ok := e.members[req.Triager]; !ok {
			return nil, nil, fmt.Errorf("%w: triager %q is not on the roster", ErrUnknownMember, req.Triager)
		}
	}

	now := e.now()
	candidates, err := e.eligibility.Filter(e.rosterLocked(), ct, models.Date(now, e.loc))
	if err != nil {
		return nil, nil, err
	}

	if err := validateCaseIDs(req.CaseIDs); err != nil {
		return nil, nil, err
	}
	base, err := e.weights.Base(ct.BaseWeight, len(req.CaseIDs), req.Correlated)
	if err != nil {
		return nil, nil, fmt.Errorf("case type %q: %w", ct.Name, err)
	}

	winner, err := Select(candidates.Members)
	if err != nil {
		return nil, nil, err
	}
	weight := e.weights.ApplyTriager(base, winner.Name, req.Triager)

	entry := &models.LedgerEntry{
		ID:         e.newID(),
		Seq:        e.ledger.NextSeq(),
		Timestamp:  now.UTC(),
		CaseIDs:    append([]string(nil), req.CaseIDs...),
		CaseType:   ct.Name,
		Assignee:   winner.Name,
		Weight:     weight,
		Correlated: req.Correlated,
		Triager:    req.Triager,
		RequestID:  req.RequestID,
	}

	if err := e.db.AppendEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to persist ledger entry: %w", err)
	}

	if err := e.ledger.Append(entry); err != nil {
		// The store accepted an entry our own ledger rejects: in-memory state
		// is stale. Rebuild from the store, which now includes the entry.
		e.logger.Error("in-memory ledger rejected persisted entry", zap.Int64("seq", entry.Seq), zap.Error(err))
		if rerr := e.reloadLocked(ctx); rerr != nil {
			return nil, nil, fmt.Errorf("reload after ledger mismatch: %w", rerr)
		}
	} else {
		e.loads[winner.Name] += weight
		e.publishLocked()
	}

	return models.AssignmentFromEntry(entry, candidates.EscapeValve), entry, nil
}

// ResetLoad zeroes every accumulated load while keeping the ledger intact.
// Resetting again before any new assignment is a no-op that returns the
// previous marker. State is refreshed from the store first so the marker
// always lands after the newest entry, even when another engine appended.
func (e *Engine) ResetLoad(ctx context.Context, period string) (*models.LoadReset, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	for attempt := 0; ; attempt++ {
		if err := e.reloadLocked(ctx); err != nil {
			return nil, fmt.Errorf("refresh before reset: %w", err)
		}
		reset, err := e.tryResetLocked(ctx, period)
		if !errors.Is(err, ErrConflict) || attempt >= e.maxRetries {
			return reset, err
		}
		e.metrics.RecordConflictRetry()
		e.logger.Warn("ledger moved before reset, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

func (e *Engine) tryResetLocked(ctx context.Context, period string) (*models.LoadReset, error) {
	if last := e.ledger.LastReset(); last != nil && last.AfterSeq == e.ledger.LastSeq() {
		return last, nil
	}

	reset := &models.LoadReset{
		AfterSeq: e.ledger.LastSeq(),
		Period:   strings.TrimSpace(period),
		At:       e.now().UTC(),
	}
	if err := e.db.SaveReset(ctx, reset); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist load reset: %w", err)
	}
	if err := e.ledger.Reset(reset); err != nil {
		return nil, err
	}
	e.loads = make(map[string]float64)
	e.publishLocked()

	e.metrics.RecordReset()
	e.logger.Info("accumulated load reset", zap.String("period", reset.Period), zap.Int64("after_seq", reset.AfterSeq))
	return reset, nil
}

// UpsertMember adds or replaces a roster member. Its load stays whatever the
// ledger says it is.
func (e *Engine) UpsertMember(ctx context.Context, m *models.TeamMember) error {
	if err := validateMember(m); err != nil {
		return err
	}
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.sem.Release(1)

	stored := m.Clone()
	stored.AccumulatedLoad = e.loads[m.Name]
	if err := e.db.SaveMember(ctx, stored); err != nil {
		return fmt.Errorf("failed to save member %s: %w", m.Name, err)
	}
	e.members[m.Name] = stored
	e.publishLocked()
	return nil
}

func (e *Engine) RemoveMember(ctx context.Context, name string) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.sem.Release(1)

	if _, ok := e.members[name]; !ok {
		return fmt.Errorf("%w: %q is not on the roster", ErrUnknownMember, name)
	}
	if err := e.db.DeleteMember(ctx, name); err != nil {
		return fmt.Errorf("failed to delete member %s: %w", name, err)
	}
	delete(e.members, name)
	e.publishLocked()
	return nil
}

func (e *Engine) UpsertCaseType(ctx context.Context, ct *models.CaseType) error {
	if err := validateCaseType(ct); err != nil {
		return err
	}
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.sem.Release(1)

	stored := *ct
	if err := e.db.SaveCaseType(ctx, &stored); err != nil {
		return fmt.Errorf("failed to save case type %s: %w", ct.Name, err)
	}
	e.catalog[ct.Name] = &stored
	e.publishLocked()
	return nil
}

func (e *Engine) RemoveCaseType(ctx context.Context, name string) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.sem.Release(1)

	if _, ok := e.catalog[name]; !ok {
		return fmt.Errorf("%w: case type %q is not in the catalog", ErrUnknownCaseType, name)
	}
	if err := e.db.DeleteCaseType(ctx, name); err != nil {
		return fmt.Errorf("failed to delete case type %s: %w", name, err)
	}
	delete(e.catalog, name)
	e.publishLocked()
	return nil
}

// Snapshot returns the latest consistent view of the engine state.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

func (e *Engine) lock(ctx context.Context) error {
	start := time.Now()
	lctx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	if err := e.sem.Acquire(lctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: critical section not acquired within %s", ErrBusy, e.lockTimeout)
	}
	e.metrics.RecordLockWait(time.Since(start).Seconds())
	return nil
}

func (e *Engine) reloadLocked(ctx context.Context) error {
	members, err := e.db.ListMembers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}
	caseTypes, err := e.db.ListCaseTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	entries, err := e.db.ListLedger(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	resets, err := e.db.ListResets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load resets: %w", err)
	}

	l, err := ledger.FromHistory(entries, resets)
	if err != nil {
		return fmt.Errorf("stored ledger is inconsistent: %w", err)
	}
	loads := l.Loads()

	roster := make(map[string]*models.TeamMember, len(members))
	for _, m := range members {
		c := m.Clone()
		if derived := loads[c.Name]; math.Abs(derived-c.AccumulatedLoad) > 1e-9 {
			e.logger.Warn("stored load diverges from ledger, using ledger",
				zap.String("member", c.Name),
				zap.Float64("stored", c.AccumulatedLoad),
				zap.Float64("ledger", derived))
		}
		c.AccumulatedLoad = loads[c.Name]
		roster[c.Name] = c
	}
	catalog := make(map[string]*models.CaseType, len(caseTypes))
	for _, ct := range caseTypes {
		c := *ct
		catalog[c.Name] = &c
	}

	e.members = roster
	e.catalog = catalog
	e.ledger = l
	e.loads = loads
	e.publishLocked()

	e.logger.Info("state loaded",
		zap.Int("members", len(roster)),
		zap.Int("case_types", len(catalog)),
		zap.Int("ledger_entries", l.Len()))
	return nil
}

// rosterLocked returns member copies carrying their current load, sorted by name.
func (e *Engine) rosterLocked() []*models.TeamMember {
	roster := make([]*models.TeamMember, 0, len(e.members))
	for _, m := range e.members {
		c := m.Clone()
		c.AccumulatedLoad = e.loads[m.Name]
		roster = append(roster, c)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].Name < roster[j].Name })
	return roster
}

func (e *Engine) publishLocked() {
	e.version++

	caseTypes := make([]*models.CaseType, 0, len(e.catalog))
	for _, ct := range e.catalog {
		c := *ct
		caseTypes = append(caseTypes, &c)
	}
	sort.Slice(caseTypes, func(i, j int) bool { return caseTypes[i].Name < caseTypes[j].Name })

	s := &Snapshot{
		Version:   e.version,
		TakenAt:   e.now().UTC(),
		Members:   e.rosterLocked(),
		CaseTypes: caseTypes,
		Entries:   e.ledger.View(),
		LastReset: e.ledger.LastReset(),
	}
	e.snapshot.Store(s)
	e.metrics.RecordMemberLoads(s.Loads())
}

func sameSubmission(prev *models.LedgerEntry, req *models.CaseRequest) bool {
	return prev.CaseType == req.CaseType &&
		slices.Equal(prev.CaseIDs, req.CaseIDs) &&
		prev.Correlated == req.Correlated &&
		prev.Triager == req.Triager
}

func validateMember(m *models.TeamMember) error {
	if m == nil || strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: member name is required", ErrInvalidInput)
	}
	if m.Leave != nil && m.Leave.End.Before(m.Leave.Start) {
		return fmt.Errorf("%w: leave of %s ends before it starts", ErrInvalidInput, m.Name)
	}
	return nil
}

func validateCaseType(ct *models.CaseType) error {
	if ct == nil || strings.TrimSpace(ct.Name) == "" {
		return fmt.Errorf("%w: case type name is required", ErrInvalidInput)
	}
	if ct.BaseWeight <= 0 {
		return fmt.Errorf("%w: case type %s needs a positive base weight", ErrInvalidInput, ct.Name)
	}
	return nil
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, ErrNoEligibleMembers):
		return metrics.ResultNoEligible
	case errors.Is(err, ErrInvalidWeightInput), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownCaseType), errors.Is(err, ErrUnknownMember):
		return metrics.ResultInvalid
	case errors.Is(err, ErrBusy):
		return metrics.ResultBusy
	case errors.Is(err, ErrConflict):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}

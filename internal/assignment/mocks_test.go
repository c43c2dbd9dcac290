package assignment

import (
	"context"
	"fmt"
	"sync"

	"case-distribution/internal/models"
)

// MockDataStore keeps state in memory. Any Func field that is set replaces
// the default behaviour for that method.
type MockDataStore struct {
	mu        sync.Mutex
	members   map[string]*models.TeamMember
	caseTypes map[string]*models.CaseType
	entries   []*models.LedgerEntry
	resets    []*models.LoadReset

	AppendEntryFunc func(ctx context.Context, entry *models.LedgerEntry) error
	SaveResetFunc   func(ctx context.Context, reset *models.LoadReset) error
	ListLedgerFunc  func(ctx context.Context) ([]*models.LedgerEntry, error)
}

var _ DataStore = (*MockDataStore)(nil)

func NewMockDataStore() *MockDataStore {
	return &MockDataStore{
		members:   make(map[string]*models.TeamMember),
		caseTypes: make(map[string]*models.CaseType),
	}
}

func (m *MockDataStore) ListMembers(ctx context.Context) ([]*models.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TeamMember
	for _, mem := range m.members {
		out = append(out, mem.Clone())
	}
	return out, nil
}

func (m *MockDataStore) SaveMember(ctx context.Context, member *models.TeamMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[member.Name] = member.Clone()
	return nil
}

func (m *MockDataStore) DeleteMember(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, name)
	return nil
}

func (m *MockDataStore) ListCaseTypes(ctx context.Context) ([]*models.CaseType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CaseType
	for _, ct := range m.caseTypes {
		c := *ct
		out = append(out, &c)
	}
	return out, nil
}

func (m *MockDataStore) SaveCaseType(ctx context.Context, ct *models.CaseType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *ct
	m.caseTypes[ct.Name] = &c
	return nil
}

func (m *MockDataStore) DeleteCaseType(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.caseTypes, name)
	return nil
}

func (m *MockDataStore) ListLedger(ctx context.Context) ([]*models.LedgerEntry, error) {
	if m.ListLedgerFunc != nil {
		return m.ListLedgerFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.LedgerEntry(nil), m.entries...), nil
}

func (m *MockDataStore) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if m.AppendEntryFunc != nil {
		return m.AppendEntryFunc(ctx, entry)
	}
	return m.appendEntry(entry)
}

func (m *MockDataStore) appendEntry(entry *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == entry.ID {
			return nil
		}
		if e.Seq == entry.Seq {
			return fmt.Errorf("%w: seq %d already recorded", ErrConflict, entry.Seq)
		}
	}
	m.entries = append(m.entries, entry)
	if mem, ok := m.members[entry.Assignee]; ok {
		mem.AccumulatedLoad += entry.Weight
	}
	return nil
}

func (m *MockDataStore) ListResets(ctx context.Context) ([]*models.LoadReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.LoadReset(nil), m.resets...), nil
}

func (m *MockDataStore) SaveReset(ctx context.Context, reset *models.LoadReset) error {
	if m.SaveResetFunc != nil {
		return m.SaveResetFunc(ctx, reset)
	}
	return m.saveReset(reset)
}

func (m *MockDataStore) saveReset(reset *models.LoadReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last := int64(len(m.entries)); reset.AfterSeq != last {
		return fmt.Errorf("%w: reset after seq %d, ledger ends at %d", ErrConflict, reset.AfterSeq, last)
	}
	m.resets = append(m.resets, reset)
	for _, mem := range m.members {
		mem.AccumulatedLoad = 0
	}
	return nil
}

func (m *MockDataStore) entryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MockNotifier records published entries. AssignmentRecordedFunc, when set,
// runs first and its error aborts the publish.
type MockNotifier struct {
	mu        sync.Mutex
	published []*models.LedgerEntry

	AssignmentRecordedFunc func(ctx context.Context, entry *models.LedgerEntry) error
}

func (n *MockNotifier) AssignmentRecorded(ctx context.Context, entry *models.LedgerEntry) error {
	if n.AssignmentRecordedFunc != nil {
		if err := n.AssignmentRecordedFunc(ctx, entry); err != nil {
			return err
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, entry)
	return nil
}

func (n *MockNotifier) seqs() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int64, 0, len(n.published))
	for _, e := range n.published {
		out = append(out, e.Seq)
	}
	return out
}

// cursorNotifier is a MockNotifier whose feed claims to hold entries up to last.
type cursorNotifier struct {
	*MockNotifier
	last int64
}

func (n cursorNotifier) LastPublishedSeq(context.Context) (int64, error) {
	return n.last, nil
}

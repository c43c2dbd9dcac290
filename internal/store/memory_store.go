package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"case-distribution/internal/assignment"
	"case-distribution/internal/models"
)

// MemoryStore keeps everything in process memory. State is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	members   map[string]*models.TeamMember
	caseTypes map[string]*models.CaseType
	entries   []*models.LedgerEntry
	entryIDs  map[string]struct{}
	resets    []*models.LoadReset
}

var _ assignment.DataStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:   make(map[string]*models.TeamMember),
		caseTypes: make(map[string]*models.CaseType),
		entryIDs:  make(map[string]struct{}),
	}
}

func (s *MemoryStore) ListMembers(ctx context.Context) ([]*models.TeamMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TeamMember, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) SaveMember(ctx context.Context, member *models.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := member.Clone()
	if prev, ok := s.members[member.Name]; ok {
		c.AccumulatedLoad = prev.AccumulatedLoad
	}
	s.members[member.Name] = c
	return nil
}

func (s *MemoryStore) DeleteMember(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, name)
	return nil
}

func (s *MemoryStore) ListCaseTypes(ctx context.Context) ([]*models.CaseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CaseType, 0, len(s.caseTypes))
	for _, ct := range s.caseTypes {
		c := *ct
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) SaveCaseType(ctx context.Context, ct *models.CaseType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ct
	s.caseTypes[ct.Name] = &c
	return nil
}

func (s *MemoryStore) DeleteCaseType(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.caseTypes, name)
	return nil
}

func (s *MemoryStore) ListLedger(ctx context.Context) ([]*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.LedgerEntry(nil), s.entries...), nil
}

func (s *MemoryStore) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entryIDs[entry.ID]; ok {
		return nil
	}
	if want := int64(len(s.entries)) + 1; entry.Seq != want {
		return fmt.Errorf("%w: seq %d, next free seq is %d", assignment.ErrConflict, entry.Seq, want)
	}

	e := *entry
	e.CaseIDs = append([]string(nil), entry.CaseIDs...)
	s.entries = append(s.entries, &e)
	s.entryIDs[e.ID] = struct{}{}
	if m, ok := s.members[e.Assignee]; ok {
		m.AccumulatedLoad += e.Weight
	}
	return nil
}

func (s *MemoryStore) ListResets(ctx context.Context) ([]*models.LoadReset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.LoadReset(nil), s.resets...), nil
}

func (s *MemoryStore) SaveReset(ctx context.Context, reset *models.LoadReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last := int64(len(s.entries)); reset.AfterSeq != last {
		return fmt.Errorf("%w: reset after seq %d, ledger ends at %d", assignment.ErrConflict, reset.AfterSeq, last)
	}
	r := *reset
	s.resets = append(s.resets, &r)
	for _, m := range s.members {
		m.AccumulatedLoad = 0
	}
	return nil
}

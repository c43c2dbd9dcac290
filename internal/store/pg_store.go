package store

import (
	"context"
	"database/sql"
	"fmt"

	"case-distribution/internal/assignment"
	"case-distribution/internal/db"
	"case-distribution/internal/models"

	"go.uber.org/zap"
)

type PostgresStore struct {
	q      *db.Queries
	db     *sql.DB
	logger *zap.Logger
}

var _ assignment.DataStore = (*PostgresStore)(nil)

func NewPostgresStore(conn *sql.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{q: db.New(conn), db: conn, logger: logger}
}

// Migrate creates missing tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.q.Migrate(ctx)
}

func (s *PostgresStore) ListMembers(ctx context.Context) ([]*models.TeamMember, error) {
	rows, err := s.q.ListTeamMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	out := make([]*models.TeamMember, 0, len(rows))
	for _, r := range rows {
		m := &models.TeamMember{
			Name:            r.Name,
			Specialties:     r.Specialties,
			AccumulatedLoad: r.AccumulatedLoad,
		}
		if r.LeaveStart.Valid && r.LeaveEnd.Valid {
			m.Leave = &models.LeaveInterval{
				Start: models.Date(r.LeaveStart.Time, nil),
				End:   models.Date(r.LeaveEnd.Time, nil),
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *PostgresStore) SaveMember(ctx context.Context, member *models.TeamMember) error {
	row := db.TeamMember{
		Name:            member.Name,
		Specialties:     member.Specialties,
		AccumulatedLoad: member.AccumulatedLoad,
	}
	if row.Specialties == nil {
		row.Specialties = []string{}
	}
	if member.Leave != nil {
		row.LeaveStart = sql.NullTime{Time: member.Leave.Start, Valid: true}
		row.LeaveEnd = sql.NullTime{Time: member.Leave.End, Valid: true}
	}
	return s.q.UpsertTeamMember(ctx, row)
}

func (s *PostgresStore) DeleteMember(ctx context.Context, name string) error {
	return s.q.DeleteTeamMember(ctx, name)
}

func (s *PostgresStore) ListCaseTypes(ctx context.Context) ([]*models.CaseType, error) {
	rows, err := s.q.ListCaseTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list case types: %w", err)
	}
	out := make([]*models.CaseType, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.CaseType{Name: r.Name, BaseWeight: r.BaseWeight, RequiredSpecialty: r.RequiredSpecialty})
	}
	return out, nil
}

func (s *PostgresStore) SaveCaseType(ctx context.Context, ct *models.CaseType) error {
	return s.q.UpsertCaseType(ctx, db.CaseType{Name: ct.Name, BaseWeight: ct.BaseWeight, RequiredSpecialty: ct.RequiredSpecialty})
}

func (s *PostgresStore) DeleteCaseType(ctx context.Context, name string) error {
	return s.q.DeleteCaseType(ctx, name)
}

func (s *PostgresStore) ListLedger(ctx context.Context) ([]*models.LedgerEntry, error) {
	rows, err := s.q.ListLedgerEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	out := make([]*models.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.LedgerEntry{
			ID:         r.ID,
			Seq:        r.Seq,
			Timestamp:  r.RecordedAt.UTC(),
			CaseIDs:    r.CaseIDs,
			CaseType:   r.CaseType,
			Assignee:   r.Assignee,
			Weight:     r.Weight,
			Correlated: r.Correlated,
			Triager:    r.Triager,
			RequestID:  r.RequestID,
		})
	}
	return out, nil
}

// AppendEntry inserts the entry and bumps the assignee's counter in one
// transaction. A taken seq means another writer got there first.
func (s *PostgresStore) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return s.inTx(ctx, func(q *db.Queries) error {
		inserted, err := q.InsertLedgerEntry(ctx, db.LedgerEntry{
			ID:         entry.ID,
			Seq:        entry.Seq,
			RecordedAt: entry.Timestamp,
			CaseIDs:    entry.CaseIDs,
			CaseType:   entry.CaseType,
			Assignee:   entry.Assignee,
			Weight:     entry.Weight,
			Correlated: entry.Correlated,
			Triager:    entry.Triager,
			RequestID:  entry.RequestID,
		})
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
		if !inserted {
			exists, err := q.LedgerEntryExists(ctx, entry.ID)
			if err != nil {
				return err
			}
			if exists {
				s.logger.Debug("ledger entry already stored", zap.String("entry_id", entry.ID))
				return nil
			}
			return fmt.Errorf("%w: seq %d already recorded", assignment.ErrConflict, entry.Seq)
		}
		return q.AddMemberLoad(ctx, entry.Assignee, entry.Weight)
	})
}

func (s *PostgresStore) ListResets(ctx context.Context) ([]*models.LoadReset, error) {
	rows, err := s.q.ListLoadResets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list load resets: %w", err)
	}
	out := make([]*models.LoadReset, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.LoadReset{AfterSeq: r.AfterSeq, Period: r.Period, At: r.ResetAt.UTC()})
	}
	return out, nil
}

func (s *PostgresStore) SaveReset(ctx context.Context, reset *models.LoadReset) error {
	return s.inTx(ctx, func(q *db.Queries) error {
		// Blocks concurrent appends until commit so the marker cannot fall behind.
		if err := q.LockLedger(ctx); err != nil {
			return fmt.Errorf("failed to lock ledger: %w", err)
		}
		last, err := q.MaxLedgerSeq(ctx)
		if err != nil {
			return fmt.Errorf("failed to read ledger tail: %w", err)
		}
		if reset.AfterSeq != last {
			return fmt.Errorf("%w: reset after seq %d, ledger ends at %d", assignment.ErrConflict, reset.AfterSeq, last)
		}
		if err := q.InsertLoadReset(ctx, db.LoadReset{AfterSeq: reset.AfterSeq, Period: reset.Period, ResetAt: reset.At}); err != nil {
			return fmt.Errorf("failed to insert load reset: %w", err)
		}
		return q.ZeroMemberLoads(ctx)
	})
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(q *db.Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(s.q.WithTx(tx)); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Warn("rollback failed", zap.Error(rerr))
		}
		return err
	}
	return tx.Commit()
}

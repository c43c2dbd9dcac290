package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"case-distribution/internal/assignment"
	"case-distribution/internal/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS team_members (
	name TEXT PRIMARY KEY,
	specialties TEXT NOT NULL DEFAULT '[]',
	leave_start TEXT,
	leave_end TEXT,
	accumulated_load REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS case_types (
	name TEXT PRIMARY KEY,
	base_weight REAL NOT NULL CHECK (base_weight > 0),
	required_specialty TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL UNIQUE,
	recorded_at TEXT NOT NULL,
	case_ids TEXT NOT NULL,
	case_type TEXT NOT NULL,
	assignee TEXT NOT NULL,
	weight REAL NOT NULL,
	correlated INTEGER NOT NULL DEFAULT 0,
	triager TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS load_resets (
	after_seq INTEGER PRIMARY KEY,
	period TEXT NOT NULL,
	reset_at TEXT NOT NULL
);
`

// SQLiteStore persists state in a single SQLite file. It is meant for one
// engine process; several processes sharing the file are still kept honest by
// the unique seq constraint.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ assignment.DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	for _, stmt := range []string{`PRAGMA journal_mode = WAL`, `PRAGMA busy_timeout = 5000`, sqliteSchema} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	return &SQLiteStore{db: conn, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListMembers(ctx context.Context) ([]*models.TeamMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, specialties, leave_start, leave_end, accumulated_load FROM team_members ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var out []*models.TeamMember
	for rows.Next() {
		var (
			m          models.TeamMember
			specs      string
			start, end sql.NullString
		)
		if err := rows.Scan(&m.Name, &specs, &start, &end, &m.AccumulatedLoad); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(specs), &m.Specialties); err != nil {
			return nil, fmt.Errorf("member %s: bad specialties: %w", m.Name, err)
		}
		if start.Valid && end.Valid {
			leave, err := parseLeave(start.String, end.String)
			if err != nil {
				return nil, fmt.Errorf("member %s: %w", m.Name, err)
			}
			m.Leave = leave
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveMember(ctx context.Context, member *models.TeamMember) error {
	specs, err := json.Marshal(nonNil(member.Specialties))
	if err != nil {
		return err
	}
	var start, end sql.NullString
	if member.Leave != nil {
		start = sql.NullString{String: member.Leave.Start.Format(time.DateOnly), Valid: true}
		end = sql.NullString{String: member.Leave.End.Format(time.DateOnly), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO team_members (name, specialties, leave_start, leave_end, accumulated_load) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET specialties = excluded.specialties, leave_start = excluded.leave_start, leave_end = excluded.leave_end`,
		member.Name, string(specs), start, end, member.AccumulatedLoad)
	return err
}

func (s *SQLiteStore) DeleteMember(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM team_members WHERE name = ?`, name)
	return err
}

func (s *SQLiteStore) ListCaseTypes(ctx context.Context) ([]*models.CaseType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, base_weight, required_specialty FROM case_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list case types: %w", err)
	}
	defer rows.Close()

	var out []*models.CaseType
	for rows.Next() {
		var ct models.CaseType
		if err := rows.Scan(&ct.Name, &ct.BaseWeight, &ct.RequiredSpecialty); err != nil {
			return nil, err
		}
		out = append(out, &ct)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveCaseType(ctx context.Context, ct *models.CaseType) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO case_types (name, base_weight, required_specialty) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET base_weight = excluded.base_weight, required_specialty = excluded.required_specialty`,
		ct.Name, ct.BaseWeight, ct.RequiredSpecialty)
	return err
}

func (s *SQLiteStore) DeleteCaseType(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM case_types WHERE name = ?`, name)
	return err
}

func (s *SQLiteStore) ListLedger(ctx context.Context) ([]*models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, recorded_at, case_ids, case_type, assignee, weight, correlated, triager, request_id
		FROM ledger_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var out []*models.LedgerEntry
	for rows.Next() {
		var (
			e       models.LedgerEntry
			at, ids string
		)
		if err := rows.Scan(&e.ID, &e.Seq, &at, &ids, &e.CaseType, &e.Assignee, &e.Weight, &e.Correlated, &e.Triager, &e.RequestID); err != nil {
			return nil, err
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("entry %s: bad timestamp: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(ids), &e.CaseIDs); err != nil {
			return nil, fmt.Errorf("entry %s: bad case ids: %w", e.ID, err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	ids, err := json.Marshal(nonNil(entry.CaseIDs))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, seq, recorded_at, case_ids, case_type, assignee, weight, correlated, triager, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		entry.ID, entry.Seq, entry.Timestamp.UTC().Format(time.RFC3339Nano), string(ids), entry.CaseType,
		entry.Assignee, entry.Weight, entry.Correlated, entry.Triager, entry.RequestID)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE id = ?)`, entry.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			s.logger.Debug("ledger entry already stored", zap.String("entry_id", entry.ID))
			return nil
		}
		return fmt.Errorf("%w: seq %d already recorded", assignment.ErrConflict, entry.Seq)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE team_members SET accumulated_load = accumulated_load + ? WHERE name = ?`,
		entry.Weight, entry.Assignee); err != nil {
		return fmt.Errorf("failed to update load: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListResets(ctx context.Context) ([]*models.LoadReset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT after_seq, period, reset_at FROM load_resets ORDER BY after_seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list load resets: %w", err)
	}
	defer rows.Close()

	var out []*models.LoadReset
	for rows.Next() {
		var (
			r  models.LoadReset
			at string
		)
		if err := rows.Scan(&r.AfterSeq, &r.Period, &at); err != nil {
			return nil, err
		}
		if r.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("reset after %d: bad timestamp: %w", r.AfterSeq, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveReset(ctx context.Context, reset *models.LoadReset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_entries`).Scan(&last); err != nil {
		return fmt.Errorf("failed to read ledger tail: %w", err)
	}
	if reset.AfterSeq != last {
		return fmt.Errorf("%w: reset after seq %d, ledger ends at %d", assignment.ErrConflict, reset.AfterSeq, last)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO load_resets (after_seq, period, reset_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		reset.AfterSeq, reset.Period, reset.At.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to insert load reset: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE team_members SET accumulated_load = 0`); err != nil {
		return fmt.Errorf("failed to zero loads: %w", err)
	}
	return tx.Commit()
}

func parseLeave(start, end string) (*models.LeaveInterval, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return nil, fmt.Errorf("bad leave start: %w", err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return nil, fmt.Errorf("bad leave end: %w", err)
	}
	return &models.LeaveInterval{Start: s, End: e}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

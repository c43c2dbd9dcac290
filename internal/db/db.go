package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type TeamMember struct {
	Name            string
	Specialties     []string
	LeaveStart      sql.NullTime
	LeaveEnd        sql.NullTime
	AccumulatedLoad float64
	UpdatedAt       time.Time
}

type CaseType struct {
	Name              string
	BaseWeight        float64
	RequiredSpecialty string
}

type LedgerEntry struct {
	ID         string
	Seq        int64
	RecordedAt time.Time
	CaseIDs    []string
	CaseType   string
	Assignee   string
	Weight     float64
	Correlated bool
	Triager    string
	RequestID  string
}

type LoadReset struct {
	AfterSeq int64
	Period   string
	ResetAt  time.Time
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries interface mimicking sqlc generated code
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) Migrate(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, Schema)
	return err
}

const listTeamMembers = `SELECT name, specialties, leave_start, leave_end, accumulated_load, updated_at FROM team_members ORDER BY name`

func (q *Queries) ListTeamMembers(ctx context.Context) ([]TeamMember, error) {
	rows, err := q.db.QueryContext(ctx, listTeamMembers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TeamMember
	for rows.Next() {
		var i TeamMember
		if err := rows.Scan(&i.Name, pq.Array(&i.Specialties), &i.LeaveStart, &i.LeaveEnd, &i.AccumulatedLoad, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const upsertTeamMember = `INSERT INTO team_members (name, specialties, leave_start, leave_end, accumulated_load)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE SET
	specialties = EXCLUDED.specialties,
	leave_start = EXCLUDED.leave_start,
	leave_end = EXCLUDED.leave_end,
	updated_at = now()`

// UpsertTeamMember keeps the stored load of an existing member.
func (q *Queries) UpsertTeamMember(ctx context.Context, arg TeamMember) error {
	_, err := q.db.ExecContext(ctx, upsertTeamMember,
		arg.Name, pq.Array(arg.Specialties), arg.LeaveStart, arg.LeaveEnd, arg.AccumulatedLoad,
	)
	return err
}

func (q *Queries) DeleteTeamMember(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM team_members WHERE name = $1`, name)
	return err
}

func (q *Queries) AddMemberLoad(ctx context.Context, name string, weight float64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE team_members SET accumulated_load = accumulated_load + $2, updated_at = now() WHERE name = $1`,
		name, weight,
	)
	return err
}

func (q *Queries) ZeroMemberLoads(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `UPDATE team_members SET accumulated_load = 0, updated_at = now()`)
	return err
}

func (q *Queries) ListCaseTypes(ctx context.Context) ([]CaseType, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT name, base_weight, required_specialty FROM case_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CaseType
	for rows.Next() {
		var i CaseType
		if err := rows.Scan(&i.Name, &i.BaseWeight, &i.RequiredSpecialty); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) UpsertCaseType(ctx context.Context, arg CaseType) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO case_types (name, base_weight, required_specialty) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET base_weight = EXCLUDED.base_weight, required_specialty = EXCLUDED.required_specialty`,
		arg.Name, arg.BaseWeight, arg.RequiredSpecialty,
	)
	return err
}

func (q *Queries) DeleteCaseType(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM case_types WHERE name = $1`, name)
	return err
}

const listLedgerEntries = `SELECT id, seq, recorded_at, case_ids, case_type, assignee, weight, correlated, triager, request_id
FROM ledger_entries ORDER BY seq`

func (q *Queries) ListLedgerEntries(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := q.db.QueryContext(ctx, listLedgerEntries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerEntry
	for rows.Next() {
		var i LedgerEntry
		if err := rows.Scan(&i.ID, &i.Seq, &i.RecordedAt, pq.Array(&i.CaseIDs), &i.CaseType, &i.Assignee,
			&i.Weight, &i.Correlated, &i.Triager, &i.RequestID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertLedgerEntry = `INSERT INTO ledger_entries (id, seq, recorded_at, case_ids, case_type, assignee, weight, correlated, triager, request_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT DO NOTHING`

// InsertLedgerEntry returns false when the id or the seq is already taken.
func (q *Queries) InsertLedgerEntry(ctx context.Context, arg LedgerEntry) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertLedgerEntry,
		arg.ID, arg.Seq, arg.RecordedAt, pq.Array(arg.CaseIDs), arg.CaseType, arg.Assignee,
		arg.Weight, arg.Correlated, arg.Triager, arg.RequestID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (q *Queries) LedgerEntryExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (q *Queries) ListLoadResets(ctx context.Context) ([]LoadReset, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT after_seq, period, reset_at FROM load_resets ORDER BY after_seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LoadReset
	for rows.Next() {
		var i LoadReset
		if err := rows.Scan(&i.AfterSeq, &i.Period, &i.ResetAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) LockLedger(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `LOCK TABLE ledger_entries IN SHARE ROW EXCLUSIVE MODE`)
	return err
}

func (q *Queries) MaxLedgerSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_entries`).Scan(&seq)
	return seq, err
}

func (q *Queries) InsertLoadReset(ctx context.Context, arg LoadReset) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO load_resets (after_seq, period, reset_at) VALUES ($1, $2, $3) ON CONFLICT (after_seq) DO NOTHING`,
		arg.AfterSeq, arg.Period, arg.ResetAt,
	)
	return err
}

package db

// Schema creates the tables used by Queries. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS team_members (
	name             TEXT PRIMARY KEY,
	specialties      TEXT[] NOT NULL DEFAULT '{}',
	leave_start      DATE,
	leave_end        DATE,
	accumulated_load DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (leave_end IS NULL OR leave_start IS NULL OR leave_end >= leave_start)
);

CREATE TABLE IF NOT EXISTS case_types (
	name               TEXT PRIMARY KEY,
	base_weight        DOUBLE PRECISION NOT NULL CHECK (base_weight > 0),
	required_specialty TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id          TEXT PRIMARY KEY,
	seq         BIGINT NOT NULL UNIQUE CHECK (seq > 0),
	recorded_at TIMESTAMPTZ NOT NULL,
	case_ids    TEXT[] NOT NULL,
	case_type   TEXT NOT NULL,
	assignee    TEXT NOT NULL,
	weight      DOUBLE PRECISION NOT NULL,
	correlated  BOOLEAN NOT NULL DEFAULT false,
	triager     TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS ledger_entries_request_id_idx ON ledger_entries (request_id) WHERE request_id <> '';

CREATE TABLE IF NOT EXISTS load_resets (
	after_seq BIGINT PRIMARY KEY,
	period    TEXT NOT NULL,
	reset_at  TIMESTAMPTZ NOT NULL
);
`

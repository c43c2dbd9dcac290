package models

import "time"

// LedgerEntry records one assignment decision. Entries are never mutated.
type LedgerEntry struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	CaseIDs    []string  `json:"case_ids"`
	CaseType   string    `json:"case_type"`
	Assignee   string    `json:"assignee"`
	Weight     float64   `json:"weight"`
	Correlated bool      `json:"is_correlated"`
	Triager    string    `json:"triager,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// LoadReset zeroes accumulated load: only entries with Seq > AfterSeq count.
type LoadReset struct {
	AfterSeq int64     `json:"after_seq"`
	Period   string    `json:"period"`
	At       time.Time `json:"at"`
}

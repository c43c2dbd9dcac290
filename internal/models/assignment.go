package models

import "time"

type Assignment struct {
	EntryID     string    `json:"entry_id"`
	Seq         int64     `json:"seq"`
	Assignee    string    `json:"assignee"`
	Weight      float64   `json:"weight"`
	Correlated  bool      `json:"is_correlated"`
	CaseIDs     []string  `json:"case_ids"`
	CaseType    string    `json:"case_type"`
	EscapeValve bool      `json:"escape_valve"`
	Timestamp   time.Time `json:"timestamp"`
}

// AssignmentFromEntry rebuilds the caller-facing result of a recorded entry.
func AssignmentFromEntry(e *LedgerEntry, escapeValve bool) *Assignment {
	return &Assignment{
		EntryID:     e.ID,
		Seq:         e.Seq,
		Assignee:    e.Assignee,
		Weight:      e.Weight,
		Correlated:  e.Correlated,
		CaseIDs:     append([]string(nil), e.CaseIDs...),
		CaseType:    e.CaseType,
		EscapeValve: escapeValve,
		Timestamp:   e.Timestamp,
	}
}

package models

import "strings"

type CaseRequest struct {
	CaseIDs    []string `json:"case_ids"`
	CaseType   string   `json:"case_type"`
	Correlated bool     `json:"is_correlated"`
	Triager    string   `json:"triager,omitempty"`
	// RequestID makes retries of the same submission return the original result.
	RequestID string `json:"request_id,omitempty"`
}

// ParseCaseIDs splits a comma separated list of case numbers, dropping blanks.
func ParseCaseIDs(raw string) []string {
	var ids []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

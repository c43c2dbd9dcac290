package assignment

import (
	"context"

	"case-distribution/internal/models"
)

// DataStore persists the roster, the catalog and the ledger.
//
// AppendEntry must record the entry and bump the assignee's stored load in one
// transaction. It returns ErrConflict when entry.Seq is already taken by a
// different entry, and nil without changes when the same entry ID is already
// stored, so a retried append is harmless.
type DataStore interface {
	ListMembers(ctx context.Context) ([]*models.TeamMember, error)
	SaveMember(ctx context.Context, member *models.TeamMember) error
	DeleteMember(ctx context.Context, name string) error

	ListCaseTypes(ctx context.Context) ([]*models.CaseType, error)
	SaveCaseType(ctx context.Context, caseType *models.CaseType) error
	DeleteCaseType(ctx context.Context, name string) error

	ListLedger(ctx context.Context) ([]*models.LedgerEntry, error)
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error

	// SaveReset records a reset marker and zeroes every stored load.
	ListResets(ctx context.Context) ([]*models.LoadReset, error)
	SaveReset(ctx context.Context, reset *models.LoadReset) error
}

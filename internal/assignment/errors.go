package assignment

import "errors"

// Sentinel errors returned by the engine. They are wrapped with a reason that
// names the offending case type, member or specialty, so callers should match
// with errors.Is and may show err.Error() to users as is.
var (
	// ErrInvalidWeightInput is returned for a non-positive base weight or an empty case bundle.
	ErrInvalidWeightInput = errors.New("invalid weight input")

	// ErrNoEligibleMembers is returned when every member is on leave or in the pre-leave buffer.
	ErrNoEligibleMembers = errors.New("no eligible members")

	// ErrUnknownCaseType is returned when a request names a case type absent from the catalog.
	ErrUnknownCaseType = errors.New("unknown case type")

	// ErrUnknownMember is returned when a request or admin call names a member absent from the roster.
	ErrUnknownMember = errors.New("unknown member")

	// ErrBusy is returned when the critical section cannot be acquired within the lock timeout.
	ErrBusy = errors.New("assignment engine busy")

	// ErrConflict is returned by stores when another writer already recorded
	// the expected ledger sequence number, and by the engine once retries are exhausted.
	ErrConflict = errors.New("concurrent ledger update")

	// ErrInvalidInput is returned for malformed roster, catalog or request data.
	ErrInvalidInput = errors.New("invalid input")
)

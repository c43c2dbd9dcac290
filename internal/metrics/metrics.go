// Package metrics records engine activity. Implementations must be safe for
// concurrent use and must never block the assignment critical section.
package metrics

// Collector is the metrics surface used by the assignment engine.
type Collector interface {
	// RecordAssignment counts an Assign outcome ("success", "no_eligible",
	// "invalid", "busy", "conflict", "error", "replayed"). Weight is only meaningful on success.
	RecordAssignment(result string, weight float64)

	// RecordLockWait records how long a caller waited for the critical section, in seconds.
	RecordLockWait(seconds float64)

	// RecordMemberLoads publishes the current accumulated load of every member.
	RecordMemberLoads(loads map[string]float64)

	RecordReset()

	RecordConflictRetry()
}

// Assignment outcomes.
const (
	ResultSuccess    = "success"
	ResultReplayed   = "replayed"
	ResultNoEligible = "no_eligible"
	ResultInvalid    = "invalid"
	ResultBusy       = "busy"
	ResultConflict   = "conflict"
	ResultError      = "error"
)

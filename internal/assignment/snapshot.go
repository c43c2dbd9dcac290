package assignment

import (
	"time"

	"case-distribution/internal/models"
)

// Snapshot is an immutable, consistent view of engine state published after
// every mutation. Readers never block Assign and never see a half-applied
// assignment.
type Snapshot struct {
	Version   uint64
	TakenAt   time.Time
	Members   []*models.TeamMember // sorted by name, AccumulatedLoad filled in
	CaseTypes []*models.CaseType   // sorted by name
	Entries   []*models.LedgerEntry
	LastReset *models.LoadReset
}

// Load returns the accumulated load of member.
func (s *Snapshot) Load(member string) (float64, bool) {
	for _, m := range s.Members {
		if m.Name == member {
			return m.AccumulatedLoad, true
		}
	}
	return 0, false
}

func (s *Snapshot) Loads() map[string]float64 {
	loads := make(map[string]float64, len(s.Members))
	for _, m := range s.Members {
		loads[m.Name] = m.AccumulatedLoad
	}
	return loads
}

func (s *Snapshot) TotalLoad() float64 {
	var total float64
	for _, m := range s.Members {
		total += m.AccumulatedLoad
	}
	return total
}

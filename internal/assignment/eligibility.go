package assignment

import (
	"fmt"
	"time"

	"case-distribution/internal/models"
)

// Eligibility derives the candidate set for a case type on a given day.
type Eligibility struct {
	// BufferBusinessDays blocks a member this many business days (Mon-Fri)
	// before the first day of leave.
	BufferBusinessDays int
}

// Candidates is the outcome of filtering the roster for one request.
type Candidates struct {
	Members []*models.TeamMember
	// Available is the number of members not in a blackout window.
	Available int
	// EscapeValve is true when specialty filtering was dropped.
	EscapeValve bool
}

// BlackoutStart returns the first unavailable day for a leave starting on
// start: buffer business days earlier, with weekends in between included.
func BlackoutStart(start time.Time, buffer int) time.Time {
	d := models.Date(start, nil)
	for counted := 0; counted < buffer; {
		d = d.AddDate(0, 0, -1)
		if models.IsBusinessDay(d) {
			counted++
		}
	}
	return d
}

// IsAvailable reports whether m may take cases on day.
func (f Eligibility) IsAvailable(m *models.TeamMember, day time.Time) bool {
	if m.Leave == nil {
		return true
	}
	day = models.Date(day, nil)
	from := BlackoutStart(m.Leave.Start, f.BufferBusinessDays)
	to := models.Date(m.Leave.End, nil)
	return day.Before(from) || day.After(to)
}

// Filter applies availability, specialty matching and the escape valve.
//
// The escape valve widens the pool to every available member when no
// specialist is available, or when the only available specialist is also the
// single most loaded available member.
func (f Eligibility) Filter(roster []*models.TeamMember, ct *models.CaseType, day time.Time) (*Candidates, error) {
	var available []*models.TeamMember
	for _, m := range roster {
		if f.IsAvailable(m, day) {
			available = append(available, m)
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("%w: all %d members are on leave or in the pre-leave buffer on %s (case type %q)",
			ErrNoEligibleMembers, len(roster), models.Date(day, nil).Format(time.DateOnly), ct.Name)
	}

	if models.NormalizeTag(ct.RequiredSpecialty) == "" {
		return &Candidates{Members: available, Available: len(available)}, nil
	}

	var matched []*models.TeamMember
	for _, m := range available {
		if m.HasSpecialty(ct.RequiredSpecialty) {
			matched = append(matched, m)
		}
	}

	if len(matched) == 0 || (len(matched) == 1 && len(available) > 1 && isSoleMostLoaded(matched[0], available)) {
		return &Candidates{Members: available, Available: len(available), EscapeValve: true}, nil
	}
	return &Candidates{Members: matched, Available: len(available)}, nil
}

func isSoleMostLoaded(m *models.TeamMember, available []*models.TeamMember) bool {
	for _, o := range available {
		if o.Name != m.Name && o.AccumulatedLoad >= m.AccumulatedLoad {
			return false
		}
	}
	return true
}

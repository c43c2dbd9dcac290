package assignment

import (
	"fmt"

	"case-distribution/internal/models"
)

// Select returns the candidate with the lowest accumulated load. Ties go to
// the lexicographically smallest name so the same roster always yields the
// same winner.
func Select(candidates []*models.TeamMember) (*models.TeamMember, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: empty candidate set", ErrNoEligibleMembers)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.AccumulatedLoad < best.AccumulatedLoad ||
			(c.AccumulatedLoad == best.AccumulatedLoad && c.Name < best.Name) {
			best = c
		}
	}
	return best, nil
}

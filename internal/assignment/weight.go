package assignment

import (
	"fmt"
	"strings"
)

// WeightPolicy prices a request. Both knobs come from configuration so the
// policy can change without touching the formula.
type WeightPolicy struct {
	// CorrelatedSurcharge is added per extra case of a correlated bundle.
	CorrelatedSurcharge float64
	// TriagerFactor multiplies the weight when the winner is the current triager.
	TriagerFactor float64
}

func DefaultWeightPolicy() WeightPolicy {
	return WeightPolicy{CorrelatedSurcharge: 0.10, TriagerFactor: 2.0}
}

// Base computes the weight of a request before the triager modifier.
//
// Independent cases cost base*count. A correlated bundle costs the full base
// for its first case and a flat surcharge for each additional one.
func (p WeightPolicy) Base(baseWeight float64, count int, correlated bool) (float64, error) {
	if baseWeight <= 0 {
		return 0, fmt.Errorf("%w: base weight must be positive, got %v", ErrInvalidWeightInput, baseWeight)
	}
	if count < 1 {
		return 0, fmt.Errorf("%w: at least one case id is required", ErrInvalidWeightInput)
	}
	if correlated {
		return baseWeight + p.CorrelatedSurcharge*float64(count-1), nil
	}
	return baseWeight * float64(count), nil
}

// ApplyTriager adjusts weight when assignee is on triage duty.
func (p WeightPolicy) ApplyTriager(weight float64, assignee, triager string) float64 {
	if triager == "" || assignee != triager {
		return weight
	}
	return weight * p.TriagerFactor
}

// validateCaseIDs rejects bundles with blank identifiers.
func validateCaseIDs(caseIDs []string) error {
	for i, id := range caseIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: case id %d is blank", ErrInvalidWeightInput, i+1)
		}
	}
	return nil
}

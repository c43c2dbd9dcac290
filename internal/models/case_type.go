package models

// CaseType is a catalog entry ("marker"): a category of case with its effort
// weight and an optional specialty requirement.
type CaseType struct {
	Name              string  `json:"name" yaml:"name"`
	BaseWeight        float64 `json:"base_weight" yaml:"base_weight"`
	RequiredSpecialty string  `json:"required_specialty,omitempty" yaml:"required_specialty,omitempty"`
}

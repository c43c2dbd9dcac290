package store

import (
	"context"
	"fmt"
	"os"

	"case-distribution/internal/models"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk roster and catalog, one section per sheet of the
// original workbook.
type Seed struct {
	Members   []*models.TeamMember `yaml:"members"`
	CaseTypes []*models.CaseType   `yaml:"case_types"`
}

// Seeder is the subset of the engine used to apply a seed.
type Seeder interface {
	UpsertMember(ctx context.Context, m *models.TeamMember) error
	UpsertCaseType(ctx context.Context, ct *models.CaseType) error
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	seen := make(map[string]bool, len(seed.Members))
	for i, m := range seed.Members {
		if m == nil || m.Name == "" {
			return nil, fmt.Errorf("seed member %d has no name", i+1)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("seed member %s listed twice", m.Name)
		}
		seen[m.Name] = true
	}
	for i, ct := range seed.CaseTypes {
		if ct == nil || ct.Name == "" {
			return nil, fmt.Errorf("seed case type %d has no name", i+1)
		}
	}
	return &seed, nil
}

// Apply upserts every member and case type through dst, which validates them.
func (s *Seed) Apply(ctx context.Context, dst Seeder) error {
	for _, ct := range s.CaseTypes {
		if err := dst.UpsertCaseType(ctx, ct); err != nil {
			return fmt.Errorf("case type %s: %w", ct.Name, err)
		}
	}
	for _, m := range s.Members {
		if err := dst.UpsertMember(ctx, m); err != nil {
			return fmt.Errorf("member %s: %w", m.Name, err)
		}
	}
	return nil
}

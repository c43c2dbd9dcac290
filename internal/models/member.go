package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SpecialtyAll marks a member who matches every required specialty.
const SpecialtyAll = "ALL"

type TeamMember struct {
	Name            string         `json:"name" yaml:"name"`
	Specialties     []string       `json:"specialties" yaml:"specialties"`
	Leave           *LeaveInterval `json:"leave,omitempty" yaml:"leave,omitempty"`
	AccumulatedLoad float64        `json:"accumulated_load" yaml:"-"`
}

// LeaveInterval is an inclusive range of calendar dates.
type LeaveInterval struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

type leaveJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarshalJSON writes both ends as calendar dates.
func (l LeaveInterval) MarshalJSON() ([]byte, error) {
	return json.Marshal(leaveJSON{Start: l.Start.Format(time.DateOnly), End: l.End.Format(time.DateOnly)})
}

// UnmarshalJSON accepts calendar dates ("2026-03-20") or RFC 3339 timestamps.
func (l *LeaveInterval) UnmarshalJSON(data []byte) error {
	var raw leaveJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := parseDay(raw.Start)
	if err != nil {
		return fmt.Errorf("leave start: %w", err)
	}
	end, err := parseDay(raw.End)
	if err != nil {
		return fmt.Errorf("leave end: %w", err)
	}
	l.Start, l.End = start, end
	return nil
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// HasSpecialty reports whether the member can take cases tagged with tag.
// An empty tag matches everyone.
func (m *TeamMember) HasSpecialty(tag string) bool {
	tag = NormalizeTag(tag)
	if tag == "" {
		return true
	}
	for _, s := range m.Specialties {
		s = NormalizeTag(s)
		if s == SpecialtyAll || s == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshots never share mutable state.
func (m *TeamMember) Clone() *TeamMember {
	c := *m
	c.Specialties = append([]string(nil), m.Specialties...)
	if m.Leave != nil {
		l := *m.Leave
		c.Leave = &l
	}
	return &c
}

func NormalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}

package main

import (
	"net/http"
	"slices"
	"strings"

	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"
)

type ActiveSearchSignals struct {
	MemberSearch string `json:"memberSearch"`
}

// MemberResult is one row of the member picker (triager, admin forms).
type MemberResult struct {
	Name        string   `json:"name"`
	Specialties []string `json:"specialties"`
	Load        float64  `json:"load"`
	Score       int      `json:"score"`
}

const maxSearchResults = 15

// Levenshtein calculates the Levenshtein distance between two strings.
func Levenshtein(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	n, m := len(r1), len(r2)
	if n > m {
		r1, r2 = r2, r1
		n, m = m, n
	}

	currentRow := make([]int, n+1)
	for i := 0; i <= n; i++ {
		currentRow[i] = i
	}

	for i := 1; i <= m; i++ {
		previousRow := currentRow
		currentRow = make([]int, n+1)
		currentRow[0] = i
		for j := 1; j <= n; j++ {
			add, del, change := previousRow[j]+1, currentRow[j-1]+1, previousRow[j-1]
			if r1[j-1] != r2[i-1] {
				change++
			}
			currentRow[j] = min(add, del, change)
		}
	}
	return currentRow[n]
}

// searchMembers scores roster members against query: substring hits score 0,
// near misses score their edit distance, everything else is dropped.
func (s *server) searchMembers(query string) []MemberResult {
	query = strings.ToLower(strings.TrimSpace(query))
	results := []MemberResult{}

	for _, m := range s.engine.Snapshot().Members {
		res := MemberResult{Name: m.Name, Specialties: m.Specialties, Load: m.AccumulatedLoad}
		if query == "" {
			results = append(results, res)
			continue
		}

		name := strings.ToLower(m.Name)
		score := 1000
		if strings.Contains(name, query) {
			score = 0
		} else if dist := Levenshtein(query, name); dist < 5 {
			score = dist
		}
		for _, sp := range m.Specialties {
			if strings.Contains(strings.ToLower(sp), query) {
				score = min(score, 1)
			}
		}

		if score < 1000 {
			res.Score = score
			results = append(results, res)
		}
	}

	slices.SortStableFunc(results, func(a, b MemberResult) int {
		return a.Score - b.Score
	})
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	return results
}

func (s *server) handleMemberSearch(w http.ResponseWriter, r *http.Request) {
	signals := &ActiveSearchSignals{}
	if err := datastar.ReadSignals(r, signals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results := s.searchMembers(signals.MemberSearch)

	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(map[string]any{"memberResults": results}); err != nil {
		s.logger.Warn("member search patch failed", zap.Error(err))
	}
}

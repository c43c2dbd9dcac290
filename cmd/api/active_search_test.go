package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func searchMembersSSE(t *testing.T, baseURL, query string) string {
	t.Helper()
	signalsJSON, _ := json.Marshal(map[string]string{"memberSearch": query})
	q := url.Values{}
	q.Set("datastar", string(signalsJSON))

	resp, err := http.Get(baseURL + "/api/members/search?" + q.Encode())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestHandleMemberSearch(t *testing.T) {
	ts := newTestServer(t)

	body := searchMembersSSE(t, ts.URL, "carla")
	if !strings.Contains(body, "datastar-patch-signals") {
		t.Errorf("expected a signals patch event. Body: %s", body)
	}
	if !strings.Contains(body, `"Carla"`) {
		t.Errorf("expected Carla in results. Body: %s", body)
	}
	if strings.Contains(body, `"Bruno"`) {
		t.Errorf("did not expect Bruno in results. Body: %s", body)
	}
}

func TestHandleMemberSearch_BySpecialty(t *testing.T) {
	ts := newTestServer(t)

	body := searchMembersSSE(t, ts.URL, "crim")
	if !strings.Contains(body, `"Diego"`) {
		t.Errorf("expected Diego for specialty match. Body: %s", body)
	}
}

func TestHandleMemberSearch_EmptyQueryListsEveryone(t *testing.T) {
	ts := newTestServer(t)

	body := searchMembersSSE(t, ts.URL, "")
	for _, name := range []string{"Ana", "Bruno", "Carla", "Diego"} {
		if !strings.Contains(body, `"`+name+`"`) {
			t.Errorf("expected %s in results", name)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"a", "a", 0},
		{"", "abc", 3},
		{"joão", "joao", 1},
	}

	for _, tt := range tests {
		if got := Levenshtein(tt.s1, tt.s2); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %v, want %v", tt.s1, tt.s2, got, tt.want)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"case-distribution/internal/assignment"
	"case-distribution/internal/metrics"
	"case-distribution/internal/models"
	"case-distribution/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Thursday 2026-03-12, 10:30 in Sao Paulo.
var testNow = time.Date(2026, 3, 12, 13, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	clock := func() time.Time { return testNow }

	engine := assignment.NewEngine(store.NewMemoryStore(),
		assignment.WithClock(clock),
		assignment.WithLocation(loc),
		assignment.WithMetrics(metrics.NewPrometheus(reg, "")),
	)
	if err := engine.Load(ctx); err != nil {
		t.Fatal(err)
	}
	for _, ct := range []*models.CaseType{
		{Name: "Embargos", BaseWeight: 1},
		{Name: "HC", BaseWeight: 2, RequiredSpecialty: "Criminal"},
	} {
		if err := engine.UpsertCaseType(ctx, ct); err != nil {
			t.Fatal(err)
		}
	}
	for _, m := range []*models.TeamMember{
		{Name: "Ana"},
		{Name: "Bruno", Leave: &models.LeaveInterval{Start: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)}},
		{Name: "Carla"},
		{Name: "Diego", Specialties: []string{"Criminal"}},
	} {
		if err := engine.UpsertMember(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	s := &server{
		engine:      engine,
		eligibility: assignment.Eligibility{BufferBusinessDays: 3},
		loc:         loc,
		now:         clock,
		logger:      zap.NewNop(),
		gatherer:    reg,
	}
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandleAssign(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/assign", `{"cases": "P3, P4, P5", "case_type": "Embargos", "is_correlated": true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Errorf("expected X-Request-ID header")
	}

	var a models.Assignment
	decode(t, resp, &a)
	if a.Assignee != "Ana" {
		t.Errorf("expected Ana, got %s", a.Assignee)
	}
	if a.Weight < 1.1999 || a.Weight > 1.2001 {
		t.Errorf("expected weight 1.2, got %v", a.Weight)
	}
	if len(a.CaseIDs) != 3 || a.CaseIDs[2] != "P5" {
		t.Errorf("unexpected case ids: %v", a.CaseIDs)
	}

	// Bruno is inside his pre-leave buffer, so Carla is next.
	resp = postJSON(t, ts.URL+"/api/assign", `{"case_ids": ["P6"], "case_type": "Embargos"}`)
	decode(t, resp, &a)
	if a.Assignee != "Carla" {
		t.Errorf("expected Carla, got %s", a.Assignee)
	}
}

func TestHandleAssign_Errors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"case_ids": `, http.StatusBadRequest},
		{"no cases", `{"case_type": "Embargos"}`, http.StatusBadRequest},
		{"unknown case type", `{"cases": "P1", "case_type": "Agravo"}`, http.StatusNotFound},
		{"unknown triager", `{"cases": "P1", "case_type": "Embargos", "triager": "Zeca"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/assign", tt.body)
			var body map[string]string
			decode(t, resp, &body)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d (%s)", tt.status, resp.StatusCode, body["error"])
			}
			if body["error"] == "" {
				t.Errorf("expected an error message")
			}
		})
	}
}

func TestHandleAssign_IdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	body := `{"cases": "P1", "case_type": "Embargos"}`

	var first, second models.Assignment
	decode(t, postJSON(t, ts.URL+"/api/assign", body, "Idempotency-Key", "form-1"), &first)
	decode(t, postJSON(t, ts.URL+"/api/assign", body, "Idempotency-Key", "form-1"), &second)

	if first.EntryID == "" || first.EntryID != second.EntryID {
		t.Errorf("expected the same entry, got %q and %q", first.EntryID, second.EntryID)
	}

	var entries []models.LedgerEntry
	resp, err := http.Get(ts.URL + "/api/ledger")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &entries)
	if len(entries) != 1 {
		t.Errorf("expected 1 ledger entry, got %d", len(entries))
	}
}

func TestHandleStatusAndReset(t *testing.T) {
	ts := newTestServer(t)
	postJSON(t, ts.URL+"/api/assign", `{"cases": "P1, P2", "case_type": "Embargos"}`).Body.Close()

	var status statusResponse
	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &status)

	if status.Date != "2026-03-12" {
		t.Errorf("expected date 2026-03-12, got %s", status.Date)
	}
	if status.TotalLoad != 2 || status.LedgerSize != 1 {
		t.Errorf("unexpected totals: load=%v ledger=%d", status.TotalLoad, status.LedgerSize)
	}
	for _, m := range status.Members {
		if want := m.Name != "Bruno"; m.Available != want {
			t.Errorf("%s: expected available=%v", m.Name, want)
		}
	}

	var reset models.LoadReset
	resp = postJSON(t, ts.URL+"/api/reset", "")
	decode(t, resp, &reset)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if reset.Period != "2026-03" || reset.AfterSeq != 1 {
		t.Errorf("unexpected reset: %+v", reset)
	}

	resp, err = http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &status)
	if status.TotalLoad != 0 || status.LedgerSize != 1 || status.LastReset == nil {
		t.Errorf("reset must zero loads and keep history, got %+v", status)
	}
}

func TestHandleLedger(t *testing.T) {
	ts := newTestServer(t)
	for i := 1; i <= 3; i++ {
		postJSON(t, ts.URL+"/api/assign", fmt.Sprintf(`{"cases": "P%d", "case_type": "Embargos", "triager": "Ana"}`, i)).Body.Close()
	}

	var entries []models.LedgerEntry
	resp, err := http.Get(ts.URL + "/api/ledger?since=2")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &entries)
	if len(entries) != 2 || entries[0].Seq != 2 {
		t.Errorf("expected entries 2..3, got %+v", entries)
	}

	resp, err = http.Get(ts.URL + "/api/ledger?since=zero")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/ledger.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("unexpected content type %s", ct)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "12/03/2026 10:30,P1,") || !strings.HasSuffix(lines[1], ",Normal,Ana") {
		t.Errorf("unexpected first row: %s", lines[1])
	}
}

func TestMemberAndCaseTypeAdmin(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/members", `{"name": "Eva", "specialties": ["Tax"]}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/members", `{"name": "Fabio", "leave": {"start": "2026-03-20T00:00:00Z", "end": "2026-03-10T00:00:00Z"}}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for inverted leave, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/members", `{"name": "Gil", "leave": {"start": "2026-03-23", "end": "2026-03-27"}}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for date-only leave, got %d", resp.StatusCode)
	}

	del := func(path string) int {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := del("/api/members/Eva"); code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", code)
	}
	if code := del("/api/members/Eva"); code != http.StatusNotFound {
		t.Errorf("expected 404 for second delete, got %d", code)
	}

	resp = postJSON(t, ts.URL+"/api/case-types", `{"name": "Agravo", "base_weight": 0}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for zero weight, got %d", resp.StatusCode)
	}
	resp = postJSON(t, ts.URL+"/api/case-types", `{"name": "Agravo", "base_weight": 1.5}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if code := del("/api/case-types/Agravo"); code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", code)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	ts := newTestServer(t)
	postJSON(t, ts.URL+"/api/assign", `{"cases": "P1", "case_type": "Embargos"}`).Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`case_distribution_engine_assignments_total{result="success"} 1`,
		`case_distribution_roster_member_load{member="Ana"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", assignment.ErrInvalidWeightInput), http.StatusBadRequest},
		{assignment.ErrInvalidInput, http.StatusBadRequest},
		{assignment.ErrUnknownCaseType, http.StatusNotFound},
		{assignment.ErrUnknownMember, http.StatusNotFound},
		{assignment.ErrNoEligibleMembers, http.StatusUnprocessableEntity},
		{assignment.ErrConflict, http.StatusConflict},
		{assignment.ErrBusy, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteEngineError_BusySetsRetryAfter(t *testing.T) {
	s := &server{logger: zap.NewNop()}
	rr := httptest.NewRecorder()
	s.writeEngineError(rr, fmt.Errorf("%w: critical section not acquired", assignment.ErrBusy))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Errorf("expected Retry-After header")
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"case-distribution/internal/assignment"
	"case-distribution/internal/middleware"
	"case-distribution/internal/models"
	"case-distribution/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// server exposes one engine over HTTP. It holds no state of its own.
type server struct {
	engine      *assignment.Engine
	eligibility assignment.Eligibility
	loc         *time.Location
	now         func() time.Time
	logger      *zap.Logger
	gatherer    prometheus.Gatherer
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/assign", s.handleAssign)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/ledger", s.handleLedger)
	mux.HandleFunc("GET /api/ledger.csv", s.handleLedgerCSV)

	mux.HandleFunc("POST /api/members", s.handleUpsertMember)
	mux.HandleFunc("DELETE /api/members/{name}", s.handleDeleteMember)
	mux.HandleFunc("GET /api/members/search", s.handleMemberSearch)
	mux.HandleFunc("POST /api/case-types", s.handleUpsertCaseType)
	mux.HandleFunc("DELETE /api/case-types/{name}", s.handleDeleteCaseType)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return middleware.RequestID(middleware.Logging(s.logger)(mux))
}

// assignRequest accepts case ids either as a list or as the comma separated
// text typed into the distribution form.
type assignRequest struct {
	models.CaseRequest
	Cases string `json:"cases,omitempty"`
}

func (s *server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.CaseIDs) == 0 && req.Cases != "" {
		req.CaseIDs = models.ParseCaseIDs(req.Cases)
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}

	result, err := s.engine.Assign(r.Context(), &req.CaseRequest)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Period string `json:"period"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.Period == "" {
		body.Period = s.now().In(s.loc).Format("2006-01")
	}

	reset, err := s.engine.ResetLoad(r.Context(), body.Period)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reset)
}

type memberStatus struct {
	*models.TeamMember
	Available bool `json:"available"`
}

type statusResponse struct {
	Version    uint64             `json:"version"`
	Date       string             `json:"date"`
	Members    []memberStatus     `json:"members"`
	CaseTypes  []*models.CaseType `json:"case_types"`
	LedgerSize int                `json:"ledger_size"`
	TotalLoad  float64            `json:"total_load"`
	LastReset  *models.LoadReset  `json:"last_reset,omitempty"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	today := models.Date(s.now(), s.loc)

	resp := statusResponse{
		Version:    snap.Version,
		Date:       today.Format(time.DateOnly),
		Members:    make([]memberStatus, 0, len(snap.Members)),
		CaseTypes:  snap.CaseTypes,
		LedgerSize: len(snap.Entries),
		TotalLoad:  snap.TotalLoad(),
		LastReset:  snap.LastReset,
	}
	for _, m := range snap.Members {
		resp.Members = append(resp.Members, memberStatus{TeamMember: m, Available: s.eligibility.IsAvailable(m, today)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries := s.engine.Snapshot().Entries
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := strconv.ParseInt(v, 10, 64)
		if err != nil || since < 1 {
			writeError(w, http.StatusBadRequest, "since must be a positive sequence number")
			return
		}
		if since > int64(len(entries)) {
			entries = nil
		} else {
			entries = entries[since-1:]
		}
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) handleLedgerCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="distribution.csv"`)
	if err := store.WriteLedgerCSV(w, s.engine.Snapshot().Entries, s.loc); err != nil {
		s.logger.Error("ledger export failed", zap.Error(err))
	}
}

func (s *server) handleUpsertMember(w http.ResponseWriter, r *http.Request) {
	var m models.TeamMember
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.engine.UpsertMember(r.Context(), &m); err != nil {
		s.writeEngineError(w, err)
		return
	}
	load, _ := s.engine.Snapshot().Load(m.Name)
	m.AccumulatedLoad = load
	writeJSON(w, http.StatusOK, m)
}

func (s *server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveMember(r.Context(), r.PathValue("name")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUpsertCaseType(w http.ResponseWriter, r *http.Request) {
	var ct models.CaseType
	if err := json.NewDecoder(r.Body).Decode(&ct); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.engine.UpsertCaseType(r.Context(), &ct); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

func (s *server) handleDeleteCaseType(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveCaseType(r.Context(), r.PathValue("name")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assignment.ErrInvalidInput), errors.Is(err, assignment.ErrInvalidWeightInput):
		return http.StatusBadRequest
	case errors.Is(err, assignment.ErrUnknownCaseType), errors.Is(err, assignment.ErrUnknownMember):
		return http.StatusNotFound
	case errors.Is(err, assignment.ErrNoEligibleMembers):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assignment.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, assignment.ErrBusy), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if status >= 500 {
		s.logger.Error("engine call failed", zap.Error(err))
		if status == http.StatusInternalServerError {
			writeError(w, status, "internal error")
			return
		}
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

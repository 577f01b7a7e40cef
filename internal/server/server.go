// Package server exposes the scrape pipeline and the authorization store
// over a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"valersync/internal/config"
	"valersync/internal/database"
	"valersync/internal/runner"
)

// scrapeRunner dispatches background scrape jobs and exposes their status.
type scrapeRunner interface {
	Start(username, password string) string
	Jobs() *runner.Jobs
}

// Server is the HTTP API for triggering scrapes and managing records.
type Server struct {
	db       *database.DB
	runner   scrapeRunner
	username string
	password string
	mux      *http.ServeMux
}

// New creates a new Server. Portal credentials come from the config; every
// scrape triggered through the API uses them.
func New(db *database.DB, r scrapeRunner, cfg *config.Config) *Server {
	s := &Server{
		db:       db,
		runner:   r,
		username: cfg.Portal.Username,
		password: cfg.Portal.Password,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/scrape", s.handleScrape)
	s.mux.HandleFunc("/scrape/status/", s.handleScrapeStatus)
	s.mux.HandleFunc("/authorizations", s.handleAuthorizations)
	s.mux.HandleFunc("/authorizations/", s.handleAuthorizationByID)
	s.mux.HandleFunc("/stats", s.handleStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := s.db.Ping() == nil

	var lastSync *string
	if run, err := s.db.LatestRun(); err == nil && run != nil && run.CompletedAt != nil {
		lastSync = run.CompletedAt
	}

	status := "healthy"
	dbState := "connected"
	if !dbHealthy {
		status = "degraded"
		dbState = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"database":       dbState,
		"last_sync_time": lastSync,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID := s.runner.Start(s.username, s.password)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"job_id":  jobID,
		"message": "Scrape job started",
	})
}

func (s *Server) handleScrapeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/scrape/status/")
	job, ok := s.runner.Jobs().Get(jobID)
	if jobID == "" || !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		runner.JobStatus
	}{Success: true, JobStatus: job})
}

func (s *Server) handleAuthorizations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := s.db.ListAuthorizations()
	if err != nil {
		log.Printf("error listing authorizations: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list authorizations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(records),
		"data":    records,
	})
}

func (s *Server) handleAuthorizationByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/authorizations/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}

	var patch database.AuthorizationPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if patch.PatientName == nil && patch.AuthNumber == nil && patch.Status == nil {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	if patch.AuthNumber != nil && strings.TrimSpace(*patch.AuthNumber) == "" {
		writeError(w, http.StatusBadRequest, "auth_number cannot be empty")
		return
	}

	record, err := s.db.UpdateAuthorization(id, patch)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "Record not found")
		return
	case errors.Is(err, database.ErrConflict):
		writeError(w, http.StatusConflict, "auth_number already in use")
		return
	case err != nil:
		log.Printf("error updating authorization %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update record")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    record,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	total, err := s.db.CountAuthorizations()
	if err != nil {
		log.Printf("error counting authorizations: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	stats := map[string]any{
		"total_records":           total,
		"last_sync_time":          nil,
		"last_sync_status":        nil,
		"last_sync_duration":      nil,
		"last_sync_records_saved": nil,
	}
	run, err := s.db.LatestRun()
	if err != nil {
		log.Printf("error fetching latest run: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	if run != nil {
		stats["last_sync_time"] = run.CompletedAt
		stats["last_sync_status"] = run.Status
		stats["last_sync_duration"] = run.DurationSeconds
		stats["last_sync_records_saved"] = run.RecordsSaved
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    stats,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, r *runner.Runner, cfg *config.Config, port int) error {
	srv := New(db, r, cfg)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}

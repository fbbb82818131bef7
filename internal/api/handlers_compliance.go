package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) runComplianceChecks(w http.ResponseWriter, r *http.Request) {
	findings := s.compliance.PerformComplianceChecks(r.Context())
	respondJSONWithMeta(w, http.StatusOK, findings, &apiMeta{Total: len(findings)})
}

func (s *Server) getComplianceFindings(w http.ResponseWriter, r *http.Request) {
	findings := s.compliance.Findings()
	respondJSONWithMeta(w, http.StatusOK, findings, &apiMeta{Total: len(findings)})
}

func (s *Server) generateComplianceReports(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.compliance.GenerateComplianceReports())
}

func (s *Server) getComplianceReports(w http.ResponseWriter, r *http.Request) {
	reports := s.compliance.LatestReports()
	if len(reports) == 0 {
		respondError(w, http.StatusNotFound, "not_found", "no compliance reports generated yet")
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

func (s *Server) runRiskAssessment(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.compliance.PerformRiskAssessment())
}

func (s *Server) getRiskAssessment(w http.ResponseWriter, r *http.Request) {
	assessment := s.compliance.LastAssessment()
	if assessment == nil {
		respondError(w, http.StatusNotFound, "not_found", "no risk assessment performed yet")
		return
	}
	respondJSON(w, http.StatusOK, assessment)
}

func (s *Server) getComplianceMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.compliance.GetComplianceMetrics())
}

type jobStatus struct {
	Name    string `json:"name"`
	NextRun string `json:"next_run,omitempty"`
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	names := s.scheduler.Jobs()
	jobs := make([]jobStatus, 0, len(names))
	for _, name := range names {
		status := jobStatus{Name: name}
		if next, ok := s.scheduler.NextRun(name); ok {
			status.NextRun = next.Format(time.RFC3339)
		}
		jobs = append(jobs, status)
	}
	respondJSONWithMeta(w, http.StatusOK, jobs, &apiMeta{Total: len(jobs)})
}

func (s *Server) getJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	history := s.scheduler.History(limit)
	respondJSONWithMeta(w, http.StatusOK, history, &apiMeta{Total: len(history), Limit: limit})
}

func (s *Server) runJobNow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.scheduler.RunNow(name); err != nil {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "triggered", "job": name})
}

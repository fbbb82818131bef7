package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/financeanalyst/securecore/internal/audit"
	"github.com/financeanalyst/securecore/internal/models"
	"github.com/financeanalyst/securecore/internal/obs"
)

func (s *Server) logSecurityEvent(w http.ResponseWriter, r *http.Request) {
	var event models.SecurityEvent
	if err := decodeJSON(r, &event); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if event.Type == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "event type is required")
		return
	}
	if event.IP == "" {
		event.IP = r.RemoteAddr
	}

	entry := s.audit.LogSecurityEvent(r.Context(), event)
	obs.RecordSecurityEvent(string(entry.Risk))
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) searchLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := audit.SearchQuery{
		Type:    models.EventType(q.Get("type")),
		ActorID: q.Get("actor_id"),
		Origin:  q.Get("origin"),
		Risk:    models.RiskLevel(q.Get("risk")),
		Text:    q.Get("q"),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "from must be RFC3339")
			return
		}
		query.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "to must be RFC3339")
			return
		}
		query.To = t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		query.Limit = limit
	}

	results := s.audit.SearchLogs(query)
	respondJSONWithMeta(w, http.StatusOK, results, &apiMeta{Total: len(results), Limit: query.Limit})
}

func (s *Server) getSecurityReport(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "window must be a positive duration")
			return
		}
		window = parsed
	}

	respondJSON(w, http.StatusOK, s.audit.GenerateSecurityReport(window))
}

func (s *Server) getAuditStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.audit.GetStats())
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	alerts := s.audit.Alerts(activeOnly)
	respondJSONWithMeta(w, http.StatusOK, alerts, &apiMeta{Total: len(alerts)})
}

func (s *Server) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "alertID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "alert ID must be a UUID")
		return
	}

	if !s.audit.ResolveAlert(id) {
		respondError(w, http.StatusNotFound, "not_found", "alert not found or already resolved")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) getPatternReport(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.audit.AnalyzePatterns())
}

func (s *Server) getBaselines(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.audit.CurrentBaselines())
}

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/financeanalyst/securecore/internal/reports"
)

func exportFormat(r *http.Request) reports.Format {
	format := reports.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = reports.FormatJSON
	}
	return format
}

func writeExport(w http.ResponseWriter, export *reports.Export) {
	w.Header().Set("Content-Type", export.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (s *Server) exportSecurityReport(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "window must be a positive duration")
			return
		}
		window = parsed
	}

	report := s.audit.GenerateSecurityReport(window)
	export, err := s.reports.ExportSecurityReport(report, exportFormat(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	writeExport(w, export)
}

func (s *Server) exportComplianceReports(w http.ResponseWriter, r *http.Request) {
	latest := s.compliance.LatestReports()
	if len(latest) == 0 {
		latest = s.compliance.GenerateComplianceReports()
	}

	export, err := s.reports.ExportComplianceReports(latest, s.compliance.LastAssessment(), exportFormat(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	writeExport(w, export)
}

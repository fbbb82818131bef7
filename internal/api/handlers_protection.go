package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/financeanalyst/securecore/internal/models"
	"github.com/financeanalyst/securecore/internal/obs"
	"github.com/financeanalyst/securecore/internal/protection"
)

func (s *Server) classifyData(w http.ResponseWriter, r *http.Request) {
	var record map[string]any
	if err := decodeJSON(r, &record); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	respondJSON(w, http.StatusOK, s.protection.Classify(record))
}

func (s *Server) encryptData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload        []byte                `json:"payload"`
		Classification models.Classification `json:"classification"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "payload is required")
		return
	}

	envelope, err := s.protection.Encrypt(req.Payload, req.Classification)
	if err != nil {
		respondError(w, http.StatusBadRequest, "encrypt_failed", err.Error())
		return
	}
	obs.RecordCryptoOp("encrypt")
	respondJSON(w, http.StatusOK, envelope)
}

func (s *Server) decryptData(w http.ResponseWriter, r *http.Request) {
	var envelope protection.Envelope
	if err := decodeJSON(r, &envelope); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	payload, err := s.protection.Decrypt(&envelope)
	if err != nil {
		respondError(w, http.StatusBadRequest, "decrypt_failed", "ciphertext could not be decrypted")
		return
	}
	obs.RecordCryptoOp("decrypt")
	respondJSON(w, http.StatusOK, map[string][]byte{"payload": payload})
}

func (s *Server) maskData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Record map[string]any `json:"record"`
		Fields []string       `json:"fields"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	respondJSON(w, http.StatusOK, s.protection.Mask(req.Record, req.Fields))
}

func (s *Server) anonymizeData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Record  map[string]any              `json:"record"`
		Options protection.AnonymizeOptions `json:"options"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	respondJSON(w, http.StatusOK, s.protection.Anonymize(req.Record, req.Options))
}

func (s *Server) getProtectionStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.protection.GetStats())
}

func (s *Server) getRetentionReport(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.protection.CheckRetention())
}

func (s *Server) recordAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resource  string       `json:"resource"`
		Action    string       `json:"action"`
		Sensitive bool         `json:"sensitive"`
		Metadata  models.JSONB `json:"metadata,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Resource == "" || req.Action == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "resource and action are required")
		return
	}

	claims := claimsFrom(r.Context())
	s.protection.RecordAccess(claims.Email, req.Resource, req.Action, r.RemoteAddr, req.Sensitive, req.Metadata)
	respondJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (s *Server) getAccessHistory(w http.ResponseWriter, r *http.Request) {
	actor := chi.URLParam(r, "actor")
	history := s.protection.AccessHistory(actor)
	respondJSONWithMeta(w, http.StatusOK, history, &apiMeta{Total: len(history)})
}

func (s *Server) upsertSubject(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := decodeJSON(r, &data); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	s.protection.UpsertSubject(chi.URLParam(r, "subjectID"), data)
	respondJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (s *Server) rectifySubject(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if err := decodeJSON(r, &updates); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	if err := s.protection.RightOfRectification(chi.URLParam(r, "subjectID"), updates); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rectified"})
}

func (s *Server) eraseSubject(w http.ResponseWriter, r *http.Request) {
	pending, err := s.protection.RightOfErasure(chi.URLParam(r, "subjectID"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, pending)
}

func (s *Server) recordConsent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Purpose string `json:"purpose"`
		Granted bool   `json:"granted"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Purpose == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "purpose is required")
		return
	}

	if err := s.protection.RecordConsent(chi.URLParam(r, "subjectID"), req.Purpose, req.Granted); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) subjectAccessExport(w http.ResponseWriter, r *http.Request) {
	export := s.protection.RightOfAccess(chi.URLParam(r, "subjectID"))
	if export == nil {
		respondError(w, http.StatusNotFound, "not_found", "data subject not found")
		return
	}
	respondJSON(w, http.StatusOK, export)
}

func (s *Server) restrictSubject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fields []string `json:"fields"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	if err := s.protection.RightOfRestriction(chi.URLParam(r, "subjectID"), req.Fields); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "restricted"})
}

func (s *Server) subjectPortability(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.protection.RightOfPortability(chi.URLParam(r, "subjectID"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}

func (s *Server) subjectObjection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Purpose string `json:"purpose"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	if err := s.protection.RightOfObjection(chi.URLParam(r, "subjectID"), req.Purpose); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "objection recorded"})
}

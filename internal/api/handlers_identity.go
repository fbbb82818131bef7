package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/financeanalyst/securecore/internal/identity"
	"github.com/financeanalyst/securecore/internal/obs"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var reg identity.Registration
	if err := decodeJSON(r, &reg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	user, err := s.identity.Register(r.Context(), reg)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds identity.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	creds.IP = r.RemoteAddr
	creds.UserAgent = r.UserAgent()

	result, err := s.identity.Login(r.Context(), creds)
	if err != nil {
		var locked *identity.LockedError
		if errors.As(err, &locked) {
			obs.RecordLoginAttempt("locked")
		} else {
			obs.RecordLoginAttempt("failed")
		}
		s.respondServiceError(w, err)
		return
	}

	if result.MFARequired {
		obs.RecordLoginAttempt("mfa_required")
	} else {
		obs.RecordLoginAttempt("success")
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	tokens, err := s.identity.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tokens)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.Logout(r.Context(), bearerToken(r)); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// validateToken returns the claims of the presented token. The auth
// middleware has already verified it by the time this runs.
func (s *Server) validateToken(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, claimsFrom(r.Context()))
}

func (s *Server) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	user, err := s.identity.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	claims := claimsFrom(r.Context())
	if err := s.identity.ChangePassword(r.Context(), claims.UserID, req.OldPassword, req.NewPassword); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

func (s *Server) enableMFA(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	secret, err := s.identity.EnableMFA(r.Context(), claims.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

func (s *Server) disableMFA(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	if err := s.identity.DisableMFA(r.Context(), claims.UserID); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "mfa disabled"})
}

func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	permission := chi.URLParam(r, "permission")

	allowed, err := s.identity.CheckPermission(r.Context(), claims.UserID, permission)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"permission": permission,
		"allowed":    allowed,
	})
}

func (s *Server) getIdentityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.identity.GetStats(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

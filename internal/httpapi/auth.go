package httpapi

import (
	"errors"
	"net/http"

	"github.com/ashahealth/mediwagon/internal/conversation"
	"github.com/ashahealth/mediwagon/internal/gateway"
	"github.com/ashahealth/mediwagon/internal/identity"
	"github.com/ashahealth/mediwagon/internal/observability"
	"github.com/ashahealth/mediwagon/internal/policy"
)

type registerRequest struct {
	gateway.Profile
	ConfirmPassword string `json:"confirm_password"`
}

type authSessionResponse struct {
	Authenticated bool              `json:"authenticated"`
	User          *gateway.UserInfo `json:"user,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := policy.ValidateRegistration(policy.Registration{Profile: req.Profile, ConfirmPassword: req.ConfirmPassword}); err != nil {
		respondValidation(w, err)
		return
	}

	res, err := s.backend.Register(r.Context(), req.Profile)
	if err != nil {
		respondGatewayError(w, r, "registration_failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds gateway.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := policy.ValidateCredentials(creds); err != nil {
		respondValidation(w, err)
		return
	}

	res, err := s.backend.Login(r.Context(), creds)
	if err != nil {
		respondGatewayError(w, r, "login_failed", err)
		return
	}
	current, err := s.identity.Login(r.Context(), res)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("persist identity failed", "error", err)
		respondError(w, http.StatusInternalServerError, "identity_unavailable", "Could not save your sign-in. Please try again.")
		return
	}
	respondJSON(w, http.StatusOK, authSessionResponse{Authenticated: true, User: current.User})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if current := s.identity.Current(); current.User != nil {
		for range s.sessions.EndForUser(current.User.ID) {
			s.metrics.ObserveSessionEvent("ended_on_logout")
		}
		s.recordActiveSessions()
	}
	if err := s.identity.Logout(r.Context()); err != nil {
		observability.LoggerFromContext(r.Context()).Error("clear identity failed", "error", err)
		respondError(w, http.StatusInternalServerError, "identity_unavailable", "Could not sign out. Please try again.")
		return
	}
	respondJSON(w, http.StatusOK, authSessionResponse{Authenticated: false})
}

func (s *Server) handleAuthSession(w http.ResponseWriter, _ *http.Request) {
	current := s.identity.Current()
	respondJSON(w, http.StatusOK, authSessionResponse{Authenticated: current.Authenticated(), User: current.User})
}

// requireIdentity answers 401 and returns false when nobody is signed in.
func (s *Server) requireIdentity(w http.ResponseWriter) (identity.Session, bool) {
	current := s.identity.Current()
	if !current.Authenticated() {
		respondError(w, http.StatusUnauthorized, "not_authenticated", "Please sign in first.")
		return identity.Session{}, false
	}
	return current, true
}

func respondValidation(w http.ResponseWriter, err error) {
	var verr *policy.ValidationError
	if !errors.As(err, &verr) {
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Error:  err.Error(),
		Code:   "validation_failed",
		Fields: verr.Fields,
	})
}

// respondGatewayError relays the backend's own 4xx verdicts and reports
// everything else as a bad gateway. The message is the one the backend gave.
func respondGatewayError(w http.ResponseWriter, r *http.Request, code string, err error) {
	status := http.StatusBadGateway
	if gwErr, ok := gateway.AsError(err); ok {
		if gwErr.Kind == gateway.KindBackend && gwErr.Status >= 400 && gwErr.Status < 500 {
			status = gwErr.Status
		}
		if gwErr.Kind == gateway.KindTransport && r.Context().Err() != nil {
			return
		}
	}
	observability.LoggerFromContext(r.Context()).Warn("backend call failed", "code", code, "status", status, "error", err)
	respondError(w, status, code, err.Error())
}

func quickSymptoms() []string {
	return append([]string(nil), conversation.QuickSymptoms...)
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/middleware"
	"github.com/gorilla/mux"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type federatedLoginRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
}

// sessionResponse carries everything except the refresh token, which travels only in its cookie.
type sessionResponse struct {
	SessionID            string    `json:"session_id"`
	PrincipalID          string    `json:"principal_id"`
	Roles                []string  `json:"roles,omitempty"`
	AccessToken          string    `json:"access_token"`
	AccessExpiresAt      time.Time `json:"access_expires_at"`
	AntiForgeryToken     string    `json:"csrf_token"`
	AntiForgeryExpiresAt time.Time `json:"csrf_expires_at"`
}

type antiForgeryResponse struct {
	Token     string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"csrf_expires_at"`
}

type sessionView struct {
	SessionID        string    `json:"session_id"`
	CreatedAt        time.Time `json:"created_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Current          bool      `json:"current"`
}

type meResponse struct {
	PrincipalID string    `json:"principal_id"`
	SessionID   string    `json:"session_id"`
	Roles       []string  `json:"roles"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) issued(w http.ResponseWriter, r *http.Request, b *goRenew.TokenBundle) {
	s.setSessionCookies(w, r, b)
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:            b.SessionID,
		PrincipalID:          b.PrincipalID,
		Roles:                b.Roles,
		AccessToken:          b.AccessToken,
		AccessExpiresAt:      b.AccessExpiresAt,
		AntiForgeryToken:     b.AntiForgeryToken,
		AntiForgeryExpiresAt: b.AntiForgeryExpiresAt,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "email and password are required")
		return
	}

	b, err := s.auth.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.issued(w, r, b)
}

func (s *Server) handleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	var req federatedLoginRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Provider == "" || req.IDToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "provider and id_token are required")
		return
	}

	b, err := s.auth.LoginWithFederated(r.Context(), req.Provider, req.IDToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.issued(w, r, b)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b, err := s.auth.RefreshWithAntiForgery(r.Context(), s.refreshToken(r), r.Header.Get(s.opts.AntiForgeryHeader))
	if err != nil {
		// A refresh token that can no longer be used is worthless to the browser.
		d := decide(err)
		if d.Status == http.StatusUnauthorized {
			s.clearSessionCookies(w, r)
		}
		s.fail(w, r, err)
		return
	}
	s.issued(w, r, b)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := s.auth.LogoutWithAntiForgery(r.Context(), s.refreshToken(r), r.Header.Get(s.opts.AntiForgeryHeader))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearSessionCookies(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnonymousCSRF(w http.ResponseWriter, r *http.Request) {
	token, exp, err := s.auth.IssueAnonymousAntiForgery(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setAntiForgeryCookie(w, r, token, exp)
	writeJSON(w, http.StatusOK, antiForgeryResponse{Token: token, ExpiresAt: exp})
}

func (s *Server) handleSessionCSRF(w http.ResponseWriter, r *http.Request) {
	res, _ := middleware.AuthResultFromContext(r.Context())
	token, exp, err := s.auth.IssueAntiForgery(r.Context(), res.SessionID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setAntiForgeryCookie(w, r, token, exp)
	writeJSON(w, http.StatusOK, antiForgeryResponse{Token: token, ExpiresAt: exp})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	res, _ := middleware.AuthResultFromContext(r.Context())
	infos, err := s.auth.ListSessions(r.Context(), res.PrincipalID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]sessionView, 0, len(infos))
	for _, info := range infos {
		out = append(out, sessionView{
			SessionID:        info.SessionID,
			CreatedAt:        info.CreatedAt,
			RefreshExpiresAt: info.RefreshExpiresAt,
			Current:          info.SessionID == res.SessionID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// handleRevokeSession signs out one of the caller's other devices.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	res, _ := middleware.AuthResultFromContext(r.Context())
	id := mux.Vars(r)["id"]

	info, err := s.auth.GetSession(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// Someone else's session is reported exactly like a missing one.
	if info.PrincipalID != res.PrincipalID {
		s.fail(w, r, goRenew.ErrSessionNotFound)
		return
	}
	if err := s.auth.Logout(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	res, _ := middleware.AuthResultFromContext(r.Context())
	roles := res.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, meResponse{
		PrincipalID: res.PrincipalID,
		SessionID:   res.SessionID,
		Roles:       roles,
		ExpiresAt:   res.ExpiresAt,
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_ = json.NewEncoder(w).Encode(s.auth.JWKS())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.auth.Health(r.Context())
	status := http.StatusOK
	state := "ok"
	if !h.StoreAvailable {
		status = http.StatusServiceUnavailable
		state = "unavailable"
	}
	writeJSON(w, status, map[string]any{
		"status":           state,
		"store_latency_ms": h.StoreLatency.Milliseconds(),
	})
}

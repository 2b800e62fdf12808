package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/middleware"
)

// decide extends middleware.Classify with the statuses only the auth endpoints produce.
func decide(err error) middleware.Decision {
	d := middleware.Classify(err)
	switch {
	case errors.Is(err, goRenew.ErrAlreadyConsumed):
		d.Status = http.StatusConflict
	case errors.Is(err, goRenew.ErrLoginRateLimited), errors.Is(err, goRenew.ErrRefreshRateLimited):
		d.Status = http.StatusTooManyRequests
	case errors.Is(err, goRenew.ErrInvalidArgument):
		d.Status = http.StatusBadRequest
	case errors.Is(err, goRenew.ErrSessionNotFound), errors.Is(err, goRenew.ErrFederationDisabled):
		d.Status = http.StatusNotFound
	case errors.Is(err, goRenew.ErrEngineNotReady):
		d.Status = http.StatusServiceUnavailable
	}
	return d
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	d := decide(err)
	if d.Status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	if d.Renew {
		w.Header().Set(middleware.RenewalHeader, middleware.RenewalValue)
	}
	middleware.WriteError(w, d)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error_code": code, "error_message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

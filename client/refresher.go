package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/goRenew/middleware"
)

// HTTPRefresher calls a refresh endpoint that keeps the refresh token in a cookie. Client
// must carry a cookie jar holding that cookie.
type HTTPRefresher struct {
	Client *http.Client
	URL    string
	// AntiForgeryHeader defaults to X-CSRF-Token.
	AntiForgeryHeader string
}

type bundleBody struct {
	AccessToken          string    `json:"access_token"`
	AccessExpiresAt      time.Time `json:"access_expires_at"`
	AntiForgeryToken     string    `json:"csrf_token"`
	AntiForgeryExpiresAt time.Time `json:"csrf_expires_at"`
}

type errorBody struct {
	Code string `json:"error_code"`
}

// Refresh satisfies RefreshFunc.
func (h *HTTPRefresher) Refresh(ctx context.Context, current Tokens) (Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, http.NoBody)
	if err != nil {
		return Tokens{}, err
	}
	header := h.AntiForgeryHeader
	if header == "" {
		header = middleware.DefaultAntiForgeryHeader
	}
	req.Header.Set(header, current.AntiForgeryToken)
	req.Header.Set("Accept", "application/json")

	hc := h.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb)
		return Tokens{}, &RefreshError{Status: resp.StatusCode, Code: eb.Code}
	}

	var b bundleBody
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return Tokens{}, fmt.Errorf("decode refresh response: %w", err)
	}
	return Tokens{
		AccessToken:          b.AccessToken,
		AccessExpiresAt:      b.AccessExpiresAt,
		AntiForgeryToken:     b.AntiForgeryToken,
		AntiForgeryExpiresAt: b.AntiForgeryExpiresAt,
	}, nil
}

// TokensFromLogin decodes the JSON body of a login response.
func TokensFromLogin(r io.Reader) (Tokens, error) {
	var b bundleBody
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:          b.AccessToken,
		AccessExpiresAt:      b.AccessExpiresAt,
		AntiForgeryToken:     b.AntiForgeryToken,
		AntiForgeryExpiresAt: b.AntiForgeryExpiresAt,
	}, nil
}

package client

import (
	"bytes"
	"io"
	"net/http"

	"github.com/MrEthical07/goRenew/middleware"
)

// Transport is an http.RoundTripper that authenticates requests from a Renewer. A response
// carrying the renewal marker triggers one renewal and exactly one replay of the request.
type Transport struct {
	Base    http.RoundTripper
	Renewer *Renewer
	// AntiForgeryHeader is sent on unsafe methods. Defaults to X-CSRF-Token.
	AntiForgeryHeader string
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) header() string {
	if t.AntiForgeryHeader != "" {
		return t.AntiForgeryHeader
	}
	return middleware.DefaultAntiForgeryHeader
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	tokens, gen, err := t.Renewer.Current(ctx)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	req = req.Clone(ctx)
	if err := ensureReplayable(req); err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(t.authorize(req, tokens))
	if err != nil || !renewalRequested(resp) {
		return resp, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	tokens, _, err = t.Renewer.Renew(ctx, gen)
	if err != nil {
		return nil, err
	}

	replay := t.authorize(req, tokens)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		replay.Body = body
	}
	return t.base().RoundTrip(replay)
}

func (t *Transport) authorize(req *http.Request, tokens Tokens) *http.Request {
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	if tokens.AntiForgeryToken != "" && !isSafeMethod(req.Method) {
		out.Header.Set(t.header(), tokens.AntiForgeryToken)
	}
	return out
}

func renewalRequested(resp *http.Response) bool {
	return resp.StatusCode == http.StatusUnauthorized &&
		resp.Header.Get(middleware.RenewalHeader) == middleware.RenewalValue
}

// ensureReplayable buffers a body that cannot be re-read so that the replay can send it again.
func ensureReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

package httpapi

import (
	"net/http"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
)

func (s *Server) setSessionCookies(w http.ResponseWriter, r *http.Request, b *goRenew.TokenBundle) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.AccessCookie,
		Value:    b.AccessToken,
		Path:     "/",
		Expires:  b.AccessExpiresAt,
		HttpOnly: true,
		Secure:   s.secure(r),
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.RefreshCookie,
		Value:    b.RefreshToken,
		Path:     s.opts.CookiePath,
		Expires:  b.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   s.secure(r),
		SameSite: http.SameSiteStrictMode,
	})
	s.setAntiForgeryCookie(w, r, b.AntiForgeryToken, b.AntiForgeryExpiresAt)
}

// The anti-forgery cookie is readable by scripts; the server never trusts it, only the header.
func (s *Server) setAntiForgeryCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.AntiForgeryCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		Secure:   s.secure(r),
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearSessionCookies(w http.ResponseWriter, r *http.Request) {
	for _, c := range []struct {
		name, path string
		httpOnly   bool
	}{
		{s.opts.AccessCookie, "/", true},
		{s.opts.RefreshCookie, s.opts.CookiePath, true},
		{s.opts.AntiForgeryCookie, "/", false},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: c.httpOnly,
			Secure:   s.secure(r),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (s *Server) secure(r *http.Request) bool {
	return s.opts.SecureCookies || r.TLS != nil
}

func (s *Server) refreshToken(r *http.Request) string {
	c, err := r.Cookie(s.opts.RefreshCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/jwt"
	promexport "github.com/MrEthical07/goRenew/metrics/export/prometheus"
	"github.com/MrEthical07/goRenew/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthService is the engine surface the HTTP API calls. [goRenew.Engine] implements it.
type AuthService interface {
	middleware.Validator
	middleware.AntiForgeryValidator

	LoginWithPassword(ctx context.Context, email, password string) (*goRenew.TokenBundle, error)
	LoginWithFederated(ctx context.Context, provider, idToken string) (*goRenew.TokenBundle, error)
	RefreshWithAntiForgery(ctx context.Context, refreshToken, antiForgeryToken string) (*goRenew.TokenBundle, error)
	LogoutWithAntiForgery(ctx context.Context, refreshToken, antiForgeryToken string) error
	Logout(ctx context.Context, sessionID string) error
	IssueAnonymousAntiForgery(ctx context.Context) (string, time.Time, error)
	IssueAntiForgery(ctx context.Context, sessionID string) (string, time.Time, error)
	ListSessions(ctx context.Context, principalID string) ([]goRenew.SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*goRenew.SessionInfo, error)
	Health(ctx context.Context) goRenew.HealthStatus
	JWKS() jwt.JWKSet
	MetricsSnapshot() goRenew.MetricsSnapshot
	AuditDropped() uint64
}

// Options configures the HTTP API.
type Options struct {
	Logger *slog.Logger

	// AccessCookie holds the access token for browser clients. It is HttpOnly and sent to
	// every path; the Authorization header takes precedence when both are present.
	AccessCookie string
	// RefreshCookie holds the refresh token. It is HttpOnly and scoped to CookiePath.
	RefreshCookie string
	// AntiForgeryCookie mirrors the anti-forgery token for scripts that reload the page.
	AntiForgeryCookie string
	AntiForgeryHeader string
	CookiePath        string
	SecureCookies     bool

	// LoginRatePerMinute bounds requests per client IP to the /auth routes. Zero disables it.
	LoginRatePerMinute int
	// TrustProxyHeaders takes the client IP from X-Forwarded-For.
	TrustProxyHeaders bool
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.AccessCookie == "" {
		o.AccessCookie = "access_token"
	}
	if o.RefreshCookie == "" {
		o.RefreshCookie = "refresh_token"
	}
	if o.AntiForgeryCookie == "" {
		o.AntiForgeryCookie = "csrf_token"
	}
	if o.AntiForgeryHeader == "" {
		o.AntiForgeryHeader = middleware.DefaultAntiForgeryHeader
	}
	if o.CookiePath == "" {
		o.CookiePath = "/auth"
	}
	return o
}

// Server is the HTTP face of the engine: login, silent renewal, logout, session listing,
// the JWKS document and Prometheus metrics.
type Server struct {
	auth     AuthService
	opts     Options
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *httpMetrics
	limiter  *ipLimiter
	router   *mux.Router
}

// NewServer builds the router. Engine metrics and HTTP request metrics are registered in a
// registry private to the server.
func NewServer(auth AuthService, opts Options) *Server {
	opts = opts.withDefaults()

	s := &Server{
		auth:     auth,
		opts:     opts,
		log:      opts.Logger.With("component", "httpapi"),
		registry: prometheus.NewRegistry(),
	}
	s.metrics = newHTTPMetrics(s.registry)
	s.registry.MustRegister(promexport.NewPrometheusExporterFromSource(auth))
	if opts.LoginRatePerMinute > 0 {
		s.limiter = newIPLimiter(opts.LoginRatePerMinute, time.Now)
	}
	s.router = s.routes()
	return s
}

// Registry exposes the server's metric registry so that callers can add collectors.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.accessLog, s.instrument, s.clientContext)

	guard := middleware.Guard(s.auth, middleware.WithAccessCookie(s.opts.AccessCookie))
	csrf := middleware.RequireAntiForgery(s.auth, s.opts.AntiForgeryHeader)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/.well-known/jwks.json", s.handleJWKS).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	auth := r.PathPrefix("/auth").Subrouter()
	if s.limiter != nil {
		auth.Use(s.rateLimit)
	}
	auth.HandleFunc("/csrf", s.handleAnonymousCSRF).Methods(http.MethodGet)
	auth.Handle("/csrf/session", guard(http.HandlerFunc(s.handleSessionCSRF))).Methods(http.MethodGet)
	auth.Handle("/login", csrf(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	auth.Handle("/login/federated", csrf(http.HandlerFunc(s.handleFederatedLogin))).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	auth.Handle("/sessions", guard(http.HandlerFunc(s.handleListSessions))).Methods(http.MethodGet)
	auth.Handle("/sessions/{id}", guard(csrf(http.HandlerFunc(s.handleRevokeSession)))).Methods(http.MethodDelete)

	r.Handle("/api/me", guard(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

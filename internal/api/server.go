package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isearch-project/musebag/internal/mqf"
	"github.com/isearch-project/musebag/internal/profile"
	"github.com/isearch-project/musebag/internal/query"
	"github.com/isearch-project/musebag/internal/session"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Sessions   *session.Manager // Required
	Profiles   *profile.Client  // Required
	Formulator *mqf.Client      // Required
	Composer   *query.Composer  // Required
	Pool       *pgxpool.Pool    // Optional: nil disables backend ping in /ready
	TmpDir     string           // Required: staging directory for uploaded media
	IsDev      bool             // Disables HSTS (plain-HTTP development)
	TrustProxy bool             // Trust X-Real-IP/X-Forwarded-For headers
	RateRPS    float64          // Rate limiter refill per IP (0 = default 10/s)
	RateBurst  int              // Rate limiter burst per IP (0 = default 30)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("profile client is required")
	}
	if cfg.Formulator == nil {
		return nil, errors.New("query formulator client is required")
	}
	if cfg.Composer == nil {
		return nil, errors.New("query composer is required")
	}
	if cfg.TmpDir == "" {
		return nil, errors.New("tmp directory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &authHandler{
		sessions: cfg.Sessions,
		profiles: cfg.Profiles,
		logger:   logger,
	}

	ph := &profileHandler{
		sessions: cfg.Sessions,
		profiles: cfg.Profiles,
		logger:   logger,
	}

	qh := &queryHandler{
		sessions:   cfg.Sessions,
		composer:   cfg.Composer,
		formulator: cfg.Formulator,
		tmpDir:     cfg.TmpDir,
		logger:     logger,
	}

	mux := http.NewServeMux()

	// Identity
	mux.HandleFunc("POST /api/v1/login", ah.login)
	mux.HandleFunc("POST /api/v1/logout", ah.logout)

	// Profile
	mux.HandleFunc("GET /api/v1/profile/{attrib}", ph.getAttribute)
	mux.HandleFunc("POST /api/v1/profile/{attrib}", ph.setAttribute)
	mux.HandleFunc("POST /api/v1/history", ph.updateHistory)

	// Query pipeline
	mux.HandleFunc("POST /api/v1/query", qh.submit)
	mux.HandleFunc("POST /api/v1/query/items", qh.submitItems)

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 30
	}
	rl := newRateLimiter(rps, burst)

	// Build middleware stack (outermost first):
	//   Recovery → Logging → RateLimit → Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	inner := handler
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		inner.ServeHTTP(w, r)
	})

	// Top-level mux separates health probes from the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

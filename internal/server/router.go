// Package server assembles the HTTP router and middleware chain.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/athena-ops/athena-stack/internal/auth"
	"github.com/athena-ops/athena-stack/internal/handlers"
	"github.com/athena-ops/athena-stack/internal/middleware"
	"github.com/athena-ops/athena-stack/internal/ratelimit"
)

// Options configures the optional middleware around the API routes.
type Options struct {
	RateLimiter ratelimit.RateLimiter
	Tokens      *auth.TokenManager
	AuthEnabled bool
	CORS        middleware.CORSConfig
}

// NewRouter constructs the full handler chain. Rate limiting and auth wrap
// only the /api/v1 subtree; /healthz and /metrics stay open.
func NewRouter(h *handlers.Handler, opts Options) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/v1/analyze", h.Analyze)
	api.HandleFunc("/api/v1/analyze/combined", h.AnalyzeCombined)
	api.HandleFunc("/api/v1/recommendations", h.Recommendations)
	api.HandleFunc("/api/v1/intents", h.Intents)
	api.HandleFunc("/api/v1/history/recent", h.RecentAnalyses)
	api.HandleFunc("/api/v1/history/trends", h.RiskTrends)
	api.HandleFunc("/api/v1/history/", h.AnalysisByID)

	var apiHandler http.Handler = api
	if opts.RateLimiter != nil {
		apiHandler = ratelimit.Middleware(opts.RateLimiter)(apiHandler)
	}
	if opts.Tokens != nil {
		apiHandler = auth.Middleware(opts.Tokens, opts.AuthEnabled)(apiHandler)
	}

	root := http.NewServeMux()
	root.Handle("/api/v1/", apiHandler)
	root.HandleFunc("/healthz", h.Health)
	root.Handle("/metrics", promhttp.Handler())

	chain := middleware.CORS(opts.CORS)(root)
	return middleware.RequestID(chain)
}

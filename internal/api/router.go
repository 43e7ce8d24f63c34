package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/reviewexec/internal/api/middleware"
	"github.com/kiranshivaraju/reviewexec/internal/api/response"
)

// ExecuteScope is the API key scope required to start review executions.
const ExecuteScope = "execute"

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler       http.HandlerFunc
	MetricsHandler      http.Handler
	ExecuteHandler      http.HandlerFunc
	GetExecutionHandler http.HandlerFunc
	ListAnswersHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/reviews/{reviewInstanceID}/execution", orNotImplemented(deps.GetExecutionHandler))
		r.Get("/api/v1/reviews/{reviewInstanceID}/answers", orNotImplemented(deps.ListAnswersHandler))

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(ExecuteScope))

			r.Post("/api/v1/reviews/{reviewInstanceID}/execute", orNotImplemented(deps.ExecuteHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}

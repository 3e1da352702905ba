package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/api/auth"
	"github.com/seekd/seekd/pkg/api/handlers"
	apimiddleware "github.com/seekd/seekd/pkg/api/middleware"
	"github.com/seekd/seekd/pkg/metrics"
	"github.com/seekd/seekd/pkg/state"
)

// Services collects the daemon components the operator API surfaces.
type Services struct {
	Session   handlers.SessionController
	Transfers handlers.TransferEngine
	Shares    handlers.SharesIndex
	Agents    handlers.AgentRegistry
	Searches  handlers.SearchManager
	States    *state.Store
	Version   string

	// AgentRoutes mounts the token-signed agent data endpoints. These
	// authenticate with one-shot tokens, not operator JWTs.
	AgentRoutes func(chi.Router)
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET /healthz - Liveness probe
//   - GET /readyz - Readiness probe
//   - GET /metrics - Prometheus metrics
//   - POST /agents/shares/{token} - Agent catalog upload (token-signed)
//   - POST /agents/files/{token} - Agent file upload (token-signed)
//   - POST /api/v1/auth/login - Operator authentication
//   - POST /api/v1/auth/refresh - Token refresh
//   - /api/v1/* - Operator endpoints (JWT-protected)
func NewRouter(svc Services, jwtService *auth.JWTService, users *auth.Users) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	healthHandler := handlers.NewHealthHandler(svc.States, svc.Version)

	// Probes and metrics - unauthenticated
	r.Get("/healthz", healthHandler.Liveness)
	r.Get("/readyz", healthHandler.Readiness)
	r.Handle("/metrics", metrics.Handler())

	// Agent data endpoints authenticate with signed one-shot tokens.
	if svc.AgentRoutes != nil {
		svc.AgentRoutes(r)
	}

	authHandler := handlers.NewAuthHandler(users, jwtService)
	sessionHandler := handlers.NewSessionHandler(svc.Session, svc.States)
	transfersHandler := handlers.NewTransfersHandler(svc.Transfers)
	sharesHandler := handlers.NewSharesHandler(svc.Shares, svc.States)
	agentsHandler := handlers.NewAgentsHandler(svc.Agents)
	searchesHandler := handlers.NewSearchesHandler(svc.Searches)
	stateHandler := handlers.NewStateHandler(svc.States)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.JWTAuth(jwtService))

			r.Get("/state", stateHandler.Get)

			r.Route("/session", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Put("/", sessionHandler.Update)
			})

			r.Route("/transfers", func(r chi.Router) {
				r.Post("/downloads", transfersHandler.Enqueue)
				r.Get("/{direction}", transfersHandler.List)
				r.Route("/{direction}/{username}/{id}", func(r chi.Router) {
					r.Get("/", transfersHandler.Get)
					r.Delete("/", transfersHandler.Cancel)
					r.Get("/position", transfersHandler.Position)
				})
			})

			r.Route("/shares", func(r chi.Router) {
				r.Get("/", sharesHandler.Get)
				r.Put("/", sharesHandler.Refill)
				r.Get("/contents", sharesHandler.Contents)
			})

			r.Get("/agents", agentsHandler.List)

			r.Route("/searches", func(r chi.Router) {
				r.Get("/", searchesHandler.List)
				r.Post("/", searchesHandler.Begin)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", searchesHandler.Get)
					r.Delete("/", searchesHandler.Delete)
					r.Post("/cancel", searchesHandler.Cancel)
				})
			})
		})
	})

	return r
}

// requestLogger logs each request with its wrapped status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("API request completed",
			logger.RequestID(requestID),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(ww.Status()),
			logger.Bytes(int64(ww.BytesWritten())),
			logger.DurationMs(float64(time.Since(start).Microseconds())/1000),
		)
	})
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/ieltswriter/ieltswriter/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register      http.HandlerFunc
	Login         http.HandlerFunc
	Refresh       http.HandlerFunc
	Logout        http.HandlerFunc
	DeleteAccount http.HandlerFunc

	// Stored API key
	GetCredential    http.HandlerFunc
	PutCredential    http.HandlerFunc
	DeleteCredential http.HandlerFunc

	GetQuota http.HandlerFunc

	// Writing practice
	GenerateTask1 http.HandlerFunc
	GenerateTask2 http.HandlerFunc
	CheckGrammar  http.HandlerFunc
	Evaluate      http.HandlerFunc

	ListHistory   http.HandlerFunc
	GetHistory    http.HandlerFunc
	DeleteHistory http.HandlerFunc

	GetStats         http.HandlerFunc
	RecalculateStats http.HandlerFunc

	AIProxy http.HandlerFunc

	// Admin
	GlobalStats     http.HandlerFunc
	ListQuestions   http.HandlerFunc
	ExportQuestions http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
	AdminOnly      func(http.Handler) http.Handler
}

// ReadinessCheck is one dependency probed by /health/ready. Optional checks
// report their state without failing readiness.
type ReadinessCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
	Readiness          []ReadinessCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	r.Get("/health/ready", readiness(cfg.Readiness))

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CollectNotices)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if cfg.AuthRateLimiter != nil {
					r.Use(cfg.AuthRateLimiter)
				}
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.Post("/refresh", h.Refresh)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Delete("/account", h.DeleteAccount)

			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", h.GetCredential)
				r.Put("/", h.PutCredential)
				r.Delete("/", h.DeleteCredential)
			})

			r.Get("/quota", h.GetQuota)

			r.Route("/writing", func(r chi.Router) {
				r.Post("/task1/generate", h.GenerateTask1)
				r.Post("/task2/generate", h.GenerateTask2)
				r.Post("/grammar", h.CheckGrammar)
				r.Post("/evaluate", h.Evaluate)
			})

			r.Route("/history", func(r chi.Router) {
				r.Get("/", h.ListHistory)
				r.Get("/{entryID}", h.GetHistory)
				r.Delete("/{entryID}", h.DeleteHistory)
			})

			r.Route("/stats", func(r chi.Router) {
				r.Get("/", h.GetStats)
				r.Post("/recalculate", h.RecalculateStats)
			})

			r.Post("/ai/proxy", h.AIProxy)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.AdminOnly)
				r.Get("/stats", h.GlobalStats)
				r.Get("/questions", h.ListQuestions)
				r.Get("/questions/export", h.ExportQuestions)
			})
		})
	})

	return r
}

func readiness(checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				health[c.Name] = "unhealthy"
				health["status"] = "degraded"
				if !c.Optional {
					status = http.StatusServiceUnavailable
				}
				continue
			}
			health[c.Name] = "healthy"
		}

		JSON(w, status, health)
	}
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. AccessLog:  logrus entry per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request counters and latency
  6. CORS:       Cross-origin requests for the frontend

  Under /api additionally:
  7. Authenticate: Bearer token → synced caller
  8. RequireRole:  On admin and manager routes
  9. RateLimiter:  On point-moving writes

ROUTE GROUPS:
  /api/me/*              Caller's wallet, history, achievements
  /api/recognitions/*    Feed, create, kudos, pin, leaderboard
  /api/users/*           Per-user stats
  /api/rewards/*         Catalog, redemption, catalog admin
  /api/achievements/*    Definitions, manual award
  /api/notifications/*   Inbox
  /api/admin/*           Budget configuration, distribution
  /api/scenarios/*       Demo data (only when enabled)
  /metrics, /healthz     Operations

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Auth, roles, rate limiting
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

type RouterOptions struct {
	AllowedOrigins []string
	// RateLimiter guards recognition and redemption writes. Nil disables it.
	RateLimiter *RateLimiter
	// Scenarios mounts the demo loader, which wipes the store.
	Scenarios bool
	Log       logrus.FieldLogger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	limit := func(next http.Handler) http.Handler { return next }
	if opts.RateLimiter != nil {
		limit = opts.RateLimiter.Handler
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(log))
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if opts.Scenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(h.verifier, h.svc.Provisioner))
			h.authenticatedRoutes(r, limit)
		})
	})

	return r
}

func (h *Handler) authenticatedRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	adminOnly := RequireRole(points.RoleAdmin)

	r.Route("/me", func(r chi.Router) {
		r.Get("/", h.GetMe)
		r.Get("/balance", h.GetBalance)
		r.Get("/transactions", h.GetTransactions)
		r.Get("/achievements", h.GetMyAchievements)
		r.Get("/achievements/progress", h.GetMyProgress)
		r.Get("/redemptions", h.GetMyRedemptions)
	})

	r.Route("/recognitions", func(r chi.Router) {
		r.Get("/", h.ListRecognitions)
		r.With(limit).Post("/", h.CreateRecognition)
		r.Get("/categories", h.GetActiveCategories)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/{id}", h.GetRecognition)
		r.Post("/{id}/kudos", h.ToggleKudos)
		r.With(RequireRole(points.RoleManager)).Post("/{id}/pin", h.PinRecognition)
	})

	r.Get("/users/{id}/recognition-stats", h.GetRecognitionStats)

	r.Route("/rewards", func(r chi.Router) {
		r.Get("/", h.ListRewards)
		r.Get("/catalog", h.GetGlobalCatalog)
		r.With(limit).Post("/{id}/redeem", h.RedeemReward)
		r.Get("/suggestions", h.ListSuggestions)
		r.With(limit).Post("/suggestions", h.CreateSuggestion)
		r.Post("/suggestions/{id}/vote", h.ToggleSuggestionVote)

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/", h.CreateReward)
			r.Post("/global", h.CreateGlobalReward)
			r.Get("/redemptions", h.ListRedemptions)
			r.Post("/{id}/organization", h.AddRewardToOrganization)
			r.Put("/{id}/status", h.UpdateRewardStatus)
			r.Put("/suggestions/{id}/review", h.ReviewSuggestion)
		})
	})

	r.Route("/achievements", func(r chi.Router) {
		r.Get("/", h.ListAchievements)
		r.With(adminOnly).Post("/", h.CreateAchievement)
		r.With(adminOnly).Post("/{id}/award", h.AwardAchievement)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.ListNotifications)
		r.Get("/unread-count", h.GetUnreadCount)
		r.Delete("/", h.DeleteNotifications)
		r.Post("/{id}/read", h.MarkNotificationRead)
		r.Delete("/{id}", h.DeleteNotification)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly)
		r.Get("/configuration", h.GetConfiguration)
		r.Put("/configuration/categories/{category}", h.UpdateCategorySettings)
		r.Put("/configuration/allocations/{role}", h.UpdateMonthlyAllocation)
		r.Put("/configuration/budget", h.SetYearlyBudget)
		r.Get("/configuration/distribution", h.GetDistribution)
		r.Post("/distribute", h.TriggerDistribution)
	})
}

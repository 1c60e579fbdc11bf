package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/ukydev/pool-service/internal/auth"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/events"
	"github.com/ukydev/pool-service/internal/middleware"
	"github.com/ukydev/pool-service/internal/models"
)

// loginWindowSeconds is the rate limit window for POST /api/auth/login.
const loginWindowSeconds = 60

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Auth        *auth.Service
	Clients     db.ClientCollection
	Pools       db.PoolCollection
	Technicians db.TechnicianCollection
	Visits      db.VisitCollection
	FollowUps   db.FollowUpCollection
	Billing     db.BillingCollection
	Inventory   db.InventoryCollection
	RouteStatus db.RouteStatusCollection
	Tx          db.Transactor
	Publisher   events.Publisher
	Weather     WeatherProvider
	WeatherCity string
	Ping        Pinger
	Clock       Clock
	// LoginRateLimit is the number of login attempts allowed per IP per
	// minute; zero disables the limit.
	LoginRateLimit int
	// TrustProxy lets the rate limiter key on X-Forwarded-For.
	TrustProxy bool
}

// NewRouter wires every handler behind request id, logging, panic recovery
// and authentication.
func NewRouter(d Dependencies) http.Handler {
	authMW := middleware.NewAuthMiddleware(d.Auth, d.Technicians)
	limiter := middleware.NewRateLimitMiddleware(d.TrustProxy)
	manager := authMW.RequireManager()
	adminOnly := authMW.RequireRole(models.RoleAdmin)

	authH := NewAuthHandler(d.Auth, d.Technicians)
	clientH := NewClientHandler(d.Clients, d.Pools, d.Visits, d.Technicians, d.Tx)
	poolH := NewPoolHandler(d.Pools, d.Clients, d.Visits)
	techH := NewTechnicianHandler(d.Auth, d.Technicians, d.Clients, d.Visits, d.Tx)
	visitH := NewVisitHandler(d.Visits, d.Clients, d.Pools, d.Billing, d.Tx, d.Clock)
	billingH := NewBillingHandler(d.Billing, d.Visits, d.Clients, d.Clock)
	followUpH := NewFollowUpHandler(d.FollowUps, d.Visits, d.Clients, d.Clock)
	inventoryH := NewInventoryHandler(d.Inventory, d.Visits, d.Tx, d.Clock)
	routeH := NewRouteHandler(d.Technicians, d.Clients, d.Pools, d.Visits, d.RouteStatus, d.Tx, d.Publisher, d.Clock)
	dashboardH := NewDashboardHandler(d.Clients, d.Pools, d.Visits, d.Billing, d.Inventory, routeH, followUpH, d.Clock)
	adminH := NewAdminHandler(d.Pools)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(authMW.Authenticate)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", Health(d.Ping))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limiter.RateLimit(d.LoginRateLimit, loginWindowSeconds)).Post("/login", authH.Login)
			r.Get("/me", authH.Me)
			r.Post("/change-password", authH.ChangePassword)
		})

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", clientH.List)
			r.With(manager).Post("/", clientH.Create)
			r.Get("/{id}", clientH.Get)
			r.With(manager).Put("/{id}", clientH.Update)
			r.With(manager).Patch("/{id}", clientH.SetActive)
			r.With(manager).Delete("/{id}", clientH.Delete)
		})

		r.Route("/pools", func(r chi.Router) {
			r.Get("/", poolH.List)
			r.With(manager).Post("/", poolH.Create)
			r.Get("/{id}", poolH.Get)
			r.With(manager).Put("/{id}", poolH.Update)
			r.With(manager).Delete("/{id}", poolH.Delete)
		})

		r.Route("/technicians", func(r chi.Router) {
			r.With(manager).Get("/", techH.List)
			r.With(adminOnly).Post("/", techH.Create)
			r.Get("/{id}", techH.Get)
			r.With(adminOnly).Put("/{id}", techH.Update)
			r.With(adminOnly).Patch("/{id}", techH.SetActive)
			r.With(adminOnly).Delete("/{id}", techH.Delete)
			r.With(manager).Post("/{id}/assign-client", techH.AssignClient)
			r.With(manager).Post("/{id}/remove-client", techH.RemoveClient)
		})

		r.Route("/visits", func(r chi.Router) {
			r.Get("/", visitH.List)
			r.Post("/", visitH.Create)
			r.Get("/{id}", visitH.Get)
			r.Put("/{id}", visitH.Update)
			r.With(manager).Delete("/{id}", visitH.Delete)
		})

		r.Route("/billing", func(r chi.Router) {
			r.Use(manager)
			r.Get("/", billingH.List)
			r.Post("/", billingH.Create)
			r.Put("/{id}", billingH.Update)
		})

		r.Route("/followups", func(r chi.Router) {
			r.Get("/", followUpH.List)
			r.Post("/", followUpH.Create)
			r.Put("/{id}", followUpH.Update)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", inventoryH.List)
			r.With(manager).Post("/", inventoryH.Create)
			r.With(manager).Put("/{id}", inventoryH.Update)
		})

		r.Route("/routes", func(r chi.Router) {
			r.Get("/today", routeH.Today)
			r.Get("/status", routeH.Statuses)
			r.Delete("/status", routeH.ClearStatuses)
			r.Post("/update-status", routeH.UpdateStatus)
		})

		r.Get("/weather", NewWeatherHandler(d.Weather, d.WeatherCity).Current)
		r.Get("/dashboard", dashboardH.Stats)
		r.With(adminOnly).Get("/admin/orphaned-pools", adminH.OrphanedPools)
	})

	return r
}

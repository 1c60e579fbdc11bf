package handlers

import (
	"net/http"

	"github.com/samber/lo"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/derive"
	"github.com/ukydev/pool-service/internal/models"
	"golang.org/x/sync/errgroup"
)

// DashboardHandler serves /api/dashboard.
type DashboardHandler struct {
	clients   db.ClientCollection
	pools     db.PoolCollection
	visits    db.VisitCollection
	billing   db.BillingCollection
	inventory db.InventoryCollection
	routes    *RouteHandler
	followUps *FollowUpHandler
	clock     Clock
}

// NewDashboardHandler creates a dashboard handler. It reuses the route and
// follow-up handlers' derivations.
func NewDashboardHandler(
	clients db.ClientCollection,
	pools db.PoolCollection,
	visits db.VisitCollection,
	billing db.BillingCollection,
	inventory db.InventoryCollection,
	routes *RouteHandler,
	followUps *FollowUpHandler,
	clock Clock,
) *DashboardHandler {
	return &DashboardHandler{
		clients:   clients,
		pools:     pools,
		visits:    visits,
		billing:   billing,
		inventory: inventory,
		routes:    routes,
		followUps: followUps,
		clock:     clock,
	}
}

// Stats gathers the dashboard counters concurrently. Technicians see counts
// for their assigned clients; billing totals are for managers only.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	scope := scopeFor(p)
	now := h.clock.now()
	start, end := derive.DayBounds(now, h.clock.loc())
	active := true

	var (
		clientCount, poolCount, visitsToday int64
		route                               models.RouteSummary
		pendingFollowUps, lowStock          int
		drafts                              models.BillingSummary
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		clientCount, err = h.clients.CountClients(ctx, scope, true)
		return err
	})
	g.Go(func() (err error) {
		poolCount, err = h.pools.CountPools(ctx, db.PoolFilter{Scope: scope, IsActive: &active})
		return err
	})
	g.Go(func() (err error) {
		visitsToday, err = h.visits.CountVisits(ctx, db.VisitFilter{Scope: scope, Start: &start, End: &end})
		return err
	})
	g.Go(func() error {
		_, summary, err := h.routes.build(ctx, scope, start)
		route = summary
		return err
	})
	g.Go(func() error {
		list, err := h.followUps.merged(ctx, scope, nil)
		if err != nil {
			return err
		}
		pendingFollowUps = lo.CountBy(list, func(f models.FollowUp) bool { return f.Status == models.FollowUpPending })
		return nil
	})
	g.Go(func() error {
		items, err := h.inventory.FindItems(ctx, db.InventoryFilter{LowStock: true})
		lowStock = len(items)
		return err
	})
	if p.Role.IsManager() {
		g.Go(func() error {
			rows, err := h.billing.Summary(ctx, db.BillingFilter{Status: models.BillingDraft})
			if err != nil {
				return err
			}
			drafts = summaryByStatus(rows)[models.BillingDraft]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		handleError(w, r, err)
		return
	}

	stats := map[string]interface{}{
		"activeClients":    clientCount,
		"activePools":      poolCount,
		"visitsToday":      visitsToday,
		"todayRoute":       route,
		"pendingFollowUps": pendingFollowUps,
		"lowStockItems":    lowStock,
	}
	if p.Role.IsManager() {
		stats["draftBilling"] = drafts
	}
	respond(w, http.StatusOK, map[string]interface{}{"stats": stats, "date": start.Format(models.DateLayout)})
}

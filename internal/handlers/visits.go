package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VisitHandler serves /api/visits.
type VisitHandler struct {
	visits  db.VisitCollection
	clients db.ClientCollection
	pools   db.PoolCollection
	billing db.BillingCollection
	tx      db.Transactor
	clock   Clock
}

// NewVisitHandler creates a visit handler.
func NewVisitHandler(visits db.VisitCollection, clients db.ClientCollection, pools db.PoolCollection, billing db.BillingCollection, tx db.Transactor, clock Clock) *VisitHandler {
	return &VisitHandler{visits: visits, clients: clients, pools: pools, billing: billing, tx: tx, clock: clock}
}

// lockedBillingStatuses are the billing states that freeze their visits.
var lockedBillingStatuses = []string{models.BillingInvoiced, models.BillingPaid, models.BillingOverdue}

// recordService stamps lastServiceDate on the visit's client and pool when
// the visit is completed.
func recordService(ctx context.Context, clients db.ClientCollection, pools db.PoolCollection, v *models.ServiceVisit) error {
	if v.Status != models.VisitCompleted {
		return nil
	}
	if err := clients.SetClientLastService(ctx, v.ClientID, v.ServiceDate); err != nil {
		return err
	}
	if v.PoolID != nil {
		if err := pools.SetPoolLastService(ctx, *v.PoolID, v.ServiceDate); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
	}
	return nil
}

// List returns visits; technicians only see their own.
func (h *VisitHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := db.VisitFilter{
		Status:      strings.ToLower(q.Get("status")),
		ServiceType: q.Get("serviceType"),
	}
	if filter.Status != "" && !models.IsValidVisitStatus(filter.Status) {
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	var err error
	if filter.ClientID, err = queryObjectID(r, "clientId"); err != nil {
		handleError(w, r, err)
		return
	}
	if filter.PoolID, err = queryObjectID(r, "poolId"); err != nil {
		handleError(w, r, err)
		return
	}
	if filter.TechnicianID, err = queryObjectID(r, "technicianId"); err != nil {
		handleError(w, r, err)
		return
	}
	if filter.FollowUpRequired, err = queryBool(r, "followUpRequired"); err != nil {
		handleError(w, r, err)
		return
	}
	if filter.Start, filter.End, err = queryDateRange(r, h.clock.loc()); err != nil {
		handleError(w, r, err)
		return
	}
	if !p.Role.IsManager() {
		filter.TechnicianID = &p.ID
	}

	page, err := parsePage(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	visits, total, err := h.visits.FindVisits(r.Context(), filter, page)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"visits":     visits,
		"pagination": pagination(page, total),
	})
}

// prepareVisit checks references and computes the visit's totals.
func (h *VisitHandler) prepareVisit(ctx context.Context, p *models.Principal, v *models.ServiceVisit) error {
	if v.ClientID.IsZero() {
		return models.Invalid("clientId is required")
	}
	if strings.TrimSpace(v.ServiceType) == "" {
		return models.Invalid("serviceType is required")
	}
	v.ServiceType = strings.ToLower(strings.TrimSpace(v.ServiceType))
	if v.Status == "" {
		v.Status = models.VisitCompleted
	}
	if !models.IsValidVisitStatus(v.Status) {
		return models.Invalid("status must be scheduled, in-progress, completed, skipped or rescheduled")
	}
	if v.Duration < 0 {
		return models.Invalid("duration cannot be negative")
	}

	client, err := h.clients.FindClientByID(ctx, v.ClientID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Invalid("client not found")
	}
	if err != nil {
		return err
	}
	if !p.CanAccessClient(client.ID) {
		return models.ErrForbidden
	}

	if v.PoolID != nil {
		pool, err := h.pools.FindPoolByID(ctx, *v.PoolID)
		if errors.Is(err, models.ErrNotFound) {
			return models.Invalid("pool not found")
		}
		if err != nil {
			return err
		}
		if pool.ClientID != client.ID {
			return models.Invalid("pool does not belong to this client")
		}
	}

	if v.ServiceDate.IsZero() {
		v.ServiceDate = h.clock.now()
	}
	if v.Status == models.VisitCompleted && v.CompletedAt == nil {
		now := h.clock.now()
		v.CompletedAt = &now
	}
	if v.Status != models.VisitCompleted {
		v.CompletedAt = nil
	}
	return v.ComputeTotals(client.LaborRate(), client.RatePerVisit())
}

// Create logs a visit and stamps lastServiceDate when it is completed.
func (h *VisitHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var visit models.ServiceVisit
	if err := decodeJSON(r, &visit); err != nil {
		handleError(w, r, err)
		return
	}
	visit.ID = primitive.NilObjectID
	if visit.TechnicianID == nil || !p.Role.IsManager() {
		id := p.ID
		visit.TechnicianID = &id
	}
	if err := h.prepareVisit(r.Context(), p, &visit); err != nil {
		handleError(w, r, err)
		return
	}

	err := h.tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.visits.InsertVisit(ctx, &visit); err != nil {
			return err
		}
		return recordService(ctx, h.clients, h.pools, &visit)
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, map[string]interface{}{"visit": visit})
}

// canSeeVisit allows managers, the visit's technician, and technicians
// assigned to the client.
func canSeeVisit(p *models.Principal, v *models.ServiceVisit) bool {
	if p.Role.IsManager() {
		return true
	}
	if v.TechnicianID != nil && *v.TechnicianID == p.ID {
		return true
	}
	return p.CanAccessClient(v.ClientID)
}

func (h *VisitHandler) load(w http.ResponseWriter, r *http.Request, p *models.Principal) (*models.ServiceVisit, bool) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	visit, err := h.visits.FindVisitByID(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Visit not found")
		return nil, false
	}
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	if !canSeeVisit(p, visit) {
		respondError(w, http.StatusForbidden, "Access denied")
		return nil, false
	}
	return visit, true
}

// Get returns one visit.
func (h *VisitHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	visit, ok := h.load(w, r, p)
	if !ok {
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"visit": visit})
}

// Update replaces a visit's payload and recomputes totals. The client and
// creation time are kept.
func (h *VisitHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	existing, ok := h.load(w, r, p)
	if !ok {
		return
	}

	var visit models.ServiceVisit
	if err := decodeJSON(r, &visit); err != nil {
		handleError(w, r, err)
		return
	}
	visit.ID = existing.ID
	visit.ClientID = existing.ClientID
	visit.CreatedAt = existing.CreatedAt
	if visit.ServiceType == "" {
		visit.ServiceType = existing.ServiceType
	}
	if visit.ServiceDate.IsZero() {
		visit.ServiceDate = existing.ServiceDate
	}
	if visit.TechnicianID == nil || !p.Role.IsManager() {
		visit.TechnicianID = existing.TechnicianID
	}
	if visit.Status == models.VisitCompleted && visit.CompletedAt == nil {
		visit.CompletedAt = existing.CompletedAt
	}
	if err := h.prepareVisit(r.Context(), p, &visit); err != nil {
		handleError(w, r, err)
		return
	}

	err := h.tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.visits.UpdateVisit(ctx, &visit); err != nil {
			return err
		}
		return recordService(ctx, h.clients, h.pools, &visit)
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"visit": visit})
}

// Delete removes a visit unless it is on an invoiced, paid or overdue bill.
func (h *VisitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	visit, ok := h.load(w, r, p)
	if !ok {
		return
	}

	billed, err := h.billing.FindBilledVisitIDs(r.Context(), []primitive.ObjectID{visit.ID}, lockedBillingStatuses)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if len(billed) > 0 {
		respondError(w, http.StatusBadRequest, "Cannot delete a visit that has been invoiced")
		return
	}

	if err := h.visits.DeleteVisit(r.Context(), visit.ID); err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"message": "Visit deleted"})
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PoolHandler serves /api/pools.
type PoolHandler struct {
	pools   db.PoolCollection
	clients db.ClientCollection
	visits  db.VisitCollection
}

// NewPoolHandler creates a pool handler.
func NewPoolHandler(pools db.PoolCollection, clients db.ClientCollection, visits db.VisitCollection) *PoolHandler {
	return &PoolHandler{pools: pools, clients: clients, visits: visits}
}

// List returns pools with their client's name.
func (h *PoolHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	clientID, err := queryObjectID(r, "clientId")
	if err != nil {
		handleError(w, r, err)
		return
	}
	active, err := queryBool(r, "isActive")
	if err != nil {
		handleError(w, r, err)
		return
	}

	pools, err := h.pools.FindPools(r.Context(), db.PoolFilter{Scope: scopeFor(p), ClientID: clientID, IsActive: active})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"pools": pools, "count": len(pools)})
}

// Create computes the volume and stores a new pool.
func (h *PoolHandler) Create(w http.ResponseWriter, r *http.Request) {
	var pool models.Pool
	if err := decodeJSON(r, &pool); err != nil {
		handleError(w, r, err)
		return
	}
	if err := pool.Prepare(); err != nil {
		handleError(w, r, err)
		return
	}

	client, err := h.clients.FindClientByID(r.Context(), pool.ClientID)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusBadRequest, "Client not found")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}

	pool.ID = primitive.NilObjectID
	pool.LastServiceDate = nil
	if err := h.pools.InsertPool(r.Context(), &pool); err != nil {
		handleError(w, r, err)
		return
	}
	pool.ClientName = client.Name
	respond(w, http.StatusCreated, map[string]interface{}{"pool": pool})
}

func (h *PoolHandler) load(w http.ResponseWriter, r *http.Request, p *models.Principal) (*models.Pool, bool) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	pool, err := h.pools.FindPoolByID(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Pool not found")
		return nil, false
	}
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	if !p.CanAccessClient(pool.ClientID) {
		respondError(w, http.StatusForbidden, "Access denied")
		return nil, false
	}
	return pool, true
}

// Get returns one pool.
func (h *PoolHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	pool, ok := h.load(w, r, p)
	if !ok {
		return
	}
	if client, err := h.clients.FindClientByID(r.Context(), pool.ClientID); err == nil {
		pool.ClientName = client.Name
	}
	respond(w, http.StatusOK, map[string]interface{}{"pool": pool})
}

// poolUpdate holds the editable fields. Shape, dimensions and owner are
// fixed at creation so the stored volume stays consistent.
type poolUpdate struct {
	Name         *string                       `json:"name"`
	Type         *string                       `json:"type"`
	Surface      *string                       `json:"surface"`
	Equipment    *models.Equipment             `json:"equipment"`
	TargetLevels map[string]models.TargetRange `json:"targetLevels"`
	IsActive     *bool                         `json:"isActive"`
	Notes        *string                       `json:"notes"`
}

// Update changes a pool's editable fields.
func (h *PoolHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	pool, ok := h.load(w, r, p)
	if !ok {
		return
	}

	var in poolUpdate
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	if in.Name != nil {
		if name := strings.TrimSpace(*in.Name); name != "" {
			pool.Name = name
		}
	}
	if in.Type != nil {
		t := strings.ToLower(strings.TrimSpace(*in.Type))
		if t != "residential" && t != "commercial" {
			respondError(w, http.StatusBadRequest, "type must be residential or commercial")
			return
		}
		pool.Type = t
	}
	if in.Surface != nil {
		pool.Surface = strings.TrimSpace(*in.Surface)
	}
	if in.Equipment != nil {
		pool.Equipment = *in.Equipment
	}
	if in.TargetLevels != nil {
		if err := models.ValidateTargetLevels(in.TargetLevels); err != nil {
			handleError(w, r, err)
			return
		}
		pool.TargetLevels = in.TargetLevels
	}
	if in.IsActive != nil {
		pool.IsActive = *in.IsActive
	}
	if in.Notes != nil {
		pool.Notes = strings.TrimSpace(*in.Notes)
	}

	if err := h.pools.UpdatePool(r.Context(), pool); err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"pool": pool})
}

// Delete removes a pool no visit references.
func (h *PoolHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	pool, ok := h.load(w, r, p)
	if !ok {
		return
	}

	visits, err := h.visits.CountVisits(r.Context(), db.VisitFilter{PoolID: &pool.ID})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if visits > 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Cannot delete pool with %d service visit(s). Deactivate it instead.", visits))
		return
	}

	if err := h.pools.DeletePool(r.Context(), pool.ID); err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"message": "Pool deleted"})
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClientHandler serves /api/clients.
type ClientHandler struct {
	clients     db.ClientCollection
	pools       db.PoolCollection
	visits      db.VisitCollection
	technicians db.TechnicianCollection
	tx          db.Transactor
}

// NewClientHandler creates a client handler.
func NewClientHandler(clients db.ClientCollection, pools db.PoolCollection, visits db.VisitCollection, technicians db.TechnicianCollection, tx db.Transactor) *ClientHandler {
	return &ClientHandler{clients: clients, pools: pools, visits: visits, technicians: technicians, tx: tx}
}

// List returns clients visible to the caller.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := db.ClientFilter{
		Scope:      scopeFor(p),
		Search:     strings.TrimSpace(q.Get("search")),
		ClientType: strings.ToLower(q.Get("clientType")),
		ServiceDay: strings.ToLower(q.Get("serviceDay")),
	}
	if filter.ClientType != "" && !models.IsValidClientType(models.ClientType(filter.ClientType)) {
		respondError(w, http.StatusBadRequest, "clientType must be one of retail, service, maintenance")
		return
	}
	active, err := queryBool(r, "isActive")
	if err != nil {
		handleError(w, r, err)
		return
	}
	filter.IsActive = active

	page, err := parsePage(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	clients, total, err := h.clients.FindClients(r.Context(), filter, page)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"clients":    clients,
		"pagination": pagination(page, total),
	})
}

// Create validates and stores a new client.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var client models.Client
	if err := decodeJSON(r, &client); err != nil {
		handleError(w, r, err)
		return
	}
	client.Normalize()
	if err := client.Validate(); err != nil {
		handleError(w, r, err)
		return
	}

	if taken, err := h.emailTaken(r.Context(), client.Email, nil); err != nil {
		handleError(w, r, err)
		return
	} else if taken {
		respondError(w, http.StatusConflict, "A client with this email already exists")
		return
	}

	client.ID = primitive.NilObjectID
	client.LastServiceDate = nil
	if err := h.clients.InsertClient(r.Context(), &client); err != nil {
		if errors.Is(err, models.ErrConflict) {
			respondError(w, http.StatusConflict, "A client with this email already exists")
			return
		}
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, map[string]interface{}{"client": client})
}

// emailTaken reports whether another client already uses email.
func (h *ClientHandler) emailTaken(ctx context.Context, email string, self *models.Client) (bool, error) {
	existing, err := h.clients.FindClientByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return self == nil || existing.ID != self.ID, nil
}

// load fetches a client and checks the caller may see it.
func (h *ClientHandler) load(w http.ResponseWriter, r *http.Request, p *models.Principal) (*models.Client, bool) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	client, err := h.clients.FindClientByID(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Client not found")
		return nil, false
	}
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	if !p.CanAccessClient(client.ID) {
		respondError(w, http.StatusForbidden, "Access denied")
		return nil, false
	}
	return client, true
}

// Get returns one client with its pools.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	client, ok := h.load(w, r, p)
	if !ok {
		return
	}

	pools, err := h.pools.FindPools(r.Context(), db.PoolFilter{ClientID: &client.ID})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"client": client, "pools": pools})
}

// Update replaces a client's editable fields.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	existing, ok := h.load(w, r, p)
	if !ok {
		return
	}

	var input models.Client
	if err := decodeJSON(r, &input); err != nil {
		handleError(w, r, err)
		return
	}
	input.Normalize()
	if err := input.Validate(); err != nil {
		handleError(w, r, err)
		return
	}

	if input.Email != existing.Email {
		if taken, err := h.emailTaken(r.Context(), input.Email, existing); err != nil {
			handleError(w, r, err)
			return
		} else if taken {
			respondError(w, http.StatusConflict, "A client with this email already exists")
			return
		}
	}

	input.ID = existing.ID
	input.IsActive = existing.IsActive
	input.LastServiceDate = existing.LastServiceDate
	input.CreatedAt = existing.CreatedAt
	if err := h.clients.UpdateClient(r.Context(), &input); err != nil {
		if errors.Is(err, models.ErrConflict) {
			respondError(w, http.StatusConflict, "A client with this email already exists")
			return
		}
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"client": input})
}

type activeRequest struct {
	IsActive *bool `json:"isActive"`
}

// SetActive sets isActive from the body, or toggles it when absent.
func (h *ClientHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	client, ok := h.load(w, r, p)
	if !ok {
		return
	}

	var req activeRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	active := !client.IsActive
	if req.IsActive != nil {
		active = *req.IsActive
	}

	if err := h.clients.SetClientActive(r.Context(), client.ID, active); err != nil {
		handleError(w, r, err)
		return
	}
	client.IsActive = active
	respond(w, http.StatusOK, map[string]interface{}{"client": client})
}

// Delete removes a client that has no pools or visits and unassigns it.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	client, ok := h.load(w, r, p)
	if !ok {
		return
	}

	pools, err := h.pools.CountPools(r.Context(), db.PoolFilter{ClientID: &client.ID})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if pools > 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Cannot delete client with %d pool(s). Delete the pools first.", pools))
		return
	}
	visits, err := h.visits.CountVisits(r.Context(), db.VisitFilter{ClientID: &client.ID})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if visits > 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Cannot delete client with %d service visit(s). Deactivate the client instead.", visits))
		return
	}

	err = h.tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.clients.DeleteClient(ctx, client.ID); err != nil {
			return err
		}
		return h.technicians.UnassignClient(ctx, client.ID)
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"message": "Client deleted"})
}

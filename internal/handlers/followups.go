package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/derive"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FollowUpHandler serves /api/followups. Follow-ups come from two places:
// stored records and visits flagged followUpRequired without one.
type FollowUpHandler struct {
	followUps db.FollowUpCollection
	visits    db.VisitCollection
	clients   db.ClientCollection
	clock     Clock
}

// NewFollowUpHandler creates a follow-up handler.
func NewFollowUpHandler(followUps db.FollowUpCollection, visits db.VisitCollection, clients db.ClientCollection, clock Clock) *FollowUpHandler {
	return &FollowUpHandler{followUps: followUps, visits: visits, clients: clients, clock: clock}
}

// List merges stored and synthesized follow-ups.
func (h *FollowUpHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	clientID, err := queryObjectID(r, "clientId")
	if err != nil {
		handleError(w, r, err)
		return
	}
	q := r.URL.Query()
	status := strings.ToLower(q.Get("status"))
	priority := strings.ToLower(q.Get("priority"))

	list, err := h.merged(r.Context(), scopeFor(p), clientID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	list = derive.FilterFollowUps(list, status, priority)

	respond(w, http.StatusOK, map[string]interface{}{
		"followUps": list,
		"count":     len(list),
	})
}

func (h *FollowUpHandler) merged(ctx context.Context, scope db.Scope, clientID *primitive.ObjectID) ([]models.FollowUp, error) {
	stored, err := h.followUps.FindFollowUps(ctx, db.FollowUpFilter{Scope: scope, ClientID: clientID})
	if err != nil {
		return nil, err
	}
	flagged := true
	visits, _, err := h.visits.FindVisits(ctx, db.VisitFilter{
		Scope:            scope,
		ClientID:         clientID,
		FollowUpRequired: &flagged,
	}, db.Page{})
	if err != nil {
		return nil, err
	}

	ids := lo.Uniq(append(
		lo.Map(stored, func(f models.FollowUp, _ int) primitive.ObjectID { return f.ClientID }),
		lo.Map(visits, func(v models.ServiceVisit, _ int) primitive.ObjectID { return v.ClientID })...,
	))
	names := map[primitive.ObjectID]string{}
	if len(ids) > 0 {
		clients, _, err := h.clients.FindClients(ctx, db.ClientFilter{Scope: ids}, db.Page{})
		if err != nil {
			return nil, err
		}
		names = lo.SliceToMap(clients, func(c models.Client) (primitive.ObjectID, string) { return c.ID, c.Name })
	}
	return derive.MergeFollowUps(stored, visits, names), nil
}

type followUpRequest struct {
	VisitID       string     `json:"visitId"`
	Description   *string    `json:"description"`
	Priority      *string    `json:"priority"`
	Status        *string    `json:"status"`
	DueDate       *time.Time `json:"dueDate"`
	ScheduledDate *time.Time `json:"scheduledDate"`
	Notes         *string    `json:"notes"`
}

// apply copies the request's set fields onto f and validates the result.
func (in followUpRequest) apply(f *models.FollowUp, now time.Time) error {
	if in.Description != nil {
		f.Description = strings.TrimSpace(*in.Description)
	}
	if in.Priority != nil {
		f.Priority = strings.ToLower(strings.TrimSpace(*in.Priority))
	}
	if in.Status != nil {
		f.Status = strings.ToLower(strings.TrimSpace(*in.Status))
	}
	if in.DueDate != nil {
		f.DueDate = in.DueDate
	}
	if in.ScheduledDate != nil {
		f.ScheduledDate = in.ScheduledDate
	}
	if in.Notes != nil {
		f.Notes = strings.TrimSpace(*in.Notes)
	}

	if f.Description == "" {
		return models.Invalid("description is required")
	}
	if !models.IsValidPriority(f.Priority) {
		return models.Invalid("priority must be low, medium or high")
	}
	if !models.IsValidFollowUpStatus(f.Status) {
		return models.Invalid("status must be pending, scheduled or completed")
	}
	if f.Status == models.FollowUpCompleted {
		if f.CompletedAt == nil {
			f.CompletedAt = &now
		}
	} else {
		f.CompletedAt = nil
	}
	return nil
}

// Create stores the follow-up of a visit. A visit has at most one.
func (h *FollowUpHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	var in followUpRequest
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	if in.VisitID == "" {
		respondError(w, http.StatusBadRequest, "visitId is required")
		return
	}
	visitID, err := db.ParseObjectID(in.VisitID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	visit, err := h.visits.FindVisitByID(r.Context(), visitID)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusBadRequest, "Visit not found")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !p.CanAccessClient(visit.ClientID) {
		handleError(w, r, models.ErrForbidden)
		return
	}

	if _, err := h.followUps.FindFollowUpByVisit(r.Context(), visitID); err == nil {
		respondError(w, http.StatusConflict, "A follow-up already exists for this visit")
		return
	} else if !errors.Is(err, models.ErrNotFound) {
		handleError(w, r, err)
		return
	}

	f := derive.SynthesizeFollowUp(*visit)
	f.ID = primitive.NilObjectID
	f.Synthesized = false
	if err := in.apply(&f, h.clock.now()); err != nil {
		handleError(w, r, err)
		return
	}
	if err := h.followUps.InsertFollowUp(r.Context(), &f); err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, map[string]interface{}{"followUp": f})
}

// Update changes a stored follow-up, or materializes a synthesized one
// whose id is its visit id.
func (h *FollowUpHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var in followUpRequest
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}

	f, materialize, err := h.find(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Follow-up not found")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !p.CanAccessClient(f.ClientID) {
		handleError(w, r, models.ErrForbidden)
		return
	}

	if err := in.apply(f, h.clock.now()); err != nil {
		handleError(w, r, err)
		return
	}

	if materialize {
		f.Synthesized = false
		err = h.followUps.InsertFollowUp(r.Context(), f)
	} else {
		err = h.followUps.UpdateFollowUp(r.Context(), f)
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"followUp": f})
}

// find loads a stored follow-up, falling back to the one synthesized from a
// flagged visit with the same id.
func (h *FollowUpHandler) find(ctx context.Context, id primitive.ObjectID) (*models.FollowUp, bool, error) {
	f, err := h.followUps.FindFollowUpByID(ctx, id)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}

	visit, err := h.visits.FindVisitByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !visit.FollowUpRequired {
		return nil, false, models.ErrNotFound
	}
	if stored, err := h.followUps.FindFollowUpByVisit(ctx, id); err == nil {
		return stored, false, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}
	synth := derive.SynthesizeFollowUp(*visit)
	return &synth, true, nil
}

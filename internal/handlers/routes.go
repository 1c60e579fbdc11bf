package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/derive"
	"github.com/ukydev/pool-service/internal/events"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// routeServiceType is logged for visits created from the route screen.
const routeServiceType = "maintenance-routine"

// RouteHandler serves /api/routes.
type RouteHandler struct {
	technicians db.TechnicianCollection
	clients     db.ClientCollection
	pools       db.PoolCollection
	visits      db.VisitCollection
	statuses    db.RouteStatusCollection
	tx          db.Transactor
	publisher   events.Publisher
	clock       Clock
}

// NewRouteHandler creates a route handler.
func NewRouteHandler(
	technicians db.TechnicianCollection,
	clients db.ClientCollection,
	pools db.PoolCollection,
	visits db.VisitCollection,
	statuses db.RouteStatusCollection,
	tx db.Transactor,
	publisher events.Publisher,
	clock Clock,
) *RouteHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &RouteHandler{
		technicians: technicians,
		clients:     clients,
		pools:       pools,
		visits:      visits,
		statuses:    statuses,
		tx:          tx,
		publisher:   publisher,
		clock:       clock,
	}
}

// day reads the date query parameter, defaulting to today.
func (h *RouteHandler) day(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		start, _ := derive.DayBounds(h.clock.now(), h.clock.loc())
		return start, nil
	}
	t, err := time.ParseInLocation(models.DateLayout, raw, h.clock.loc())
	if err != nil {
		return time.Time{}, models.Invalid("date must be YYYY-MM-DD")
	}
	return t, nil
}

// routeScope picks whose route to build. Technicians always get their own;
// managers may name one, or see every maintenance client.
func (h *RouteHandler) routeScope(r *http.Request, p *models.Principal) (db.Scope, *models.Technician, error) {
	techID := strings.TrimSpace(r.URL.Query().Get("technicianId"))
	if techID == "" {
		if p.Role.IsManager() {
			return nil, nil, nil
		}
		techID = p.ID.Hex()
	}
	if !p.Role.IsManager() && techID != p.ID.Hex() {
		return nil, nil, models.ErrForbidden
	}

	tech, err := h.technicians.FindTechnicianByID(r.Context(), techID)
	if err != nil {
		return nil, nil, err
	}
	return append(db.Scope{}, tech.AssignedClients...), tech, nil
}

// build loads the day's scheduled clients in scope with their pool counts,
// overrides and visits, and lays out the route.
func (h *RouteHandler) build(ctx context.Context, scope db.Scope, day time.Time) ([]models.RouteStop, models.RouteSummary, error) {
	active := true
	clients, _, err := h.clients.FindClients(ctx, db.ClientFilter{
		Scope:      scope,
		ClientType: string(models.ClientMaintenance),
		IsActive:   &active,
		ServiceDay: models.DayName(day.Weekday()),
	}, db.Page{})
	if err != nil {
		return nil, models.RouteSummary{}, err
	}

	in := derive.RouteInput{Day: day, Clients: clients}
	if len(clients) > 0 {
		ids := lo.Map(clients, func(c models.Client, _ int) primitive.ObjectID { return c.ID })
		start, end := derive.DayBounds(day, h.clock.loc())

		if in.PoolCounts, err = h.pools.CountPoolsByClient(ctx, ids); err != nil {
			return nil, models.RouteSummary{}, err
		}
		if in.Statuses, err = h.statuses.FindRouteStatuses(ctx, db.RouteStatusFilter{Date: day.Format(models.DateLayout)}); err != nil {
			return nil, models.RouteSummary{}, err
		}
		if in.Visits, _, err = h.visits.FindVisits(ctx, db.VisitFilter{Scope: ids, Start: &start, End: &end}, db.Page{}); err != nil {
			return nil, models.RouteSummary{}, err
		}
	}

	stops, summary := derive.BuildRoute(in)
	return stops, summary, nil
}

// Today derives the day's route from client schedules, overridden by
// route_status records and visits logged that day.
func (h *RouteHandler) Today(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	day, err := h.day(r.URL.Query().Get("date"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	scope, tech, err := h.routeScope(r, p)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Technician not found")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}

	stops, summary, err := h.build(r.Context(), scope, day)
	if err != nil {
		handleError(w, r, err)
		return
	}

	payload := map[string]interface{}{
		"date":      day.Format(models.DateLayout),
		"dayOfWeek": models.DayName(day.Weekday()),
		"route":     stops,
		"summary":   summary,
	}
	if tech != nil {
		payload["technician"] = map[string]interface{}{"id": tech.ID, "name": tech.Name}
	}
	respond(w, http.StatusOK, payload)
}

// statusFilter reads date and clientId; technicians only see their own records.
func (h *RouteHandler) statusFilter(r *http.Request, p *models.Principal) (db.RouteStatusFilter, error) {
	day, err := h.day(r.URL.Query().Get("date"))
	if err != nil {
		return db.RouteStatusFilter{}, err
	}
	clientID, err := queryObjectID(r, "clientId")
	if err != nil {
		return db.RouteStatusFilter{}, err
	}
	filter := db.RouteStatusFilter{Date: day.Format(models.DateLayout), ClientID: clientID}
	if p.Role.IsManager() {
		if filter.TechnicianID, err = queryObjectID(r, "technicianId"); err != nil {
			return db.RouteStatusFilter{}, err
		}
	} else {
		id := p.ID
		filter.TechnicianID = &id
	}
	return filter, nil
}

// Statuses lists route_status records for a day.
func (h *RouteHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	filter, err := h.statusFilter(r, p)
	if err != nil {
		handleError(w, r, err)
		return
	}
	list, err := h.statuses.FindRouteStatuses(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"date":     filter.Date,
		"statuses": list,
	})
}

// ClearStatuses removes route_status overrides for a day, optionally for
// one client, so the route falls back to visits and defaults.
func (h *RouteHandler) ClearStatuses(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	filter, err := h.statusFilter(r, p)
	if err != nil {
		handleError(w, r, err)
		return
	}
	n, err := h.statuses.DeleteRouteStatuses(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	log.WithFields(log.Fields{"date": filter.Date, "deleted": n}).Info("Route statuses cleared")
	respond(w, http.StatusOK, map[string]interface{}{"deleted": n})
}

type routeStatusRequest struct {
	ClientID string `json:"clientId"`
	Status   string `json:"status"`
	Notes    string `json:"notes"`
	Date     string `json:"date"`
}

// visitStatusFor maps a route stop status onto the visit it records. Only
// in-progress and completed stops write a visit.
func visitStatusFor(routeStatus string) (string, bool) {
	switch routeStatus {
	case models.RouteCompleted:
		return models.VisitCompleted, true
	case models.RouteInProgress:
		return models.VisitInProgress, true
	default:
		return "", false
	}
}

// assignee returns the technician the client is assigned to, or the caller
// when the client has none.
func (h *RouteHandler) assignee(ctx context.Context, clientID primitive.ObjectID, p *models.Principal) (primitive.ObjectID, error) {
	tech, err := h.technicians.FindTechnicianByClient(ctx, clientID)
	if errors.Is(err, models.ErrNotFound) {
		return p.ID, nil
	}
	if err != nil {
		return primitive.NilObjectID, err
	}
	return tech.ID, nil
}

// UpdateStatus records a stop's status. The route_status override is always
// upserted; in-progress and completed stops also update the day's visit or
// create a routine maintenance visit, in the same transaction. The change is
// published afterwards.
func (h *RouteHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	var req routeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if req.ClientID == "" || req.Status == "" {
		respondError(w, http.StatusBadRequest, "clientId and status are required")
		return
	}
	if !models.IsValidRouteStatus(req.Status) {
		respondError(w, http.StatusBadRequest, "status must be pending, in-progress, completed or skipped")
		return
	}
	clientID, err := db.ParseObjectID(req.ClientID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	day, err := h.day(req.Date)
	if err != nil {
		handleError(w, r, err)
		return
	}

	client, err := h.clients.FindClientByID(r.Context(), clientID)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Client not found")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !p.CanAccessClient(clientID) {
		handleError(w, r, models.ErrForbidden)
		return
	}

	techID, err := h.assignee(r.Context(), clientID, p)
	if err != nil {
		handleError(w, r, err)
		return
	}

	now := h.clock.now()
	start, end := derive.DayBounds(day, h.clock.loc())
	serviceDate := now
	if now.Before(start) || now.After(end) {
		serviceDate = start
	}

	var (
		visit  *models.ServiceVisit
		status *models.RouteStatus
	)
	err = h.tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		existing, _, err := h.visits.FindVisits(ctx, db.VisitFilter{ClientID: &clientID, Start: &start, End: &end}, db.Page{Number: 1, Limit: 1})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			visit = &existing[0]
		}

		if vStatus, ok := visitStatusFor(req.Status); ok {
			var completedAt *time.Time
			if vStatus == models.VisitCompleted {
				completedAt = &now
			}
			if visit != nil {
				if err := h.visits.SetVisitStatus(ctx, visit.ID, vStatus, completedAt); err != nil {
					return err
				}
				visit.Status = vStatus
				visit.CompletedAt = completedAt
			} else {
				visit = &models.ServiceVisit{
					ClientID:     clientID,
					TechnicianID: &techID,
					ServiceDate:  serviceDate,
					Status:       vStatus,
					ServiceType:  routeServiceType,
					Notes:        strings.TrimSpace(req.Notes),
					CompletedAt:  completedAt,
				}
				if err := visit.ComputeTotals(client.LaborRate(), client.RatePerVisit()); err != nil {
					return err
				}
				if err := h.visits.InsertVisit(ctx, visit); err != nil {
					return err
				}
			}
			if err := recordService(ctx, h.clients, h.pools, visit); err != nil {
				return err
			}
		}

		status = &models.RouteStatus{
			ClientID:     clientID,
			TechnicianID: techID,
			Date:         day.Format(models.DateLayout),
			Status:       req.Status,
			Notes:        strings.TrimSpace(req.Notes),
		}
		if visit != nil {
			visitID := visit.ID
			status.VisitID = &visitID
		}
		return h.statuses.UpsertRouteStatus(ctx, status)
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	ev := events.RouteStatusChanged{
		ClientID:     clientID.Hex(),
		TechnicianID: techID.Hex(),
		Date:         status.Date,
		Status:       status.Status,
		At:           status.UpdatedAt,
	}
	if visit != nil {
		ev.VisitID = visit.ID.Hex()
	}
	if err := h.publisher.PublishRouteStatus(r.Context(), ev); err != nil {
		log.WithError(err).WithField("client_id", ev.ClientID).Warn("Failed to publish route status")
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"routeStatus": status,
		"visit":       visit,
	})
}

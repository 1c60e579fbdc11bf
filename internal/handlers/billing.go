package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BillingHandler serves /api/billing.
type BillingHandler struct {
	billing db.BillingCollection
	visits  db.VisitCollection
	clients db.ClientCollection
	clock   Clock
}

// NewBillingHandler creates a billing handler.
func NewBillingHandler(billing db.BillingCollection, visits db.VisitCollection, clients db.ClientCollection, clock Clock) *BillingHandler {
	return &BillingHandler{billing: billing, visits: visits, clients: clients, clock: clock}
}

// List returns billing records with totals and a per-status summary, or
// per-client unbilled totals when view=unbilled.
func (h *BillingHandler) List(w http.ResponseWriter, r *http.Request) {
	clientID, err := queryObjectID(r, "clientId")
	if err != nil {
		handleError(w, r, err)
		return
	}

	if r.URL.Query().Get("view") == "unbilled" {
		h.unbilled(w, r, clientID)
		return
	}

	filter := db.BillingFilter{ClientID: clientID, Status: strings.ToLower(r.URL.Query().Get("status"))}
	if filter.Status != "" && !models.IsValidBillingStatus(filter.Status) {
		respondError(w, http.StatusBadRequest, "status must be draft, invoiced, paid or overdue")
		return
	}
	page, err := parsePage(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	records, total, err := h.billing.FindBillings(r.Context(), filter, page)
	if err != nil {
		handleError(w, r, err)
		return
	}
	summary, err := h.billing.Summary(r.Context(), db.BillingFilter{ClientID: clientID})
	if err != nil {
		handleError(w, r, err)
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"billing":    records,
		"summary":    summaryByStatus(summary),
		"pagination": pagination(page, total),
	})
}

// summaryByStatus keys the summary rows by status, always listing every status.
func summaryByStatus(rows []models.BillingSummary) map[string]models.BillingSummary {
	out := map[string]models.BillingSummary{}
	for _, s := range []string{models.BillingDraft, models.BillingInvoiced, models.BillingPaid, models.BillingOverdue} {
		out[s] = models.BillingSummary{Status: s}
	}
	for _, row := range rows {
		out[row.Status] = row
	}
	return out
}

func (h *BillingHandler) unbilled(w http.ResponseWriter, r *http.Request, clientID *primitive.ObjectID) {
	start, end, err := queryDateRange(r, h.clock.loc())
	if err != nil {
		handleError(w, r, err)
		return
	}
	rows, err := h.billing.UnbilledTotals(r.Context(), clientID, start, end)
	if err != nil {
		handleError(w, r, err)
		return
	}
	total := lo.SumBy(rows, func(u models.UnbilledTotal) float64 { return u.TotalAmount })
	respond(w, http.StatusOK, map[string]interface{}{
		"unbilled":    rows,
		"totalAmount": total,
	})
}

type billingRequest struct {
	ClientID    string     `json:"clientId"`
	VisitIDs    []string   `json:"visitIds"`
	OrderIDs    []string   `json:"orderIds"`
	PeriodStart *time.Time `json:"periodStart"`
	PeriodEnd   *time.Time `json:"periodEnd"`
	DueDate     *time.Time `json:"dueDate"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes"`
}

func parseIDs(field string, raw []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, s := range raw {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, models.Invalid("invalid id in " + field + ": " + s)
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids), nil
}

// Create builds a billing record from explicit visit and order ids, or from
// the client's unbilled completed visits in the period.
func (h *BillingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req billingRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if req.ClientID == "" {
		respondError(w, http.StatusBadRequest, "clientId is required")
		return
	}
	clientID, err := db.ParseObjectID(req.ClientID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if req.Status == "" {
		req.Status = models.BillingDraft
	}
	if !models.IsValidBillingStatus(req.Status) {
		respondError(w, http.StatusBadRequest, "status must be draft, invoiced, paid or overdue")
		return
	}
	if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodEnd.Before(*req.PeriodStart) {
		respondError(w, http.StatusBadRequest, "periodEnd must not be before periodStart")
		return
	}

	if _, err := h.clients.FindClientByID(r.Context(), clientID); errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusBadRequest, "Client not found")
		return
	} else if err != nil {
		handleError(w, r, err)
		return
	}

	visitIDs, err := parseIDs("visitIds", req.VisitIDs)
	if err != nil {
		handleError(w, r, err)
		return
	}
	orderIDs, err := parseIDs("orderIds", req.OrderIDs)
	if err != nil {
		handleError(w, r, err)
		return
	}

	if len(visitIDs) == 0 && len(orderIDs) == 0 {
		unbilled, err := h.billing.UnbilledTotals(r.Context(), &clientID, req.PeriodStart, req.PeriodEnd)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if len(unbilled) == 0 || len(unbilled[0].VisitIDs) == 0 {
			respondError(w, http.StatusBadRequest, "No unbilled completed visits found for this client and period")
			return
		}
		visitIDs = unbilled[0].VisitIDs
	}

	if err := h.checkVisits(r, clientID, visitIDs, orderIDs); err != nil {
		handleError(w, r, err)
		return
	}

	record := &models.PendingBilling{
		ClientID:    clientID,
		VisitIDs:    visitIDs,
		OrderIDs:    orderIDs,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		DueDate:     req.DueDate,
		Status:      req.Status,
		Notes:       strings.TrimSpace(req.Notes),
	}
	if err := h.billing.InsertBilling(r.Context(), record); err != nil {
		handleError(w, r, err)
		return
	}

	created, err := h.billing.FindBillingByID(r.Context(), record.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, map[string]interface{}{"billing": created})
}

// checkVisits requires every id to be a completed visit of the client, orders
// to be retail deliveries, and none to be on another billing record.
func (h *BillingHandler) checkVisits(r *http.Request, clientID primitive.ObjectID, visitIDs, orderIDs []primitive.ObjectID) error {
	if overlap := lo.Intersect(visitIDs, orderIDs); len(overlap) > 0 {
		return models.Invalid("an id cannot be both a visit and an order")
	}
	all := append(append([]primitive.ObjectID{}, visitIDs...), orderIDs...)

	found, _, err := h.visits.FindVisits(r.Context(), db.VisitFilter{IDs: all}, db.Page{})
	if err != nil {
		return err
	}
	byID := lo.KeyBy(found, func(v models.ServiceVisit) primitive.ObjectID { return v.ID })

	for _, id := range all {
		v, ok := byID[id]
		if !ok {
			return models.Invalid("visit not found: " + id.Hex())
		}
		if v.ClientID != clientID {
			return models.Invalid("visit " + id.Hex() + " belongs to another client")
		}
		if v.Status != models.VisitCompleted {
			return models.Invalid("visit " + id.Hex() + " is not completed")
		}
	}
	for _, id := range orderIDs {
		if models.ServiceCategory(byID[id].ServiceType) != models.PrefixRetail {
			return models.Invalid("order " + id.Hex() + " is not a retail delivery")
		}
	}

	billed, err := h.billing.FindBilledVisitIDs(r.Context(), all, nil)
	if err != nil {
		return err
	}
	if len(billed) > 0 {
		return models.Invalid("visit " + billed[0].Hex() + " is already on a billing record")
	}
	return nil
}

type billingUpdate struct {
	Status  *string    `json:"status"`
	Notes   *string    `json:"notes"`
	DueDate *time.Time `json:"dueDate"`
}

// Update changes status, notes and due date.
func (h *BillingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var in billingUpdate
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}

	record, err := h.billing.FindBillingByID(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Billing record not found")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}

	if in.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*in.Status))
		if !models.IsValidBillingStatus(status) {
			respondError(w, http.StatusBadRequest, "status must be draft, invoiced, paid or overdue")
			return
		}
		record.Status = status
	}
	if in.Notes != nil {
		record.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.DueDate != nil {
		record.DueDate = in.DueDate
	}

	if err := h.billing.UpdateBilling(r.Context(), record); err != nil {
		handleError(w, r, err)
		return
	}
	updated, err := h.billing.FindBillingByID(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"billing": updated})
}

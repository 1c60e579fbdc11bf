package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/derive"
	"github.com/ukydev/pool-service/internal/models"
)

const defaultUsageWindow = 30 * 24 * time.Hour

// InventoryHandler serves /api/inventory.
type InventoryHandler struct {
	inventory db.InventoryCollection
	visits    db.VisitCollection
	tx        db.Transactor
	clock     Clock
}

// NewInventoryHandler creates an inventory handler.
func NewInventoryHandler(inventory db.InventoryCollection, visits db.VisitCollection, tx db.Transactor, clock Clock) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, visits: visits, tx: tx, clock: clock}
}

// List returns stock items, or usage derived from visits when view=usage.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("view") == "usage" {
		h.usage(w, r)
		return
	}

	lowStock, err := queryBool(r, "lowStock")
	if err != nil {
		handleError(w, r, err)
		return
	}
	filter := db.InventoryFilter{Category: strings.ToLower(r.URL.Query().Get("category"))}
	if lowStock != nil {
		filter.LowStock = *lowStock
	}

	items, err := h.inventory.FindItems(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func (h *InventoryHandler) usage(w http.ResponseWriter, r *http.Request) {
	start, end, err := queryDateRange(r, h.clock.loc())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if end == nil {
		now := h.clock.now()
		end = &now
	}
	if start == nil {
		s := end.Add(-defaultUsageWindow)
		start = &s
	}
	days := int(math.Ceil(end.Sub(*start).Hours() / 24))

	rows, err := h.visits.UsageByItem(r.Context(), *start, *end)
	if err != nil {
		handleError(w, r, err)
		return
	}
	items, err := h.inventory.FindItems(r.Context(), db.InventoryFilter{})
	if err != nil {
		handleError(w, r, err)
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"usage":     derive.JoinUsage(rows, items, days),
		"startDate": start,
		"endDate":   end,
		"days":      days,
	})
}

// nameTaken reports whether another item already uses the name.
func (h *InventoryHandler) nameTaken(r *http.Request, item *models.InventoryItem) (bool, error) {
	existing, err := h.inventory.FindItemByName(r.Context(), item.Name)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return existing.ID != item.ID, nil
}

// Create adds an inventory item.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var item models.InventoryItem
	if err := decodeJSON(r, &item); err != nil {
		handleError(w, r, err)
		return
	}
	if err := item.Prepare(); err != nil {
		handleError(w, r, err)
		return
	}

	taken, err := h.nameTaken(r, &item)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if taken {
		respondError(w, http.StatusConflict, "An item with this name already exists")
		return
	}

	if err := h.inventory.InsertItem(r.Context(), &item); err != nil {
		if errors.Is(err, models.ErrConflict) {
			respondError(w, http.StatusConflict, "An item with this name already exists")
			return
		}
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, map[string]interface{}{"item": item})
}

type inventoryUpdate struct {
	Name             *string  `json:"name"`
	Category         *string  `json:"category"`
	Unit             *string  `json:"unit"`
	QuantityOnHand   *float64 `json:"quantityOnHand"`
	ReorderThreshold *float64 `json:"reorderThreshold"`
	ReorderQuantity  *float64 `json:"reorderQuantity"`
	UnitCost         *float64 `json:"unitCost"`
	Supplier         *string  `json:"supplier"`
	IsActive         *bool    `json:"isActive"`
	Adjustment       *float64 `json:"adjustment"`
}

func (in inventoryUpdate) hasFields() bool {
	return in.Name != nil || in.Category != nil || in.Unit != nil || in.QuantityOnHand != nil ||
		in.ReorderThreshold != nil || in.ReorderQuantity != nil || in.UnitCost != nil ||
		in.Supplier != nil || in.IsActive != nil
}

func (in inventoryUpdate) applyTo(item *models.InventoryItem) {
	if in.Name != nil {
		item.Name = *in.Name
	}
	if in.Category != nil {
		item.Category = *in.Category
	}
	if in.Unit != nil {
		item.Unit = strings.TrimSpace(*in.Unit)
	}
	if in.QuantityOnHand != nil {
		item.QuantityOnHand = *in.QuantityOnHand
	}
	if in.ReorderThreshold != nil {
		item.ReorderThreshold = *in.ReorderThreshold
	}
	if in.ReorderQuantity != nil {
		item.ReorderQuantity = *in.ReorderQuantity
	}
	if in.UnitCost != nil {
		item.UnitCost = *in.UnitCost
	}
	if in.Supplier != nil {
		item.Supplier = strings.TrimSpace(*in.Supplier)
	}
	if in.IsActive != nil {
		item.IsActive = *in.IsActive
	}
}

// Update changes item fields and/or applies a stock adjustment delta. Both
// writes share one transaction.
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var in inventoryUpdate
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	if !in.hasFields() && in.Adjustment == nil {
		respondError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	item, err := h.inventory.FindItemByID(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}

	if in.hasFields() {
		in.applyTo(item)
		if err := item.Prepare(); err != nil {
			handleError(w, r, err)
			return
		}
		taken, err := h.nameTaken(r, item)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if taken {
			respondError(w, http.StatusConflict, "An item with this name already exists")
			return
		}
	}

	err = h.tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if in.hasFields() {
			if err := h.inventory.UpdateItem(ctx, item); err != nil {
				return err
			}
		}
		if in.Adjustment != nil && *in.Adjustment != 0 {
			adjusted, err := h.inventory.AdjustQuantity(ctx, id, *in.Adjustment)
			if err != nil {
				return err
			}
			item = adjusted
		}
		return nil
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"item": item})
}

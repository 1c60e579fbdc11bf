package derive

import (
	"math"

	"github.com/samber/lo"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReorderHorizonDays is the stock cover below which an item needs reordering.
const ReorderHorizonDays = 14

// ItemUsage is usage of one item over a period joined with its stock level.
type ItemUsage struct {
	Name           string              `json:"name"`
	Source         string              `json:"source"`
	Unit           string              `json:"unit,omitempty"`
	Quantity       float64             `json:"quantity"`
	TotalCost      float64             `json:"totalCost"`
	VisitCount     int                 `json:"visitCount"`
	ItemID         *primitive.ObjectID `json:"itemId,omitempty"`
	QuantityOnHand *float64            `json:"quantityOnHand,omitempty"`
	DailyRate      float64             `json:"dailyRate"`
	DaysOfStock    *float64            `json:"daysOfStock,omitempty"`
	NeedsReorder   bool                `json:"needsReorder"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// JoinUsage matches usage rows to inventory items by case-insensitive name
// and projects how long the stock lasts at the observed daily rate.
func JoinUsage(rows []models.UsageRow, items []models.InventoryItem, days int) []ItemUsage {
	if days < 1 {
		days = 1
	}
	byKey := lo.KeyBy(items, func(it models.InventoryItem) string { return models.ItemKey(it.Name) })

	return lo.Map(rows, func(r models.UsageRow, _ int) ItemUsage {
		u := ItemUsage{
			Name:       r.Name,
			Source:     r.Source,
			Unit:       r.Unit,
			Quantity:   round2(r.Quantity),
			TotalCost:  round2(r.TotalCost),
			VisitCount: r.VisitCount,
			DailyRate:  round2(r.Quantity / float64(days)),
		}
		item, ok := byKey[models.ItemKey(r.Name)]
		if !ok {
			return u
		}
		id, onHand := item.ID, item.QuantityOnHand
		u.ItemID = &id
		u.QuantityOnHand = &onHand
		if u.Unit == "" {
			u.Unit = item.Unit
		}
		if rate := r.Quantity / float64(days); rate > 0 {
			d := math.Round(onHand/rate*10) / 10
			u.DaysOfStock = &d
			u.NeedsReorder = d < ReorderHorizonDays
		}
		if item.IsLowStock() {
			u.NeedsReorder = true
		}
		return u
	})
}

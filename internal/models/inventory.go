package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InventoryItem is a stocked chemical, part or supply.
type InventoryItem struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name"`
	NameKey          string             `bson:"nameKey" json:"-"`
	Category         string             `bson:"category" json:"category"`
	Unit             string             `bson:"unit" json:"unit"`
	QuantityOnHand   float64            `bson:"quantityOnHand" json:"quantityOnHand"`
	ReorderThreshold float64            `bson:"reorderThreshold" json:"reorderThreshold"`
	ReorderQuantity  float64            `bson:"reorderQuantity" json:"reorderQuantity"`
	UnitCost         float64            `bson:"unitCost" json:"unitCost"`
	Supplier         string             `bson:"supplier,omitempty" json:"supplier,omitempty"`
	IsActive         bool               `bson:"isActive" json:"isActive"`
	LowStock         bool               `bson:"-" json:"lowStock"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// UsageRow is per-item usage aggregated from visit records.
type UsageRow struct {
	Key        string  `bson:"_id" json:"-"`
	Name       string  `bson:"name" json:"name"`
	Source     string  `bson:"source" json:"source"`
	Unit       string  `bson:"unit,omitempty" json:"unit,omitempty"`
	Quantity   float64 `bson:"quantity" json:"quantity"`
	TotalCost  float64 `bson:"totalCost" json:"totalCost"`
	VisitCount int     `bson:"visitCount" json:"visitCount"`
}

// ItemKey is the case-insensitive identity of an item name.
func ItemKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsValidInventoryCategory checks if an inventory category is valid
func IsValidInventoryCategory(c string) bool {
	switch c {
	case "chemical", "part", "equipment", "supply":
		return true
	default:
		return false
	}
}

// Prepare normalizes an item and validates its fields.
func (i *InventoryItem) Prepare() error {
	i.Name = strings.TrimSpace(i.Name)
	i.NameKey = ItemKey(i.Name)
	i.Category = strings.ToLower(strings.TrimSpace(i.Category))
	if i.Name == "" {
		return Invalid("name is required")
	}
	if !IsValidInventoryCategory(i.Category) {
		return Invalid("category must be chemical, part, equipment or supply")
	}
	if i.QuantityOnHand < 0 || i.ReorderThreshold < 0 || i.ReorderQuantity < 0 || i.UnitCost < 0 {
		return Invalid("quantities and costs cannot be negative")
	}
	i.LowStock = i.IsLowStock()
	return nil
}

// IsLowStock reports whether stock is at or below the reorder threshold.
func (i *InventoryItem) IsLowStock() bool {
	return i.ReorderThreshold > 0 && i.QuantityOnHand <= i.ReorderThreshold
}

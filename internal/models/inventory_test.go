package models

import "testing"

func TestInventoryItem_Prepare(t *testing.T) {
	item := InventoryItem{Name: "  Liquid Chlorine ", Category: "Chemical", QuantityOnHand: 8, ReorderThreshold: 10}
	if err := item.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if item.Name != "Liquid Chlorine" || item.NameKey != "liquid chlorine" || item.Category != "chemical" {
		t.Errorf("not normalized: %+v", item)
	}
	if !item.LowStock {
		t.Error("8 on hand with threshold 10 should be low stock")
	}
}

func TestInventoryItem_PrepareRejects(t *testing.T) {
	tests := []struct {
		name string
		item InventoryItem
	}{
		{"missing name", InventoryItem{Category: "part"}},
		{"bad category", InventoryItem{Name: "Pump", Category: "food"}},
		{"negative quantity", InventoryItem{Name: "Pump", Category: "equipment", QuantityOnHand: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.item.Prepare(); err == nil {
				t.Error("Prepare() should fail")
			}
		})
	}
}

func TestInventoryItem_IsLowStock(t *testing.T) {
	tests := []struct {
		name     string
		onHand   float64
		reorder  float64
		expected bool
	}{
		{"below threshold", 2, 5, true},
		{"at threshold", 5, 5, true},
		{"above threshold", 6, 5, false},
		{"no threshold", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := InventoryItem{QuantityOnHand: tt.onHand, ReorderThreshold: tt.reorder}
			if got := item.IsLowStock(); got != tt.expected {
				t.Errorf("IsLowStock() = %v, want %v", got, tt.expected)
			}
		})
	}
}

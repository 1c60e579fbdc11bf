package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	BillingDraft    = "draft"
	BillingInvoiced = "invoiced"
	BillingPaid     = "paid"
	BillingOverdue  = "overdue"
)

// ClientRef is the client summary joined into aggregated views.
type ClientRef struct {
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
}

// PendingBilling is a not-yet-settled invoice. TotalAmount, VisitCount and
// Client are computed by aggregation on read and never stored.
type PendingBilling struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ClientID    primitive.ObjectID   `bson:"clientId" json:"clientId"`
	VisitIDs    []primitive.ObjectID `bson:"visitIds" json:"visitIds"`
	OrderIDs    []primitive.ObjectID `bson:"orderIds" json:"orderIds"`
	PeriodStart *time.Time           `bson:"periodStart,omitempty" json:"periodStart,omitempty"`
	PeriodEnd   *time.Time           `bson:"periodEnd,omitempty" json:"periodEnd,omitempty"`
	DueDate     *time.Time           `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	Status      string               `bson:"status" json:"status"`
	Notes       string               `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt" json:"updatedAt"`

	TotalAmount float64    `bson:"totalAmount,omitempty" json:"totalAmount"`
	VisitCount  int        `bson:"visitCount,omitempty" json:"visitCount"`
	Client      *ClientRef `bson:"client,omitempty" json:"client,omitempty"`
}

// BillingSummary aggregates billing records of one status.
type BillingSummary struct {
	Status      string  `bson:"_id" json:"status"`
	Count       int     `bson:"count" json:"count"`
	TotalAmount float64 `bson:"totalAmount" json:"totalAmount"`
}

// UnbilledTotal is one client's completed visits not yet on any billing record.
type UnbilledTotal struct {
	ClientID    primitive.ObjectID   `bson:"_id" json:"clientId"`
	Client      *ClientRef           `bson:"client,omitempty" json:"client,omitempty"`
	VisitIDs    []primitive.ObjectID `bson:"visitIds" json:"visitIds"`
	VisitCount  int                  `bson:"visitCount" json:"visitCount"`
	TotalAmount float64              `bson:"totalAmount" json:"totalAmount"`
}

// IsValidBillingStatus checks if a billing status is valid
func IsValidBillingStatus(s string) bool {
	switch s {
	case BillingDraft, BillingInvoiced, BillingPaid, BillingOverdue:
		return true
	default:
		return false
	}
}

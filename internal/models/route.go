package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Route stop statuses.
const (
	RoutePending    = "pending"
	RouteInProgress = "in-progress"
	RouteCompleted  = "completed"
	RouteSkipped    = "skipped"
)

// DateLayout is the day key format used by route status records.
const DateLayout = "2006-01-02"

// RouteStatus is a per-client, per-day override of the derived route status.
type RouteStatus struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ClientID     primitive.ObjectID  `bson:"clientId" json:"clientId"`
	TechnicianID primitive.ObjectID  `bson:"technicianId" json:"technicianId"`
	Date         string              `bson:"date" json:"date"`
	Status       string              `bson:"status" json:"status"`
	Notes        string              `bson:"notes,omitempty" json:"notes,omitempty"`
	VisitID      *primitive.ObjectID `bson:"visitId,omitempty" json:"visitId,omitempty"`
	UpdatedAt    time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// RouteStop is one client on a technician's derived daily route.
type RouteStop struct {
	ClientID      primitive.ObjectID  `json:"clientId"`
	ClientName    string              `json:"clientName"`
	Address       Address             `json:"address"`
	Phone         string              `json:"phone"`
	Frequency     string              `json:"serviceFrequency"`
	PreferredTime string              `json:"preferredTime"`
	PoolCount     int                 `json:"poolCount"`
	EstimatedTime string              `json:"estimatedTime"`
	Duration      int                 `json:"estimatedDuration"`
	Status        string              `json:"status"`
	StatusSource  string              `json:"statusSource"`
	VisitID       *primitive.ObjectID `json:"visitId,omitempty"`
	Notes         string              `json:"notes,omitempty"`
}

// RouteSummary counts stops by status.
type RouteSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Skipped    int `json:"skipped"`
	// EstimatedMinutes is the sum of stop durations.
	EstimatedMinutes int `json:"estimatedMinutes"`
}

// IsValidRouteStatus checks if a route status is valid
func IsValidRouteStatus(s string) bool {
	switch s {
	case RoutePending, RouteInProgress, RouteCompleted, RouteSkipped:
		return true
	default:
		return false
	}
}

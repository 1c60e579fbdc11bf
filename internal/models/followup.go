package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	FollowUpPending   = "pending"
	FollowUpScheduled = "scheduled"
	FollowUpCompleted = "completed"
)

// FollowUpDueAfter is how long after the visit a synthesized follow-up is due.
const FollowUpDueAfter = 7 * 24 * time.Hour

// FollowUp is a future action attached to a visit.
type FollowUp struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	VisitID       primitive.ObjectID  `bson:"visitId" json:"visitId"`
	ClientID      primitive.ObjectID  `bson:"clientId" json:"clientId"`
	ClientName    string              `bson:"-" json:"clientName,omitempty"`
	PoolID        *primitive.ObjectID `bson:"poolId,omitempty" json:"poolId,omitempty"`
	TechnicianID  *primitive.ObjectID `bson:"technicianId,omitempty" json:"technicianId,omitempty"`
	Description   string              `bson:"description" json:"description"`
	Priority      string              `bson:"priority" json:"priority"`
	Status        string              `bson:"status" json:"status"`
	DueDate       *time.Time          `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	ScheduledDate *time.Time          `bson:"scheduledDate,omitempty" json:"scheduledDate,omitempty"`
	CompletedAt   *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Notes         string              `bson:"notes,omitempty" json:"notes,omitempty"`
	Synthesized   bool                `bson:"-" json:"synthesized"`
	CreatedAt     time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// IsValidFollowUpStatus checks if a follow-up status is valid
func IsValidFollowUpStatus(s string) bool {
	return s == FollowUpPending || s == FollowUpScheduled || s == FollowUpCompleted
}

// IsValidPriority checks if a priority is valid
func IsValidPriority(p string) bool {
	return p == "low" || p == "medium" || p == "high"
}

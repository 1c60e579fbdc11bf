package models

import (
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Visit statuses. No transition graph is enforced between them.
const (
	VisitScheduled   = "scheduled"
	VisitInProgress  = "in-progress"
	VisitCompleted   = "completed"
	VisitSkipped     = "skipped"
	VisitRescheduled = "rescheduled"
)

// Service type prefixes select the visit payload.
const (
	PrefixMaintenance = "maintenance-"
	PrefixService     = "service-"
	PrefixRetail      = "retail-"
)

// Readings is a water chemistry test result.
type Readings struct {
	FreeChlorine    *float64 `bson:"freeChlorine,omitempty" json:"freeChlorine,omitempty"`
	TotalChlorine   *float64 `bson:"totalChlorine,omitempty" json:"totalChlorine,omitempty"`
	PH              *float64 `bson:"ph,omitempty" json:"ph,omitempty"`
	Alkalinity      *float64 `bson:"alkalinity,omitempty" json:"alkalinity,omitempty"`
	CyanuricAcid    *float64 `bson:"cyanuricAcid,omitempty" json:"cyanuricAcid,omitempty"`
	CalciumHardness *float64 `bson:"calciumHardness,omitempty" json:"calciumHardness,omitempty"`
	Salt            *float64 `bson:"salt,omitempty" json:"salt,omitempty"`
	Temperature     *float64 `bson:"temperature,omitempty" json:"temperature,omitempty"`
}

// ChemicalUsage is one chemical dose added during a maintenance visit.
type ChemicalUsage struct {
	Name   string  `bson:"name" json:"name"`
	Amount float64 `bson:"amount" json:"amount"`
	Unit   string  `bson:"unit" json:"unit"`
	Cost   float64 `bson:"cost" json:"cost"`
}

// PartUsage is one part installed during a repair visit.
type PartUsage struct {
	Name       string  `bson:"name" json:"name"`
	PartNumber string  `bson:"partNumber,omitempty" json:"partNumber,omitempty"`
	Quantity   float64 `bson:"quantity" json:"quantity"`
	UnitCost   float64 `bson:"unitCost" json:"unitCost"`
}

// DeliveryItem is one line of a retail delivery.
type DeliveryItem struct {
	Name      string  `bson:"name" json:"name"`
	Quantity  float64 `bson:"quantity" json:"quantity"`
	UnitPrice float64 `bson:"unitPrice" json:"unitPrice"`
	Total     float64 `bson:"total" json:"total"`
}

// MaintenanceDetails is the payload for maintenance-* visits.
type MaintenanceDetails struct {
	Readings       Readings        `bson:"readings" json:"readings"`
	ChemicalsAdded []ChemicalUsage `bson:"chemicalsAdded" json:"chemicalsAdded"`
	ChemicalCost   float64         `bson:"chemicalCost" json:"chemicalCost"`
	RatePerVisit   float64         `bson:"ratePerVisit" json:"ratePerVisit"`
	TasksCompleted []string        `bson:"tasksCompleted,omitempty" json:"tasksCompleted,omitempty"`
}

// ServiceDetails is the payload for service-* (repair) visits.
type ServiceDetails struct {
	Description string      `bson:"description" json:"description"`
	LaborHours  float64     `bson:"laborHours" json:"laborHours"`
	LaborRate   float64     `bson:"laborRate" json:"laborRate"`
	LaborCost   float64     `bson:"laborCost" json:"laborCost"`
	Parts       []PartUsage `bson:"parts" json:"parts"`
	PartsCost   float64     `bson:"partsCost" json:"partsCost"`
}

// RetailDetails is the payload for retail-* deliveries.
type RetailDetails struct {
	Items           []DeliveryItem `bson:"items" json:"items"`
	DeliveryValue   float64        `bson:"deliveryValue" json:"deliveryValue"`
	DeliveryAddress string         `bson:"deliveryAddress,omitempty" json:"deliveryAddress,omitempty"`
}

// ServiceVisit is a logged service event against a client and optional pool.
type ServiceVisit struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ClientID         primitive.ObjectID  `bson:"clientId" json:"clientId"`
	PoolID           *primitive.ObjectID `bson:"poolId,omitempty" json:"poolId,omitempty"`
	TechnicianID     *primitive.ObjectID `bson:"technicianId,omitempty" json:"technicianId,omitempty"`
	ServiceDate      time.Time           `bson:"serviceDate" json:"serviceDate"`
	Status           string              `bson:"status" json:"status"`
	ServiceType      string              `bson:"serviceType" json:"serviceType"`
	Maintenance      *MaintenanceDetails `bson:"maintenance,omitempty" json:"maintenance,omitempty"`
	Service          *ServiceDetails     `bson:"service,omitempty" json:"service,omitempty"`
	Retail           *RetailDetails      `bson:"retail,omitempty" json:"retail,omitempty"`
	TotalAmount      float64             `bson:"totalAmount" json:"totalAmount"`
	Duration         int                 `bson:"duration,omitempty" json:"duration,omitempty"`
	FollowUpRequired bool                `bson:"followUpRequired" json:"followUpRequired"`
	FollowUpNotes    string              `bson:"followUpNotes,omitempty" json:"followUpNotes,omitempty"`
	Notes            string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CompletedAt      *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// IsValidVisitStatus checks if a visit status is valid
func IsValidVisitStatus(s string) bool {
	switch s {
	case VisitScheduled, VisitInProgress, VisitCompleted, VisitSkipped, VisitRescheduled:
		return true
	default:
		return false
	}
}

// ServiceCategory returns the prefix the service type starts with, or "".
func ServiceCategory(serviceType string) string {
	for _, p := range []string{PrefixMaintenance, PrefixService, PrefixRetail} {
		if strings.HasPrefix(serviceType, p) && len(serviceType) > len(p) {
			return p
		}
	}
	return ""
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeTotals keeps only the payload matching the service type prefix and
// recomputes derived costs. laborRate and ratePerVisit are the client's
// defaults, used when the payload does not carry its own.
func (v *ServiceVisit) ComputeTotals(laborRate, ratePerVisit float64) error {
	switch ServiceCategory(v.ServiceType) {
	case PrefixMaintenance:
		v.Service, v.Retail = nil, nil
		if v.Maintenance == nil {
			v.Maintenance = &MaintenanceDetails{}
		}
		m := v.Maintenance
		if m.ChemicalsAdded == nil {
			m.ChemicalsAdded = []ChemicalUsage{}
		}
		var chem float64
		for _, c := range m.ChemicalsAdded {
			if c.Amount < 0 || c.Cost < 0 {
				return Invalid("chemical amounts and costs cannot be negative")
			}
			chem += c.Cost
		}
		m.ChemicalCost = round2(chem)
		if m.RatePerVisit <= 0 {
			m.RatePerVisit = ratePerVisit
		}
		v.TotalAmount = round2(m.ChemicalCost + m.RatePerVisit)
	case PrefixService:
		v.Maintenance, v.Retail = nil, nil
		if v.Service == nil {
			v.Service = &ServiceDetails{}
		}
		s := v.Service
		if s.Parts == nil {
			s.Parts = []PartUsage{}
		}
		if s.LaborHours < 0 {
			return Invalid("laborHours cannot be negative")
		}
		if s.LaborRate <= 0 {
			s.LaborRate = laborRate
		}
		s.LaborCost = round2(s.LaborHours * s.LaborRate)
		var parts float64
		for _, p := range s.Parts {
			if p.Quantity < 0 || p.UnitCost < 0 {
				return Invalid("part quantities and costs cannot be negative")
			}
			parts += p.Quantity * p.UnitCost
		}
		s.PartsCost = round2(parts)
		v.TotalAmount = round2(s.LaborCost + s.PartsCost)
	case PrefixRetail:
		v.Maintenance, v.Service = nil, nil
		if v.Retail == nil {
			v.Retail = &RetailDetails{}
		}
		r := v.Retail
		if r.Items == nil {
			r.Items = []DeliveryItem{}
		}
		var total float64
		for i := range r.Items {
			it := &r.Items[i]
			if it.Quantity < 0 || it.UnitPrice < 0 || it.Total < 0 {
				return Invalid("item quantities and prices cannot be negative")
			}
			if it.Total == 0 {
				it.Total = round2(it.Quantity * it.UnitPrice)
			}
			total += it.Total
		}
		r.DeliveryValue = round2(total)
		v.TotalAmount = r.DeliveryValue
	default:
		return Invalid("serviceType must start with maintenance-, service- or retail-")
	}
	return nil
}

package models

import (
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClientType selects which type-specific sub-document a client carries.
type ClientType string

const (
	ClientRetail      ClientType = "retail"
	ClientService     ClientType = "service"
	ClientMaintenance ClientType = "maintenance"
)

const DefaultLaborRate = 85.0

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Address is a postal address.
type Address struct {
	Street string `bson:"street" json:"street"`
	City   string `bson:"city" json:"city"`
	State  string `bson:"state" json:"state"`
	Zip    string `bson:"zip" json:"zip"`
}

// RetailTerms holds pricing and payment terms for retail customers.
type RetailTerms struct {
	PricingTier  string `bson:"pricingTier" json:"pricingTier"`
	PaymentTerms string `bson:"paymentTerms" json:"paymentTerms"`
	TaxExempt    bool   `bson:"taxExempt" json:"taxExempt"`
}

// ServiceTerms holds labor rates for repair customers.
type ServiceTerms struct {
	LaborRate        float64 `bson:"laborRate" json:"laborRate"`
	PreferredContact string  `bson:"preferredContact,omitempty" json:"preferredContact,omitempty"`
}

// MaintenanceProgram holds the recurring service schedule.
type MaintenanceProgram struct {
	ServiceFrequency string  `bson:"serviceFrequency" json:"serviceFrequency"`
	ServiceDay       string  `bson:"serviceDay" json:"serviceDay"`
	PreferredTime    string  `bson:"preferredTime" json:"preferredTime"`
	ChemicalProgram  string  `bson:"chemicalProgram,omitempty" json:"chemicalProgram,omitempty"`
	RatePerVisit     float64 `bson:"ratePerVisit" json:"ratePerVisit"`
}

// Client is a customer of the business.
type Client struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name            string              `bson:"name" json:"name"`
	Email           string              `bson:"email" json:"email"`
	Phone           string              `bson:"phone" json:"phone"`
	Address         Address             `bson:"address" json:"address"`
	ClientType      ClientType          `bson:"clientType" json:"clientType"`
	Retail          *RetailTerms        `bson:"retail,omitempty" json:"retail,omitempty"`
	Service         *ServiceTerms       `bson:"service,omitempty" json:"service,omitempty"`
	Maintenance     *MaintenanceProgram `bson:"maintenance,omitempty" json:"maintenance,omitempty"`
	IsActive        bool                `bson:"isActive" json:"isActive"`
	LastServiceDate *time.Time          `bson:"lastServiceDate,omitempty" json:"lastServiceDate,omitempty"`
	Notes           string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// IsValidClientType checks if a client type is valid
func IsValidClientType(t ClientType) bool {
	switch t {
	case ClientRetail, ClientService, ClientMaintenance:
		return true
	default:
		return false
	}
}

// ParseWeekday maps a lower-case day name to a time.Weekday.
func ParseWeekday(day string) (time.Weekday, bool) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(day))]
	return wd, ok
}

// DayName returns the lower-case name stored in serviceDay fields.
func DayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidPhone accepts 10 digits, or 11 with a leading 1, ignoring punctuation.
func ValidPhone(s string) bool {
	digits := nonDigits.ReplaceAllString(s, "")
	return len(digits) == 10 || (len(digits) == 11 && digits[0] == '1')
}

// Normalize trims strings, lower-cases the email and keeps only the
// sub-document matching ClientType, defaulting it where possible.
func (c *Client) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.Notes = strings.TrimSpace(c.Notes)
	c.ClientType = ClientType(strings.ToLower(strings.TrimSpace(string(c.ClientType))))
	c.Address.Street = strings.TrimSpace(c.Address.Street)
	c.Address.City = strings.TrimSpace(c.Address.City)
	c.Address.State = strings.TrimSpace(c.Address.State)
	c.Address.Zip = strings.TrimSpace(c.Address.Zip)

	switch c.ClientType {
	case ClientRetail:
		c.Service, c.Maintenance = nil, nil
		if c.Retail == nil {
			c.Retail = &RetailTerms{}
		}
		if c.Retail.PricingTier == "" {
			c.Retail.PricingTier = "standard"
		}
		if c.Retail.PaymentTerms == "" {
			c.Retail.PaymentTerms = "net-30"
		}
	case ClientService:
		c.Retail, c.Maintenance = nil, nil
		if c.Service == nil {
			c.Service = &ServiceTerms{}
		}
		if c.Service.LaborRate <= 0 {
			c.Service.LaborRate = DefaultLaborRate
		}
	case ClientMaintenance:
		c.Retail, c.Service = nil, nil
		if c.Maintenance != nil {
			m := c.Maintenance
			m.ServiceFrequency = strings.ToLower(strings.TrimSpace(m.ServiceFrequency))
			m.ServiceDay = strings.ToLower(strings.TrimSpace(m.ServiceDay))
			m.PreferredTime = strings.ToLower(strings.TrimSpace(m.PreferredTime))
			if m.PreferredTime == "" {
				m.PreferredTime = "anytime"
			}
		}
	}
}

// Validate checks required fields and formats. Call Normalize first.
func (c *Client) Validate() error {
	if c.Name == "" || c.Email == "" || c.Phone == "" {
		return Invalid("name, email and phone are required")
	}
	if !ValidEmail(c.Email) {
		return Invalid("invalid email format")
	}
	if !ValidPhone(c.Phone) {
		return Invalid("phone number must contain 10 digits")
	}
	if !IsValidClientType(c.ClientType) {
		return Invalid("clientType must be one of retail, service, maintenance")
	}
	if c.ClientType == ClientMaintenance {
		m := c.Maintenance
		if m == nil || m.ServiceFrequency == "" || m.ServiceDay == "" {
			return Invalid("maintenance clients require serviceFrequency and serviceDay")
		}
		switch m.ServiceFrequency {
		case "weekly", "bi-weekly", "monthly":
		default:
			return Invalid("serviceFrequency must be weekly, bi-weekly or monthly")
		}
		if _, ok := ParseWeekday(m.ServiceDay); !ok {
			return Invalid("serviceDay must be a day of the week")
		}
		switch m.PreferredTime {
		case "morning", "afternoon", "evening", "anytime":
		default:
			return Invalid("preferredTime must be morning, afternoon, evening or anytime")
		}
		if m.RatePerVisit < 0 {
			return Invalid("ratePerVisit cannot be negative")
		}
	}
	if c.ClientType == ClientService && c.Service.LaborRate < 0 {
		return Invalid("laborRate cannot be negative")
	}
	return nil
}

// LaborRate returns the client's service labor rate or the default.
func (c *Client) LaborRate() float64 {
	if c.Service != nil && c.Service.LaborRate > 0 {
		return c.Service.LaborRate
	}
	return DefaultLaborRate
}

// RatePerVisit returns the maintenance program rate, zero when none.
func (c *Client) RatePerVisit() float64 {
	if c.Maintenance != nil {
		return c.Maintenance.RatePerVisit
	}
	return 0
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents technician roles in the system
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleTechnician Role = "technician"
)

// Technician is a staff user who performs visits and owns a set of clients.
type Technician struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name            string               `bson:"name" json:"name"`
	Email           string               `bson:"email" json:"email"`
	Phone           string               `bson:"phone,omitempty" json:"phone,omitempty"`
	PasswordHash    string               `bson:"passwordHash" json:"-"`
	Role            Role                 `bson:"role" json:"role"`
	AssignedClients []primitive.ObjectID `bson:"assignedClients" json:"assignedClients"`
	IsActive        bool                 `bson:"isActive" json:"isActive"`
	LastLogin       *time.Time           `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Success    bool       `json:"success"`
	Token      string     `json:"token"`
	Technician Technician `json:"technician"`
}

// TechnicianInput is the create/update payload for technicians.
type TechnicianInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// Claims represents JWT claims
type Claims struct {
	TechnicianID string `json:"technicianId"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	Exp          int64  `json:"exp"`
}

// Principal is the authenticated caller resolved from a token and the
// technicians collection.
type Principal struct {
	ID              primitive.ObjectID
	Name            string
	Role            Role
	AssignedClients []primitive.ObjectID
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleSupervisor, RoleTechnician:
		return true
	default:
		return false
	}
}

// IsManager reports whether the role may manage other people's records.
func (r Role) IsManager() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// CanAccessClient reports whether the principal may read or act on a client.
func (p *Principal) CanAccessClient(clientID primitive.ObjectID) bool {
	if p.Role.IsManager() {
		return true
	}
	for _, id := range p.AssignedClients {
		if id == clientID {
			return true
		}
	}
	return false
}

// NewPrincipal builds a principal from a stored technician.
func NewPrincipal(t *Technician) *Principal {
	return &Principal{
		ID:              t.ID,
		Name:            t.Name,
		Role:            t.Role,
		AssignedClients: t.AssignedClients,
	}
}

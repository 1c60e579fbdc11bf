package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/lo"
	"github.com/ukydev/pool-service/internal/auth"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TechnicianHandler serves /api/technicians.
type TechnicianHandler struct {
	authService *auth.Service
	technicians db.TechnicianCollection
	clients     db.ClientCollection
	visits      db.VisitCollection
	tx          db.Transactor
}

// NewTechnicianHandler creates a technician handler.
func NewTechnicianHandler(authService *auth.Service, technicians db.TechnicianCollection, clients db.ClientCollection, visits db.VisitCollection, tx db.Transactor) *TechnicianHandler {
	return &TechnicianHandler{authService: authService, technicians: technicians, clients: clients, visits: visits, tx: tx}
}

// List returns technicians filtered by role and isActive.
func (h *TechnicianHandler) List(w http.ResponseWriter, r *http.Request) {
	role := strings.ToLower(r.URL.Query().Get("role"))
	if role != "" && !models.IsValidRole(models.Role(role)) {
		respondError(w, http.StatusBadRequest, "role must be admin, supervisor or technician")
		return
	}
	active, err := queryBool(r, "isActive")
	if err != nil {
		handleError(w, r, err)
		return
	}

	techs, err := h.technicians.FindTechnicians(r.Context(), db.TechnicianFilter{Role: role, IsActive: active})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"technicians": techs, "count": len(techs)})
}

// normalize trims the input and fills the default role.
func normalizeTechnicianInput(in *models.TechnicianInput) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Role = models.Role(strings.ToLower(strings.TrimSpace(string(in.Role))))
	if in.Role == "" {
		in.Role = models.RoleTechnician
	}
}

func (h *TechnicianHandler) validateInput(in *models.TechnicianInput, requirePassword bool) error {
	if in.Name == "" || in.Email == "" {
		return models.Invalid("name and email are required")
	}
	if err := h.authService.ValidateEmail(in.Email); err != nil {
		return err
	}
	if in.Phone != "" && !models.ValidPhone(in.Phone) {
		return models.Invalid("phone number must contain 10 digits")
	}
	if !models.IsValidRole(in.Role) {
		return models.Invalid("role must be admin, supervisor or technician")
	}
	if requirePassword || in.Password != "" {
		return h.authService.ValidatePassword(in.Password)
	}
	return nil
}

func (h *TechnicianHandler) emailTaken(ctx context.Context, email string, self primitive.ObjectID) (bool, error) {
	existing, err := h.technicians.FindTechnicianByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return existing.ID != self, nil
}

// Create adds a technician with a hashed password.
func (h *TechnicianHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.TechnicianInput
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	normalizeTechnicianInput(&in)
	if err := h.validateInput(&in, true); err != nil {
		handleError(w, r, err)
		return
	}

	if taken, err := h.emailTaken(r.Context(), in.Email, primitive.NilObjectID); err != nil {
		handleError(w, r, err)
		return
	} else if taken {
		respondError(w, http.StatusConflict, "A technician with this email already exists")
		return
	}

	hash, err := h.authService.HashPassword(in.Password)
	if err != nil {
		handleError(w, r, err)
		return
	}
	tech := &models.Technician{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err := h.technicians.InsertTechnician(r.Context(), tech); err != nil {
		if errors.Is(err, models.ErrConflict) {
			respondError(w, http.StatusConflict, "A technician with this email already exists")
			return
		}
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, map[string]interface{}{"technician": tech})
}

func (h *TechnicianHandler) load(w http.ResponseWriter, r *http.Request) (*models.Technician, bool) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	tech, err := h.technicians.FindTechnicianByID(r.Context(), id.Hex())
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Technician not found")
		return nil, false
	}
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	return tech, true
}

// Get returns a technician to managers or to the technician themself.
func (h *TechnicianHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	tech, ok := h.load(w, r)
	if !ok {
		return
	}
	if !p.Role.IsManager() && p.ID != tech.ID {
		respondError(w, http.StatusForbidden, "Access denied")
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"technician": tech})
}

// Update changes profile fields, role and optionally resets the password.
func (h *TechnicianHandler) Update(w http.ResponseWriter, r *http.Request) {
	tech, ok := h.load(w, r)
	if !ok {
		return
	}

	var in models.TechnicianInput
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	normalizeTechnicianInput(&in)
	if err := h.validateInput(&in, false); err != nil {
		handleError(w, r, err)
		return
	}

	if in.Email != tech.Email {
		if taken, err := h.emailTaken(r.Context(), in.Email, tech.ID); err != nil {
			handleError(w, r, err)
			return
		} else if taken {
			respondError(w, http.StatusConflict, "A technician with this email already exists")
			return
		}
	}

	tech.Name = in.Name
	tech.Email = in.Email
	tech.Phone = in.Phone
	tech.Role = in.Role
	if in.Password != "" {
		hash, err := h.authService.HashPassword(in.Password)
		if err != nil {
			handleError(w, r, err)
			return
		}
		tech.PasswordHash = hash
	}

	if err := h.technicians.UpdateTechnician(r.Context(), tech); err != nil {
		if errors.Is(err, models.ErrConflict) {
			respondError(w, http.StatusConflict, "A technician with this email already exists")
			return
		}
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"technician": tech})
}

// SetActive sets isActive from the body, or toggles it when absent.
func (h *TechnicianHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	tech, ok := h.load(w, r)
	if !ok {
		return
	}

	var req activeRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	active := !tech.IsActive
	if req.IsActive != nil {
		active = *req.IsActive
	}
	if !active && tech.ID == p.ID {
		respondError(w, http.StatusBadRequest, "You cannot deactivate your own account")
		return
	}

	if err := h.technicians.SetTechnicianActive(r.Context(), tech.ID, active); err != nil {
		handleError(w, r, err)
		return
	}
	tech.IsActive = active
	respond(w, http.StatusOK, map[string]interface{}{"technician": tech})
}

// Delete removes a technician with no recorded visits.
func (h *TechnicianHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	tech, ok := h.load(w, r)
	if !ok {
		return
	}
	if tech.ID == p.ID {
		respondError(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}

	visits, err := h.visits.CountVisits(r.Context(), db.VisitFilter{TechnicianID: &tech.ID})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if visits > 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Cannot delete technician with %d service visit(s). Deactivate instead.", visits))
		return
	}

	if err := h.technicians.DeleteTechnician(r.Context(), tech.ID); err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"message": "Technician deleted"})
}

type clientAssignment struct {
	ClientID string `json:"clientId"`
}

func (h *TechnicianHandler) assignmentTarget(w http.ResponseWriter, r *http.Request) (*models.Technician, primitive.ObjectID, bool) {
	tech, ok := h.load(w, r)
	if !ok {
		return nil, primitive.NilObjectID, false
	}
	var req clientAssignment
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return nil, primitive.NilObjectID, false
	}
	if req.ClientID == "" {
		respondError(w, http.StatusBadRequest, "clientId is required")
		return nil, primitive.NilObjectID, false
	}
	clientID, err := db.ParseObjectID(req.ClientID)
	if err != nil {
		handleError(w, r, err)
		return nil, primitive.NilObjectID, false
	}
	return tech, clientID, true
}

// AssignClient moves a client to this technician, removing it from any
// other technician in the same transaction.
func (h *TechnicianHandler) AssignClient(w http.ResponseWriter, r *http.Request) {
	tech, clientID, ok := h.assignmentTarget(w, r)
	if !ok {
		return
	}
	if !tech.IsActive {
		respondError(w, http.StatusBadRequest, "Cannot assign clients to an inactive technician")
		return
	}

	if _, err := h.clients.FindClientByID(r.Context(), clientID); errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Client not found")
		return
	} else if err != nil {
		handleError(w, r, err)
		return
	}

	err := h.tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.technicians.UnassignClient(ctx, clientID); err != nil {
			return err
		}
		return h.technicians.AssignClient(ctx, tech.ID, clientID)
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	updated, err := h.technicians.FindTechnicianByID(r.Context(), tech.ID.Hex())
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"technician": updated, "message": "Client assigned"})
}

// RemoveClient unassigns a client from this technician.
func (h *TechnicianHandler) RemoveClient(w http.ResponseWriter, r *http.Request) {
	tech, clientID, ok := h.assignmentTarget(w, r)
	if !ok {
		return
	}

	if err := h.technicians.RemoveClient(r.Context(), tech.ID, clientID); err != nil {
		handleError(w, r, err)
		return
	}
	tech.AssignedClients = lo.Without(tech.AssignedClients, clientID)
	respond(w, http.StatusOK, map[string]interface{}{"technician": tech, "message": "Client removed"})
}

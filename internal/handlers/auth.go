package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/pool-service/internal/auth"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/models"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService *auth.Service
	technicians db.TechnicianCollection
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, technicians db.TechnicianCollection) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		technicians: technicians,
	}
}

// Login handles technician login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	tech, err := h.technicians.FindTechnicianByEmail(r.Context(), email)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}

	// Check if technician is active before looking at the password
	if !tech.IsActive {
		respondError(w, http.StatusUnauthorized, "Account is deactivated")
		return
	}

	if !h.authService.CheckPassword(req.Password, tech.PasswordHash) {
		log.WithField("email", email).Warn("Failed login attempt")
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.authService.GenerateToken(tech)
	if err != nil {
		handleError(w, r, err)
		return
	}

	if err := h.technicians.UpdateLastLogin(r.Context(), tech.ID); err != nil {
		// Log error but don't fail the login
		log.WithError(err).WithField("technician_id", tech.ID.Hex()).Warn("Failed to update last login")
	} else {
		now := time.Now()
		tech.LastLogin = &now
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{
		Success:    true,
		Token:      token,
		Technician: *tech,
	})
}

// Me returns the authenticated technician's profile
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	tech, err := h.technicians.FindTechnicianByID(r.Context(), p.ID.Hex())
	if err != nil {
		handleError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"technician": tech})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword verifies the current password and stores a new hash
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if err := h.authService.ValidatePassword(req.NewPassword); err != nil {
		handleError(w, r, err)
		return
	}

	tech, err := h.technicians.FindTechnicianByID(r.Context(), p.ID.Hex())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !h.authService.CheckPassword(req.CurrentPassword, tech.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	hash, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		handleError(w, r, err)
		return
	}
	tech.PasswordHash = hash
	if err := h.technicians.UpdateTechnician(r.Context(), tech); err != nil {
		handleError(w, r, err)
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{"message": "Password updated"})
}

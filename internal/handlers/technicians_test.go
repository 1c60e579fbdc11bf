package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/pool-service/internal/auth"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTechnicianFixture() (*TechnicianHandler, *mockTechnicians, *mockClients, *mockVisits) {
	techs := &mockTechnicians{}
	clients := &mockClients{}
	visits := &mockVisits{}
	h := NewTechnicianHandler(auth.NewService("test-secret", time.Hour), techs, clients, visits, passthroughTx{})
	return h, techs, clients, visits
}

func TestTechnicianHandler_AssignClient_IsExclusive(t *testing.T) {
	h, techs, clients, _ := newTechnicianFixture()
	tech := &models.Technician{ID: primitive.NewObjectID(), Name: "Sam", Role: models.RoleTechnician, IsActive: true}
	client := maintenanceClient("Lopez")

	var order []string
	techs.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(tech, nil)
	clients.On("FindClientByID", mock.Anything, client.ID).Return(client, nil)
	techs.On("UnassignClient", mock.Anything, client.ID).
		Run(func(mock.Arguments) { order = append(order, "unassign") }).Return(nil)
	techs.On("AssignClient", mock.Anything, tech.ID, client.ID).
		Run(func(mock.Arguments) { order = append(order, "assign") }).Return(nil)

	w := httptest.NewRecorder()
	h.AssignClient(w, newRequest(t, http.MethodPost, "/api/technicians/x/assign-client",
		map[string]string{"clientId": client.ID.Hex()}, managerPrincipal(), tech.ID.Hex()))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"unassign", "assign"}, order)
}

func TestTechnicianHandler_AssignClient_InactiveTechnician(t *testing.T) {
	h, techs, _, _ := newTechnicianFixture()
	tech := &models.Technician{ID: primitive.NewObjectID(), Role: models.RoleTechnician, IsActive: false}
	techs.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(tech, nil)

	w := httptest.NewRecorder()
	h.AssignClient(w, newRequest(t, http.MethodPost, "/api/technicians/x/assign-client",
		map[string]string{"clientId": primitive.NewObjectID().Hex()}, managerPrincipal(), tech.ID.Hex()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	techs.AssertNotCalled(t, "AssignClient", mock.Anything, mock.Anything, mock.Anything)
}

func TestTechnicianHandler_Delete_Self(t *testing.T) {
	h, techs, _, _ := newTechnicianFixture()
	admin := managerPrincipal()
	techs.On("FindTechnicianByID", mock.Anything, admin.ID.Hex()).
		Return(&models.Technician{ID: admin.ID, Role: models.RoleAdmin, IsActive: true}, nil)

	w := httptest.NewRecorder()
	h.Delete(w, newRequest(t, http.MethodDelete, "/api/technicians/x", nil, admin, admin.ID.Hex()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	techs.AssertNotCalled(t, "DeleteTechnician", mock.Anything, mock.Anything)
}

func TestTechnicianHandler_Delete_BlockedByVisits(t *testing.T) {
	h, techs, _, visits := newTechnicianFixture()
	tech := &models.Technician{ID: primitive.NewObjectID(), Role: models.RoleTechnician, IsActive: true}
	techs.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(tech, nil)
	visits.On("CountVisits", mock.Anything, mock.Anything).Return(int64(4), nil)

	w := httptest.NewRecorder()
	h.Delete(w, newRequest(t, http.MethodDelete, "/api/technicians/x", nil, managerPrincipal(), tech.ID.Hex()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "4 service visit(s)")
}

func TestTechnicianHandler_SetActive_CannotDeactivateSelf(t *testing.T) {
	h, techs, _, _ := newTechnicianFixture()
	admin := managerPrincipal()
	techs.On("FindTechnicianByID", mock.Anything, admin.ID.Hex()).
		Return(&models.Technician{ID: admin.ID, Role: models.RoleAdmin, IsActive: true}, nil)

	w := httptest.NewRecorder()
	h.SetActive(w, newRequest(t, http.MethodPatch, "/api/technicians/x", nil, admin, admin.ID.Hex()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTechnicianHandler_Get_OtherTechnicianForbidden(t *testing.T) {
	h, techs, _, _ := newTechnicianFixture()
	other := &models.Technician{ID: primitive.NewObjectID(), Role: models.RoleTechnician, IsActive: true}
	techs.On("FindTechnicianByID", mock.Anything, other.ID.Hex()).Return(other, nil)

	w := httptest.NewRecorder()
	h.Get(w, newRequest(t, http.MethodGet, "/api/technicians/x", nil, technicianPrincipal(), other.ID.Hex()))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTechnicianHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]interface{}
		existing   *models.Technician
		wantStatus int
	}{
		{"hashes password and defaults role", map[string]interface{}{
			"name": " Sam Ortiz ", "email": "Sam@Example.com", "password": "pool-pass-1",
		}, nil, http.StatusCreated},
		{"duplicate email", map[string]interface{}{
			"name": "Sam", "email": "sam@example.com", "password": "pool-pass-1",
		}, &models.Technician{ID: primitive.NewObjectID(), Email: "sam@example.com"}, http.StatusConflict},
		{"short password", map[string]interface{}{
			"name": "Sam", "email": "sam@example.com", "password": "short",
		}, nil, http.StatusBadRequest},
		{"unknown role", map[string]interface{}{
			"name": "Sam", "email": "sam@example.com", "password": "pool-pass-1", "role": "owner",
		}, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, techs, _, _ := newTechnicianFixture()
			if tt.existing != nil {
				techs.On("FindTechnicianByEmail", mock.Anything, "sam@example.com").Return(tt.existing, nil)
			} else {
				techs.On("FindTechnicianByEmail", mock.Anything, "sam@example.com").Return(nil, models.ErrNotFound)
			}
			var inserted *models.Technician
			techs.On("InsertTechnician", mock.Anything, mock.AnythingOfType("*models.Technician")).
				Run(func(args mock.Arguments) { inserted = args.Get(1).(*models.Technician) }).
				Return(nil)

			w := httptest.NewRecorder()
			h.Create(w, newRequest(t, http.MethodPost, "/api/technicians", tt.body, managerPrincipal(), ""))

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusCreated {
				techs.AssertNotCalled(t, "InsertTechnician", mock.Anything, mock.Anything)
				return
			}
			require.NotNil(t, inserted)
			assert.Equal(t, "Sam Ortiz", inserted.Name)
			assert.Equal(t, "sam@example.com", inserted.Email)
			assert.Equal(t, models.RoleTechnician, inserted.Role)
			assert.NotEqual(t, "pool-pass-1", inserted.PasswordHash)
			assert.True(t, h.authService.CheckPassword("pool-pass-1", inserted.PasswordHash))
			assert.NotContains(t, w.Body.String(), inserted.PasswordHash)
		})
	}
}

func TestTechnicianHandler_Update(t *testing.T) {
	tests := []struct {
		name         string
		body         map[string]interface{}
		owner        *models.Technician
		wantStatus   int
		wantPassword string
	}{
		{"profile only keeps hash", map[string]interface{}{
			"name": "Sam", "email": "sam@example.com", "role": "supervisor",
		}, nil, http.StatusOK, "old-password"},
		{"password reset", map[string]interface{}{
			"name": "Sam", "email": "sam@example.com", "password": "new-password",
		}, nil, http.StatusOK, "new-password"},
		{"email owned by another technician", map[string]interface{}{
			"name": "Sam", "email": "kim@example.com",
		}, &models.Technician{ID: primitive.NewObjectID(), Email: "kim@example.com"}, http.StatusConflict, "old-password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, techs, _, _ := newTechnicianFixture()
			hash, err := h.authService.HashPassword("old-password")
			require.NoError(t, err)
			tech := &models.Technician{ID: primitive.NewObjectID(), Name: "Sam", Email: "sam@example.com", PasswordHash: hash, Role: models.RoleTechnician, IsActive: true}

			techs.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(tech, nil)
			if tt.owner != nil {
				techs.On("FindTechnicianByEmail", mock.Anything, tt.owner.Email).Return(tt.owner, nil)
			}
			techs.On("UpdateTechnician", mock.Anything, tech).Return(nil)

			w := httptest.NewRecorder()
			h.Update(w, newRequest(t, http.MethodPut, "/api/technicians/x", tt.body, managerPrincipal(), tech.ID.Hex()))

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.True(t, h.authService.CheckPassword(tt.wantPassword, tech.PasswordHash))
			if tt.wantStatus == http.StatusConflict {
				techs.AssertNotCalled(t, "UpdateTechnician", mock.Anything, mock.Anything)
				return
			}
			techs.AssertCalled(t, "UpdateTechnician", mock.Anything, tech)
			if role, ok := tt.body["role"]; ok {
				assert.Equal(t, models.Role(role.(string)), tech.Role)
			} else {
				assert.Equal(t, models.RoleTechnician, tech.Role)
			}
		})
	}
}

func TestTechnicianHandler_RemoveClient(t *testing.T) {
	keep, drop := primitive.NewObjectID(), primitive.NewObjectID()

	tests := []struct {
		name       string
		clientID   string
		removeErr  error
		wantStatus int
	}{
		{"removes assignment", drop.Hex(), nil, http.StatusOK},
		{"missing client id", "", nil, http.StatusBadRequest},
		{"technician gone", drop.Hex(), models.ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, techs, _, _ := newTechnicianFixture()
			tech := &models.Technician{ID: primitive.NewObjectID(), Name: "Sam", Role: models.RoleTechnician, IsActive: true,
				AssignedClients: []primitive.ObjectID{keep, drop}}
			techs.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(tech, nil)
			techs.On("RemoveClient", mock.Anything, tech.ID, drop).Return(tt.removeErr)

			w := httptest.NewRecorder()
			h.RemoveClient(w, newRequest(t, http.MethodPost, "/api/technicians/x/remove-client",
				map[string]string{"clientId": tt.clientID}, managerPrincipal(), tech.ID.Hex()))

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			assigned := decodeBody(t, w)["technician"].(map[string]interface{})["assignedClients"].([]interface{})
			assert.Equal(t, []interface{}{keep.Hex()}, assigned)
			techs.AssertCalled(t, "RemoveClient", mock.Anything, tech.ID, drop)
		})
	}
}

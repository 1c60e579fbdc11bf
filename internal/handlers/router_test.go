package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/pool-service/internal/auth"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestRouter(techs *mockTechnicians, ping Pinger) (http.Handler, *auth.Service) {
	svc := auth.NewService("router-test-secret", time.Hour)
	return NewRouter(Dependencies{
		Auth:        svc,
		Clients:     &mockClients{},
		Pools:       &mockPools{},
		Technicians: techs,
		Visits:      &mockVisits{},
		FollowUps:   &mockFollowUps{},
		Billing:     &mockBilling{},
		Inventory:   &mockInventory{},
		RouteStatus: &mockRouteStatuses{},
		Tx:          passthroughTx{},
		Ping:        ping,
		Clock:       testClock(),
	}), svc
}

func bearer(t *testing.T, svc *auth.Service, tech *models.Technician) string {
	t.Helper()
	token, err := svc.GenerateToken(tech)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name     string
		ping     Pinger
		status   string
		database string
	}{
		{"connected", func(context.Context) error { return nil }, "ok", "connected"},
		{"degraded", func(context.Context) error { return errors.New("no reachable servers") }, "degraded", "no reachable servers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(&mockTechnicians{}, tt.ping)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tt.status, body["status"])
			assert.Equal(t, tt.database, body["database"])
		})
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	router, _ := newTestRouter(&mockTechnicians{}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/clients", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["success"])
}

func TestRouter_InactiveTechnicianRejected(t *testing.T) {
	techs := &mockTechnicians{}
	router, svc := newTestRouter(techs, nil)
	tech := &models.Technician{ID: primitive.NewObjectID(), Email: "tech@example.com", Role: models.RoleTechnician, IsActive: false}
	techs.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(tech, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", bearer(t, svc, tech))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_TechnicianCannotCreateClient(t *testing.T) {
	techs := &mockTechnicians{}
	router, svc := newTestRouter(techs, nil)
	tech := &models.Technician{ID: primitive.NewObjectID(), Email: "tech@example.com", Role: models.RoleTechnician, IsActive: true}
	techs.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(tech, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/clients", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Authorization", bearer(t, svc, tech))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Insufficient permissions", decodeBody(t, w)["error"])
}

func TestRouter_SupervisorCannotManageTechnicians(t *testing.T) {
	techs := &mockTechnicians{}
	router, svc := newTestRouter(techs, nil)
	sup := &models.Technician{ID: primitive.NewObjectID(), Email: "sup@example.com", Role: models.RoleSupervisor, IsActive: true}
	techs.On("FindTechnicianByID", mock.Anything, sup.ID.Hex()).Return(sup, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/technicians", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, svc, sup))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	techs := &mockTechnicians{}
	router, svc := newTestRouter(techs, nil)
	admin := &models.Technician{ID: primitive.NewObjectID(), Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true}
	techs.On("FindTechnicianByID", mock.Anything, admin.ID.Hex()).Return(admin, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil)
	req.Header.Set("Authorization", bearer(t, svc, admin))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", decodeBody(t, w)["error"])
}

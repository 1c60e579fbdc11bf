package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/events"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type routeFixture struct {
	h           *RouteHandler
	technicians *mockTechnicians
	clients     *mockClients
	pools       *mockPools
	visits      *mockVisits
	statuses    *mockRouteStatuses
	publisher   *mockPublisher
}

func newRouteFixture() routeFixture {
	f := routeFixture{
		technicians: &mockTechnicians{},
		clients:     &mockClients{},
		pools:       &mockPools{},
		visits:      &mockVisits{},
		statuses:    &mockRouteStatuses{},
		publisher:   &mockPublisher{},
	}
	f.h = NewRouteHandler(f.technicians, f.clients, f.pools, f.visits, f.statuses, passthroughTx{}, f.publisher, testClock())
	return f
}

func TestRouteHandler_Today_ManagerSeesAllStops(t *testing.T) {
	f := newRouteFixture()
	adams, baker := maintenanceClient("Adams"), maintenanceClient("Baker")
	visit := models.ServiceVisit{ID: primitive.NewObjectID(), ClientID: adams.ID, Status: models.VisitInProgress, ServiceDate: testNow}

	f.clients.On("FindClients", mock.Anything, mock.MatchedBy(func(filter db.ClientFilter) bool {
		return filter.Scope == nil && filter.ServiceDay == "monday" && filter.ClientType == "maintenance"
	}), db.Page{}).Return([]models.Client{*baker, *adams}, int64(2), nil)
	f.pools.On("CountPoolsByClient", mock.Anything, mock.Anything).Return(map[primitive.ObjectID]int{adams.ID: 2}, nil)
	f.statuses.On("FindRouteStatuses", mock.Anything, db.RouteStatusFilter{Date: "2026-10-19"}).
		Return([]models.RouteStatus{{ClientID: baker.ID, Status: models.RouteSkipped, Notes: "Gate locked"}}, nil)
	f.visits.On("FindVisits", mock.Anything, mock.Anything, db.Page{}).Return([]models.ServiceVisit{visit}, int64(1), nil)

	w := httptest.NewRecorder()
	f.h.Today(w, newRequest(t, http.MethodGet, "/api/routes/today", nil, managerPrincipal(), ""))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "2026-10-19", body["date"])
	assert.Equal(t, "monday", body["dayOfWeek"])
	assert.NotContains(t, body, "technician")

	route := body["route"].([]interface{})
	require.Len(t, route, 2)
	first, second := route[0].(map[string]interface{}), route[1].(map[string]interface{})
	assert.Equal(t, "Adams", first["clientName"])
	assert.Equal(t, "8:00 AM", first["estimatedTime"])
	assert.Equal(t, "in-progress", first["status"])
	assert.Equal(t, "visit", first["statusSource"])
	assert.Equal(t, float64(45), first["estimatedDuration"])
	assert.Equal(t, "Baker", second["clientName"])
	assert.Equal(t, "9:30 AM", second["estimatedTime"])
	assert.Equal(t, "skipped", second["status"])
	assert.Equal(t, "route_status", second["statusSource"])

	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["total"])
	assert.Equal(t, float64(1), summary["inProgress"])
	assert.Equal(t, float64(1), summary["skipped"])
}

func TestRouteHandler_Today_TechnicianCannotViewOthers(t *testing.T) {
	f := newRouteFixture()
	w := httptest.NewRecorder()
	f.h.Today(w, newRequest(t, http.MethodGet, "/api/routes/today?technicianId="+primitive.NewObjectID().Hex(), nil, technicianPrincipal(), ""))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouteHandler_Today_TechnicianNoAssignments(t *testing.T) {
	f := newRouteFixture()
	p := technicianPrincipal()
	f.technicians.On("FindTechnicianByID", mock.Anything, p.ID.Hex()).
		Return(&models.Technician{ID: p.ID, Name: "Tech", Role: models.RoleTechnician, AssignedClients: []primitive.ObjectID{}}, nil)
	f.clients.On("FindClients", mock.Anything, mock.MatchedBy(func(filter db.ClientFilter) bool {
		return filter.Scope != nil && len(filter.Scope) == 0
	}), db.Page{}).Return([]models.Client{}, int64(0), nil)

	w := httptest.NewRecorder()
	f.h.Today(w, newRequest(t, http.MethodGet, "/api/routes/today?date=2026-10-20", nil, p, ""))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "tuesday", body["dayOfWeek"])
	assert.Empty(t, body["route"])
	assert.Equal(t, "Tech", body["technician"].(map[string]interface{})["name"])
	f.pools.AssertNotCalled(t, "CountPoolsByClient", mock.Anything, mock.Anything)
}

func TestRouteHandler_UpdateStatus_CreatesVisit(t *testing.T) {
	f := newRouteFixture()
	client := maintenanceClient("Adams")
	tech := technicianPrincipal(client.ID)

	f.clients.On("FindClientByID", mock.Anything, client.ID).Return(client, nil)
	f.technicians.On("FindTechnicianByClient", mock.Anything, client.ID).Return(nil, models.ErrNotFound)
	f.visits.On("FindVisits", mock.Anything, mock.MatchedBy(func(filter db.VisitFilter) bool {
		return filter.ClientID != nil && *filter.ClientID == client.ID
	}), db.Page{Number: 1, Limit: 1}).Return([]models.ServiceVisit{}, int64(0), nil)

	var inserted *models.ServiceVisit
	f.visits.On("InsertVisit", mock.Anything, mock.AnythingOfType("*models.ServiceVisit")).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*models.ServiceVisit) }).
		Return(nil).Once()
	f.clients.On("SetClientLastService", mock.Anything, client.ID, testNow).Return(nil)
	f.statuses.On("UpsertRouteStatus", mock.Anything, mock.MatchedBy(func(rs *models.RouteStatus) bool {
		return rs.ClientID == client.ID && rs.TechnicianID == tech.ID && rs.Date == "2026-10-19" &&
			rs.Status == models.RouteCompleted && rs.VisitID != nil
	})).Return(nil).Once()
	f.publisher.On("PublishRouteStatus", mock.Anything, mock.MatchedBy(func(ev events.RouteStatusChanged) bool {
		return ev.ClientID == client.ID.Hex() && ev.Status == models.RouteCompleted && ev.VisitID != ""
	})).Return(nil).Once()

	w := httptest.NewRecorder()
	f.h.UpdateStatus(w, newRequest(t, http.MethodPost, "/api/routes/update-status", map[string]interface{}{
		"clientId": client.ID.Hex(),
		"status":   "completed",
	}, tech, ""))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, inserted)
	assert.Equal(t, "maintenance-routine", inserted.ServiceType)
	assert.Equal(t, models.VisitCompleted, inserted.Status)
	assert.Equal(t, testNow, inserted.ServiceDate)
	assert.Equal(t, float64(95), inserted.TotalAmount)

	visit := decodeBody(t, w)["visit"].(map[string]interface{})
	assert.Equal(t, inserted.ID.Hex(), visit["id"])
	f.visits.AssertExpectations(t)
	f.statuses.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestRouteHandler_UpdateStatus_UpdatesExistingVisit(t *testing.T) {
	f := newRouteFixture()
	client := maintenanceClient("Adams")
	assigned := primitive.NewObjectID()
	existing := models.ServiceVisit{ID: primitive.NewObjectID(), ClientID: client.ID, Status: models.VisitScheduled, ServiceDate: testNow}

	f.clients.On("FindClientByID", mock.Anything, client.ID).Return(client, nil)
	f.technicians.On("FindTechnicianByClient", mock.Anything, client.ID).Return(&models.Technician{ID: assigned}, nil)
	f.visits.On("FindVisits", mock.Anything, mock.Anything, db.Page{Number: 1, Limit: 1}).Return([]models.ServiceVisit{existing}, int64(1), nil)
	f.visits.On("SetVisitStatus", mock.Anything, existing.ID, models.VisitInProgress, (*time.Time)(nil)).Return(nil).Once()
	f.statuses.On("UpsertRouteStatus", mock.Anything, mock.MatchedBy(func(rs *models.RouteStatus) bool {
		return rs.TechnicianID == assigned && rs.VisitID != nil && *rs.VisitID == existing.ID
	})).Return(nil).Once()
	f.publisher.On("PublishRouteStatus", mock.Anything, mock.MatchedBy(func(ev events.RouteStatusChanged) bool {
		return ev.TechnicianID == assigned.Hex()
	})).Return(errors.New("broker down"))

	w := httptest.NewRecorder()
	f.h.UpdateStatus(w, newRequest(t, http.MethodPost, "/api/routes/update-status", map[string]interface{}{
		"clientId": client.ID.Hex(),
		"status":   "in-progress",
		"notes":    "Started",
	}, managerPrincipal(), ""))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "in-progress", body["visit"].(map[string]interface{})["status"])
	assert.Equal(t, "Started", body["routeStatus"].(map[string]interface{})["notes"])
	f.visits.AssertNotCalled(t, "InsertVisit", mock.Anything, mock.Anything)
	f.clients.AssertNotCalled(t, "SetClientLastService", mock.Anything, mock.Anything, mock.Anything)
	f.visits.AssertExpectations(t)
	f.statuses.AssertExpectations(t)
}

func TestRouteHandler_UpdateStatus_OverrideOnlyStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		existing []models.ServiceVisit
	}{
		{"pending without visit", models.RoutePending, nil},
		{"skipped without visit", models.RouteSkipped, nil},
		{"pending with visit", models.RoutePending, []models.ServiceVisit{{ID: primitive.NewObjectID(), Status: models.VisitScheduled}}},
		{"skipped with visit", models.RouteSkipped, []models.ServiceVisit{{ID: primitive.NewObjectID(), Status: models.VisitScheduled}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouteFixture()
			client := maintenanceClient("Adams")
			tech := technicianPrincipal(client.ID)

			f.clients.On("FindClientByID", mock.Anything, client.ID).Return(client, nil)
			f.technicians.On("FindTechnicianByClient", mock.Anything, client.ID).Return(&models.Technician{ID: tech.ID}, nil)
			f.visits.On("FindVisits", mock.Anything, mock.Anything, db.Page{Number: 1, Limit: 1}).
				Return(tt.existing, int64(len(tt.existing)), nil)
			f.statuses.On("UpsertRouteStatus", mock.Anything, mock.MatchedBy(func(rs *models.RouteStatus) bool {
				if rs.Status != tt.status || rs.TechnicianID != tech.ID {
					return false
				}
				if len(tt.existing) == 0 {
					return rs.VisitID == nil
				}
				return rs.VisitID != nil && *rs.VisitID == tt.existing[0].ID
			})).Return(nil).Once()
			f.publisher.On("PublishRouteStatus", mock.Anything, mock.Anything).Return(nil)

			w := httptest.NewRecorder()
			f.h.UpdateStatus(w, newRequest(t, http.MethodPost, "/api/routes/update-status", map[string]interface{}{
				"clientId": client.ID.Hex(),
				"status":   tt.status,
			}, tech, ""))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			f.statuses.AssertExpectations(t)
			f.visits.AssertNotCalled(t, "InsertVisit", mock.Anything, mock.Anything)
			f.visits.AssertNotCalled(t, "UpdateVisit", mock.Anything, mock.Anything)
			f.visits.AssertNotCalled(t, "SetVisitStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.clients.AssertNotCalled(t, "SetClientLastService", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRouteHandler_UpdateStatus_ManagerRecordsForAssignedTechnician(t *testing.T) {
	f := newRouteFixture()
	client := maintenanceClient("Adams")
	assigned := primitive.NewObjectID()

	f.clients.On("FindClientByID", mock.Anything, client.ID).Return(client, nil)
	f.technicians.On("FindTechnicianByClient", mock.Anything, client.ID).Return(&models.Technician{ID: assigned}, nil)
	f.visits.On("FindVisits", mock.Anything, mock.Anything, db.Page{Number: 1, Limit: 1}).Return([]models.ServiceVisit{}, int64(0), nil)
	f.statuses.On("UpsertRouteStatus", mock.Anything, mock.MatchedBy(func(rs *models.RouteStatus) bool {
		return rs.TechnicianID == assigned
	})).Return(nil).Once()
	f.publisher.On("PublishRouteStatus", mock.Anything, mock.Anything).Return(nil)

	w := httptest.NewRecorder()
	f.h.UpdateStatus(w, newRequest(t, http.MethodPost, "/api/routes/update-status", map[string]interface{}{
		"clientId": client.ID.Hex(),
		"status":   "skipped",
	}, managerPrincipal(), ""))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.statuses.AssertExpectations(t)
}

func TestRouteHandler_UpdateStatus_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing client", map[string]interface{}{"status": "completed"}},
		{"bad status", map[string]interface{}{"clientId": primitive.NewObjectID().Hex(), "status": "done"}},
		{"bad date", map[string]interface{}{"clientId": primitive.NewObjectID().Hex(), "status": "completed", "date": "10/19/2026"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouteFixture()
			w := httptest.NewRecorder()
			f.h.UpdateStatus(w, newRequest(t, http.MethodPost, "/api/routes/update-status", tt.body, managerPrincipal(), ""))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRouteHandler_ClearStatuses_TechnicianScoped(t *testing.T) {
	f := newRouteFixture()
	p := technicianPrincipal()
	f.statuses.On("DeleteRouteStatuses", mock.Anything, mock.MatchedBy(func(filter db.RouteStatusFilter) bool {
		return filter.Date == "2026-10-19" && filter.TechnicianID != nil && *filter.TechnicianID == p.ID
	})).Return(int64(3), nil)

	w := httptest.NewRecorder()
	f.h.ClearStatuses(w, newRequest(t, http.MethodDelete, "/api/routes/status", nil, p, ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decodeBody(t, w)["deleted"])
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/pool-service/internal/middleware"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// testNow is a Monday.
var testNow = time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)

func testClock() Clock {
	return Clock{Now: func() time.Time { return testNow }, Location: time.UTC}
}

func managerPrincipal() *models.Principal {
	return &models.Principal{ID: primitive.NewObjectID(), Name: "Admin", Role: models.RoleAdmin}
}

func technicianPrincipal(assigned ...primitive.ObjectID) *models.Principal {
	return &models.Principal{
		ID:              primitive.NewObjectID(),
		Name:            "Tech",
		Role:            models.RoleTechnician,
		AssignedClients: assigned,
	}
}

// newRequest builds a request carrying body as JSON, the principal and an
// optional {id} route parameter.
func newRequest(t *testing.T, method, target string, body interface{}, p *models.Principal, id string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := req.Context()
	if p != nil {
		ctx = middleware.WithPrincipal(ctx, p)
	}
	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func maintenanceClient(name string) *models.Client {
	return &models.Client{
		ID:         primitive.NewObjectID(),
		Name:       name,
		Email:      "client@example.com",
		Phone:      "5551234567",
		ClientType: models.ClientMaintenance,
		Maintenance: &models.MaintenanceProgram{
			ServiceFrequency: "weekly",
			ServiceDay:       "monday",
			PreferredTime:    "morning",
			RatePerVisit:     95,
		},
		IsActive: true,
	}
}

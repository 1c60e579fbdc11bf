package middleware

import (
	"context"
	"encoding/json"
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

type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) FindTechnicianByID(ctx context.Context, id string) (*models.Technician, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Technician), args.Error(1)
}

func newTechnician(role models.Role, active bool) *models.Technician {
	return &models.Technician{
		ID:              primitive.NewObjectID(),
		Name:            "Test Tech",
		Email:           "tech@example.com",
		Role:            role,
		IsActive:        active,
		AssignedClients: []primitive.ObjectID{primitive.NewObjectID()},
	}
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)

	t.Run("valid token", func(t *testing.T) {
		tech := newTechnician(models.RoleTechnician, true)
		finder := new(mockFinder)
		finder.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(tech, nil)
		mw := NewAuthMiddleware(authService, finder)

		token, err := authService.GenerateToken(tech)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			principal, ok := GetPrincipal(r.Context())
			assert.True(t, ok)
			assert.Equal(t, tech.ID, principal.ID)
			assert.Equal(t, tech.AssignedClients, principal.AssignedClients)
		})

		mw.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
		finder.AssertExpectations(t)
	})

	t.Run("missing authorization header", func(t *testing.T) {
		mw := NewAuthMiddleware(authService, new(mockFinder))
		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		mw.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, false, errorBody(t, w)["success"])
	})

	t.Run("invalid token", func(t *testing.T) {
		mw := NewAuthMiddleware(authService, new(mockFinder))
		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		mw.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("inactive technician", func(t *testing.T) {
		tech := newTechnician(models.RoleAdmin, false)
		finder := new(mockFinder)
		finder.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(tech, nil)
		mw := NewAuthMiddleware(authService, finder)

		token, err := authService.GenerateToken(tech)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		mw.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("deleted technician", func(t *testing.T) {
		tech := newTechnician(models.RoleAdmin, true)
		finder := new(mockFinder)
		finder.On("FindTechnicianByID", mock.Anything, tech.ID.Hex()).Return(nil, models.ErrNotFound)
		mw := NewAuthMiddleware(authService, finder)

		token, err := authService.GenerateToken(tech)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		mw.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("skip auth path", func(t *testing.T) {
		mw := NewAuthMiddleware(authService, new(mockFinder))
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		mw.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	mw := NewAuthMiddleware(auth.NewService("test-secret", time.Hour), new(mockFinder))

	cases := []struct {
		name     string
		role     models.Role
		allowed  []models.Role
		expected int
	}{
		{"admin on manager route", models.RoleAdmin, []models.Role{models.RoleAdmin, models.RoleSupervisor}, http.StatusOK},
		{"supervisor on manager route", models.RoleSupervisor, []models.Role{models.RoleAdmin, models.RoleSupervisor}, http.StatusOK},
		{"technician on manager route", models.RoleTechnician, []models.Role{models.RoleAdmin, models.RoleSupervisor}, http.StatusForbidden},
		{"supervisor on admin route", models.RoleSupervisor, []models.Role{models.RoleAdmin}, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/technicians", nil)
			req = req.WithContext(WithPrincipal(req.Context(), &models.Principal{ID: primitive.NewObjectID(), Role: tc.role}))
			w := httptest.NewRecorder()

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			mw.RequireRole(tc.allowed...)(handler).ServeHTTP(w, req)
			assert.Equal(t, tc.expected, w.Code)
		})
	}

	t.Run("no principal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/technicians", nil)
		w := httptest.NewRecorder()
		mw.RequireManager()(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("rate limit not exceeded", func(t *testing.T) {
		middleware := NewRateLimitMiddleware(false)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.RateLimit(5, 60)(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rate limit exceeded then window passes", func(t *testing.T) {
		middleware := NewRateLimitMiddleware(false)
		now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
		middleware.now = func() time.Time { return now }

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.168.1.2:12345"

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})
		limited := middleware.RateLimit(1, 60)(handler)

		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		assert.True(t, handlerCalled)

		w = httptest.NewRecorder()
		handlerCalled = false
		limited.ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)

		now = now.Add(61 * time.Second)
		w = httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("client address", func(t *testing.T) {
		tests := []struct {
			name       string
			trustProxy bool
			want       string
		}{
			{"forwarded address behind trusted proxy", true, "10.0.0.1"},
			{"forwarded address ignored by default", false, "192.168.1.9"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = "192.168.1.9:4000"
				req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
				assert.Equal(t, tt.want, getClientIP(req, tt.trustProxy))
			})
		}
	})

	t.Run("spoofed forwarded header does not reset the limit", func(t *testing.T) {
		middleware := NewRateLimitMiddleware(false)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
		limited := middleware.RateLimit(1, 60)(handler)

		for i, forwarded := range []string{"1.1.1.1", "2.2.2.2"} {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = "192.168.1.3:12345"
			req.Header.Set("X-Forwarded-For", forwarded)
			w := httptest.NewRecorder()
			limited.ServeHTTP(w, req)
			if i == 0 {
				assert.Equal(t, http.StatusOK, w.Code)
			} else {
				assert.Equal(t, http.StatusTooManyRequests, w.Code)
			}
		}
	})

	t.Run("stale addresses are evicted", func(t *testing.T) {
		middleware := NewRateLimitMiddleware(false)
		now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
		middleware.now = func() time.Time { return now }
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
		limited := middleware.RateLimit(5, 60)(handler)

		for _, addr := range []string{"10.1.0.1:1", "10.1.0.2:1", "10.1.0.3:1"} {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = addr
			limited.ServeHTTP(httptest.NewRecorder(), req)
		}
		assert.Equal(t, 3, middleware.tracked())

		now = now.Add(2 * time.Minute)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.1.0.4:1"
		limited.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, 1, middleware.tracked())
	})
}

func TestGetPrincipal(t *testing.T) {
	principal := &models.Principal{ID: primitive.NewObjectID(), Role: models.RoleAdmin}

	got, ok := GetPrincipal(WithPrincipal(context.Background(), principal))
	assert.True(t, ok)
	assert.Equal(t, principal, got)

	_, ok = GetPrincipal(context.Background())
	assert.False(t, ok)
}

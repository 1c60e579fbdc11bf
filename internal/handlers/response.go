package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/middleware"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Clock supplies the current time and the zone "today" is decided in.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// SystemClock uses the wall clock in loc.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{Now: time.Now, Location: loc}
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now().In(c.loc())
	}
	return c.Now().In(c.loc())
}

func (c Clock) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// respond writes the success envelope with payload fields merged in.
func respond(w http.ResponseWriter, status int, payload map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

// handleError maps model sentinel errors to status codes. Anything else is a
// 500 carrying the error message.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		respondError(w, http.StatusConflict, "Resource already exists")
	case errors.Is(err, models.ErrHasDependents):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrForbidden):
		respondError(w, http.StatusForbidden, "Access denied")
	default:
		log.WithError(err).WithFields(log.Fields{
			"request_id": middleware.GetRequestID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("Request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON reads the whole body and unmarshals it into v.
func decodeJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return models.Invalid("Failed to read request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return models.Invalid("Request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return models.Invalid("Invalid JSON")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return models.Invalid("Failed to read request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return models.Invalid("Invalid JSON")
	}
	return nil
}

func pathID(r *http.Request) (primitive.ObjectID, error) {
	return db.ParseObjectID(chi.URLParam(r, "id"))
}

func queryObjectID(r *http.Request, name string) (*primitive.ObjectID, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(v)
	if err != nil {
		return nil, models.Invalid("invalid " + name)
	}
	return &id, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, models.Invalid(name + " must be true or false")
	}
	return &b, nil
}

// parseDate accepts YYYY-MM-DD in loc or RFC3339.
func parseDate(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(models.DateLayout, v, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// queryDateRange reads startDate and endDate. A plain endDate covers the
// whole day.
func queryDateRange(r *http.Request, loc *time.Location) (start, end *time.Time, err error) {
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("startDate")); v != "" {
		t, perr := parseDate(v, loc)
		if perr != nil {
			return nil, nil, models.Invalid("invalid startDate")
		}
		start = &t
	}
	if v := strings.TrimSpace(q.Get("endDate")); v != "" {
		t, perr := parseDate(v, loc)
		if perr != nil {
			return nil, nil, models.Invalid("invalid endDate")
		}
		if len(v) == len(models.DateLayout) {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, models.Invalid("endDate must not be before startDate")
	}
	return start, end, nil
}

// parsePage reads page and limit; limit defaults to 50 and is capped.
func parsePage(r *http.Request) (db.Page, error) {
	q := r.URL.Query()
	page := db.Page{Number: 1, Limit: defaultPageLimit}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, models.Invalid("page must be a positive integer")
		}
		page.Number = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, models.Invalid("limit must be a positive integer")
		}
		page.Limit = min(n, maxPageLimit)
	}
	return page, nil
}

func pagination(page db.Page, total int64) map[string]interface{} {
	pages := 0
	if page.Limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(page.Limit)))
	}
	return map[string]interface{}{
		"page":  page.Number,
		"limit": page.Limit,
		"total": total,
		"pages": pages,
	}
}

// principalFrom returns the authenticated caller. Routes are mounted behind
// Authenticate, so a missing principal is a wiring error.
func principalFrom(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return p, true
}

// scopeFor limits technicians to their assigned clients.
func scopeFor(p *models.Principal) db.Scope {
	if p.Role.IsManager() {
		return nil
	}
	return append(db.Scope{}, p.AssignedClients...)
}

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ukydev/pool-service/internal/models"
	"github.com/ukydev/pool-service/internal/weather"
)

// WeatherProvider returns current conditions for a location.
type WeatherProvider interface {
	Current(ctx context.Context, q weather.Query) weather.Report
}

// WeatherHandler serves /api/weather.
type WeatherHandler struct {
	provider    WeatherProvider
	defaultCity string
}

// NewWeatherHandler creates a weather handler. defaultCity is used when the
// request names no location.
func NewWeatherHandler(provider WeatherProvider, defaultCity string) *WeatherHandler {
	return &WeatherHandler{provider: provider, defaultCity: defaultCity}
}

func queryFloat(r *http.Request, name string) (*float64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, models.Invalid(name + " must be a number")
	}
	return &f, nil
}

// Current returns weather by city or lat/lon.
func (h *WeatherHandler) Current(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		handleError(w, r, err)
		return
	}
	lon, err := queryFloat(r, "lon")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if (lat == nil) != (lon == nil) {
		respondError(w, http.StatusBadRequest, "lat and lon must be given together")
		return
	}

	q := weather.Query{City: strings.TrimSpace(r.URL.Query().Get("city")), Lat: lat, Lon: lon}
	if q.City == "" && q.Lat == nil {
		q.City = h.defaultCity
	}
	respond(w, http.StatusOK, map[string]interface{}{"weather": h.provider.Current(r.Context(), q)})
}

// Package weather fetches current conditions for the technician dashboard.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sources reported on a Report.
const (
	SourceUpstream = "openweathermap"
	SourceMock     = "mock"
)

// Query selects a location by city name or coordinates.
type Query struct {
	City string
	Lat  *float64
	Lon  *float64
}

// Report is the current weather at a location, in imperial units.
type Report struct {
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	Source      string    `json:"source"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Client calls the OpenWeatherMap current weather endpoint.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// NewClient creates a weather client. An empty apiKey makes every call
// return mock data.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Current returns upstream conditions, falling back to mock data when no
// key is configured or the upstream call fails.
func (c *Client) Current(ctx context.Context, q Query) Report {
	if c.apiKey == "" {
		return c.mock(q)
	}
	r, err := c.fetch(ctx, q)
	if err != nil {
		log.WithError(err).WithField("city", q.City).Warn("Weather upstream failed, using mock data")
		return c.mock(q)
	}
	return r
}

func (c *Client) fetch(ctx context.Context, q Query) (Report, error) {
	params := url.Values{}
	params.Set("appid", c.apiKey)
	params.Set("units", "imperial")
	switch {
	case q.Lat != nil && q.Lon != nil:
		params.Set("lat", strconv.FormatFloat(*q.Lat, 'f', 6, 64))
		params.Set("lon", strconv.FormatFloat(*q.Lon, 'f', 6, 64))
	case q.City != "":
		params.Set("q", q.City)
	default:
		return Report{}, fmt.Errorf("city or lat/lon required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Report{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("weather status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Report{}, err
	}

	var obj struct {
		Name string `json:"name"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return Report{}, err
	}

	r := Report{
		Location:    obj.Name,
		Temperature: obj.Main.Temp,
		FeelsLike:   obj.Main.FeelsLike,
		Humidity:    obj.Main.Humidity,
		WindSpeed:   obj.Wind.Speed,
		Source:      SourceUpstream,
		FetchedAt:   c.now(),
	}
	if len(obj.Weather) > 0 {
		r.Description = obj.Weather[0].Description
		r.Icon = obj.Weather[0].Icon
	}
	return r, nil
}

func (c *Client) mock(q Query) Report {
	loc := q.City
	if loc == "" {
		loc = "Service Area"
	}
	return Report{
		Location:    loc,
		Temperature: 78,
		FeelsLike:   80,
		Humidity:    55,
		WindSpeed:   8,
		Description: "partly cloudy",
		Icon:        "02d",
		Source:      SourceMock,
		FetchedAt:   c.now(),
	}
}

// Command seed fills a running pool-service API with demo data: technicians,
// clients with pools, inventory, and a couple of weeks of completed visits.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	log "github.com/sirupsen/logrus"
)

const demoPassword = "PoolDemo123!"

var (
	weekdays     = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
	frequencies  = []string{"weekly", "weekly", "bi-weekly", "monthly"}
	times        = []string{"morning", "afternoon", "evening", "anytime"}
	clientTypes  = []string{"maintenance", "maintenance", "maintenance", "service", "retail"}
	shapes       = []string{"rectangular", "circular", "oval", "kidney", "freeform"}
	repairs      = []string{"service-pump-repair", "service-filter-clean", "service-leak-detection"}
	retailOrders = []string{"retail-chemical-delivery", "retail-equipment-delivery"}
)

type inventorySeed struct {
	Name     string
	Category string
	Unit     string
	Cost     float64
}

var inventory = []inventorySeed{
	{"Liquid Chlorine", "chemical", "gallon", 4.5},
	{"Chlorine Tablets", "chemical", "lb", 3.25},
	{"Muriatic Acid", "chemical", "gallon", 9},
	{"Sodium Bicarbonate", "chemical", "lb", 0.9},
	{"Cyanuric Acid", "chemical", "lb", 4},
	{"Pump Seal Kit", "part", "each", 28},
	{"Filter Cartridge", "part", "each", 65},
	{"Skimmer Basket", "part", "each", 18},
}

// apiClient calls the pool-service API and unwraps its JSON envelope.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// do sends body as JSON and decodes the response into out. Non-2xx
// responses return the API's error message.
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		var envelope struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &envelope)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, envelope.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *apiClient) login(ctx context.Context, email, password string) error {
	var res struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &res); err != nil {
		return err
	}
	if res.Token == "" {
		return errors.New("login returned no token")
	}
	c.token = res.Token
	return nil
}

type created struct {
	ID string `json:"id"`
}

// create posts body and returns the id of the record under key.
func (c *apiClient) create(ctx context.Context, path, key string, body interface{}) (string, error) {
	var res map[string]json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return "", err
	}
	var rec created
	if err := json.Unmarshal(res[key], &rec); err != nil || rec.ID == "" {
		return "", fmt.Errorf("%s: no %s id in response", path, key)
	}
	return rec.ID, nil
}

type seeder struct {
	api   *apiClient
	faker *gofakeit.Faker
	now   time.Time
}

func (s *seeder) technicianPayload(i int) map[string]interface{} {
	first := s.faker.FirstName()
	return map[string]interface{}{
		"name":     first + " " + s.faker.LastName(),
		"email":    fmt.Sprintf("%s.tech%d@poolservice.local", strings.ToLower(first), i+1),
		"phone":    s.faker.Phone(),
		"password": demoPassword,
		"role":     "technician",
	}
}

func (s *seeder) clientPayload() map[string]interface{} {
	clientType := s.faker.RandomString(clientTypes)
	payload := map[string]interface{}{
		"name":  s.faker.Name(),
		"email": s.faker.Email(),
		"phone": s.faker.Phone(),
		"address": map[string]string{
			"street": s.faker.Street(),
			"city":   s.faker.City(),
			"state":  s.faker.StateAbr(),
			"zip":    s.faker.Zip(),
		},
		"clientType": clientType,
	}
	switch clientType {
	case "maintenance":
		payload["maintenance"] = map[string]interface{}{
			"serviceFrequency": s.faker.RandomString(frequencies),
			"serviceDay":       s.faker.RandomString(weekdays),
			"preferredTime":    s.faker.RandomString(times),
			"ratePerVisit":     float64(s.faker.Number(65, 140)),
		}
	case "service":
		payload["service"] = map[string]interface{}{"laborRate": float64(s.faker.Number(75, 120))}
	}
	return payload
}

func (s *seeder) poolPayload(clientID string, i int) map[string]interface{} {
	shape := s.faker.RandomString(shapes)
	dims := map[string]float64{
		"shallowDepth": 3.5,
		"deepDepth":    round1(s.faker.Float64Range(5, 9)),
	}
	if shape == "circular" {
		dims["diameter"] = float64(s.faker.Number(12, 30))
	} else {
		dims["length"] = float64(s.faker.Number(20, 45))
		dims["width"] = float64(s.faker.Number(10, 22))
	}
	name := "Main Pool"
	if i > 0 {
		name = "Spa"
	}
	return map[string]interface{}{
		"clientId":   clientID,
		"name":       name,
		"shape":      shape,
		"dimensions": dims,
		"equipment": map[string]string{
			"pump":      s.faker.RandomString([]string{"Pentair SuperFlo", "Hayward Super Pump", "Jandy FloPro"}),
			"filter":    s.faker.RandomString([]string{"cartridge", "sand", "DE"}),
			"sanitizer": s.faker.RandomString([]string{"chlorine", "salt"}),
		},
	}
}

func (s *seeder) visitPayload(clientID, poolID, clientType string, daysAgo int) map[string]interface{} {
	date := s.now.AddDate(0, 0, -daysAgo)
	v := map[string]interface{}{
		"clientId":    clientID,
		"serviceDate": date.Format(time.RFC3339),
		"status":      "completed",
	}
	if poolID != "" {
		v["poolId"] = poolID
	}

	switch clientType {
	case "service":
		v["serviceType"] = s.faker.RandomString(repairs)
		part := inventory[5+s.faker.Number(0, 2)]
		v["service"] = map[string]interface{}{
			"description": "Repair visit",
			"laborHours":  round1(s.faker.Float64Range(0.5, 3)),
			"parts": []map[string]interface{}{
				{"name": part.Name, "quantity": 1, "unitCost": part.Cost},
			},
		}
	case "retail":
		v["serviceType"] = s.faker.RandomString(retailOrders)
		v["retail"] = map[string]interface{}{
			"items": []map[string]interface{}{
				{"name": "Chlorine Tablets", "quantity": s.faker.Number(10, 50), "unitPrice": 4.99},
			},
		}
	default:
		v["serviceType"] = "maintenance-routine"
		chem := inventory[s.faker.Number(0, 4)]
		amount := round1(s.faker.Float64Range(0.5, 3))
		v["maintenance"] = map[string]interface{}{
			"readings": map[string]float64{
				"freeChlorine": round1(s.faker.Float64Range(0.5, 4)),
				"ph":           round1(s.faker.Float64Range(7, 8)),
				"alkalinity":   float64(s.faker.Number(70, 130)),
			},
			"chemicalsAdded": []map[string]interface{}{
				{"name": chem.Name, "amount": amount, "unit": chem.Unit, "cost": round1(amount * chem.Cost)},
			},
		}
		if s.faker.Number(1, 10) == 1 {
			v["followUpRequired"] = true
			v["followUpNotes"] = "Check for algae on steps"
		}
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type seededClient struct {
	id         string
	clientType string
	pools      []string
}

func (s *seeder) run(ctx context.Context, technicianCount, clientCount int) error {
	var techIDs []string
	for i := 0; i < technicianCount; i++ {
		id, err := s.api.create(ctx, "/technicians", "technician", s.technicianPayload(i))
		if err != nil {
			log.WithError(err).Warn("Failed to create technician")
			continue
		}
		techIDs = append(techIDs, id)
	}
	log.WithField("technicians", len(techIDs)).Info("Technicians created")

	for _, item := range inventory {
		_, err := s.api.create(ctx, "/inventory", "item", map[string]interface{}{
			"name":             item.Name,
			"category":         item.Category,
			"unit":             item.Unit,
			"unitCost":         item.Cost,
			"quantityOnHand":   s.faker.Number(5, 60),
			"reorderThreshold": 10,
			"reorderQuantity":  40,
			"supplier":         s.faker.Company(),
		})
		if err != nil {
			log.WithError(err).WithField("item", item.Name).Warn("Failed to create inventory item")
		}
	}

	var clients []seededClient
	for i := 0; i < clientCount; i++ {
		payload := s.clientPayload()
		id, err := s.api.create(ctx, "/clients", "client", payload)
		if err != nil {
			log.WithError(err).Warn("Failed to create client")
			continue
		}
		c := seededClient{id: id, clientType: payload["clientType"].(string)}
		if c.clientType != "retail" {
			for p := 0; p < s.faker.Number(1, 2); p++ {
				poolID, err := s.api.create(ctx, "/pools", "pool", s.poolPayload(id, p))
				if err != nil {
					log.WithError(err).WithField("client_id", id).Warn("Failed to create pool")
					continue
				}
				c.pools = append(c.pools, poolID)
			}
		}
		if c.clientType == "maintenance" && len(techIDs) > 0 {
			techID := techIDs[i%len(techIDs)]
			if err := s.api.do(ctx, http.MethodPost, "/technicians/"+techID+"/assign-client", map[string]string{"clientId": id}, nil); err != nil {
				log.WithError(err).WithField("client_id", id).Warn("Failed to assign client")
			}
		}
		clients = append(clients, c)
	}
	log.WithField("clients", len(clients)).Info("Clients created")

	visits := 0
	for _, c := range clients {
		for daysAgo := 14; daysAgo > 0; daysAgo -= 7 {
			poolID := ""
			if len(c.pools) > 0 {
				poolID = c.pools[0]
			}
			if _, err := s.api.create(ctx, "/visits", "visit", s.visitPayload(c.id, poolID, c.clientType, daysAgo)); err != nil {
				log.WithError(err).WithField("client_id", c.id).Warn("Failed to create visit")
				continue
			}
			visits++
		}
	}
	log.WithField("visits", visits).Info("Visits created")
	return nil
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}
	email := os.Getenv("SEED_EMAIL")
	if email == "" {
		email = "admin@poolservice.local"
	}
	technicians := envInt("SEED_TECHNICIANS", 2)
	clients := envInt("SEED_CLIENTS", 12)

	log.WithFields(log.Fields{
		"api_url":     apiURL,
		"technicians": technicians,
		"clients":     clients,
	}).Info("Seeding demo data")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	api := newAPIClient(apiURL)
	if token := os.Getenv("SEED_AUTH_TOKEN"); token != "" {
		api.token = token
	} else if err := api.login(ctx, email, os.Getenv("SEED_PASSWORD")); err != nil {
		log.WithError(err).Fatal("Login failed. Set SEED_EMAIL and SEED_PASSWORD or SEED_AUTH_TOKEN")
	}

	s := &seeder{
		api:   api,
		faker: gofakeit.New(uint64(envInt("SEED_RANDOM", 0))),
		now:   time.Now(),
	}
	if err := s.run(ctx, technicians, clients); err != nil {
		log.WithError(err).Fatal("Seeding failed")
	}
	log.Info("Seeding completed")
}

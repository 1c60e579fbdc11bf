package models

import (
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	gallonsPerCubicFoot = 7.48
	litersPerGallon     = 3.785
)

// Pool shapes with a known volume formula.
const (
	ShapeRectangular = "rectangular"
	ShapeCircular    = "circular"
	ShapeOval        = "oval"
	ShapeKidney      = "kidney"
	ShapeFreeform    = "freeform"
)

// Dimensions are measured in feet.
type Dimensions struct {
	Length       float64 `bson:"length,omitempty" json:"length,omitempty"`
	Width        float64 `bson:"width,omitempty" json:"width,omitempty"`
	Diameter     float64 `bson:"diameter,omitempty" json:"diameter,omitempty"`
	AvgDepth     float64 `bson:"avgDepth,omitempty" json:"avgDepth,omitempty"`
	ShallowDepth float64 `bson:"shallowDepth,omitempty" json:"shallowDepth,omitempty"`
	DeepDepth    float64 `bson:"deepDepth,omitempty" json:"deepDepth,omitempty"`
}

// Volume is derived from shape and dimensions when the pool is created.
type Volume struct {
	Gallons int `bson:"gallons" json:"gallons"`
	Liters  int `bson:"liters" json:"liters"`
}

// Equipment describes the pool's installed hardware.
type Equipment struct {
	Pump      string `bson:"pump,omitempty" json:"pump,omitempty"`
	Filter    string `bson:"filter,omitempty" json:"filter,omitempty"`
	Heater    string `bson:"heater,omitempty" json:"heater,omitempty"`
	Sanitizer string `bson:"sanitizer,omitempty" json:"sanitizer,omitempty"`
}

// TargetRange is a min/max/target triplet for one chemistry parameter.
type TargetRange struct {
	Min    float64 `bson:"min" json:"min"`
	Max    float64 `bson:"max" json:"max"`
	Target float64 `bson:"target" json:"target"`
}

// Pool is a physical pool owned by a client.
type Pool struct {
	ID              primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	ClientID        primitive.ObjectID     `bson:"clientId" json:"clientId"`
	ClientName      string                 `bson:"clientName,omitempty" json:"clientName,omitempty"`
	Name            string                 `bson:"name" json:"name"`
	Type            string                 `bson:"type" json:"type"`
	Shape           string                 `bson:"shape" json:"shape"`
	Dimensions      Dimensions             `bson:"dimensions" json:"dimensions"`
	Volume          Volume                 `bson:"volume" json:"volume"`
	Surface         string                 `bson:"surface,omitempty" json:"surface,omitempty"`
	Equipment       Equipment              `bson:"equipment" json:"equipment"`
	TargetLevels    map[string]TargetRange `bson:"targetLevels" json:"targetLevels"`
	IsActive        bool                   `bson:"isActive" json:"isActive"`
	LastServiceDate *time.Time             `bson:"lastServiceDate,omitempty" json:"lastServiceDate,omitempty"`
	Notes           string                 `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt       time.Time              `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time              `bson:"updatedAt" json:"updatedAt"`
}

// DefaultTargetLevels returns the standard residential chemistry targets.
func DefaultTargetLevels() map[string]TargetRange {
	return map[string]TargetRange{
		"freeChlorine":    {Min: 1, Max: 3, Target: 2},
		"ph":              {Min: 7.2, Max: 7.6, Target: 7.4},
		"alkalinity":      {Min: 80, Max: 120, Target: 100},
		"cyanuricAcid":    {Min: 30, Max: 50, Target: 40},
		"calciumHardness": {Min: 200, Max: 400, Target: 250},
	}
}

// depth picks avgDepth, falling back to the mean of shallow and deep ends.
func (d Dimensions) depth() float64 {
	if d.AvgDepth > 0 {
		return d.AvgDepth
	}
	if d.ShallowDepth > 0 && d.DeepDepth > 0 {
		return (d.ShallowDepth + d.DeepDepth) / 2
	}
	return 0
}

// CalculateVolume computes gallons and liters for a shape.
func CalculateVolume(shape string, d Dimensions) (Volume, error) {
	depth := d.depth()
	if depth <= 0 {
		return Volume{}, Invalid("avgDepth (or shallowDepth and deepDepth) must be positive")
	}

	var gallons float64
	switch shape {
	case ShapeCircular:
		if d.Diameter <= 0 {
			return Volume{}, Invalid("diameter must be positive for circular pools")
		}
		r := d.Diameter / 2
		gallons = math.Pi * r * r * depth * gallonsPerCubicFoot
	case ShapeRectangular, ShapeOval, ShapeKidney, ShapeFreeform:
		if d.Length <= 0 || d.Width <= 0 {
			return Volume{}, Invalid("length and width must be positive")
		}
		switch shape {
		case ShapeRectangular:
			gallons = d.Length * d.Width * depth * gallonsPerCubicFoot
		case ShapeOval:
			gallons = d.Length * d.Width * depth * 5.9
		case ShapeKidney:
			gallons = 0.45 * (d.Length + d.Width) * d.Length * depth * gallonsPerCubicFoot
		case ShapeFreeform:
			gallons = d.Length * d.Width * depth * gallonsPerCubicFoot * 0.85
		}
	default:
		return Volume{}, Invalid("shape must be rectangular, circular, oval, kidney or freeform")
	}

	g := math.Round(gallons)
	return Volume{Gallons: int(g), Liters: int(math.Round(g * litersPerGallon))}, nil
}

// Prepare normalizes a new pool, computes its volume and fills defaults.
func (p *Pool) Prepare() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Shape = strings.ToLower(strings.TrimSpace(p.Shape))
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	if p.ClientID.IsZero() {
		return Invalid("clientId is required")
	}
	if p.Name == "" {
		p.Name = "Main Pool"
	}
	if p.Type == "" {
		p.Type = "residential"
	}
	if p.Type != "residential" && p.Type != "commercial" {
		return Invalid("type must be residential or commercial")
	}

	vol, err := CalculateVolume(p.Shape, p.Dimensions)
	if err != nil {
		return err
	}
	p.Volume = vol

	if len(p.TargetLevels) == 0 {
		p.TargetLevels = DefaultTargetLevels()
	}
	return ValidateTargetLevels(p.TargetLevels)
}

// ValidateTargetLevels requires min <= target <= max for every parameter.
func ValidateTargetLevels(levels map[string]TargetRange) error {
	for name, r := range levels {
		if r.Min > r.Max || r.Target < r.Min || r.Target > r.Max {
			return Invalid("targetLevels." + name + " must satisfy min <= target <= max")
		}
	}
	return nil
}

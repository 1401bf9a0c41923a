package suitability

import (
	"fmt"
	"sort"
)

// Variety is a read-only crop-variety reference profile.
type Variety struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Species string `json:"species"`

	ChillHoursMin float64 `json:"chillHoursMin"`
	ChillHoursMax float64 `json:"chillHoursMax"`
	// MaxSummerTemp is the highest tolerable peak temperature, °C.
	MaxSummerTemp float64 `json:"maxSummerTemp"`
	// MinWinterTemp is the lowest tolerable winter temperature, °C.
	MinWinterTemp float64 `json:"minWinterTemp"`
	// AnnualWaterNeed in mm per year.
	AnnualWaterNeed        float64  `json:"annualWaterNeed"`
	YearsToFirstProduction int      `json:"yearsToFirstProduction"`
	Pollinizers            []string `json:"pollinizers"`
}

// Pollinizer is a male variety that pollinates compatible cultivars.
type Pollinizer struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ChillHoursMin float64 `json:"chillHoursMin"`
	ChillHoursMax float64 `json:"chillHoursMax"`
}

// Catalogue is loaded once and never mutated.
type Catalogue struct {
	varieties   []Variety
	byID        map[string]Variety
	pollinizers map[string]Pollinizer
}

// NewCatalogue indexes varieties and pollinizers.
func NewCatalogue(varieties []Variety, pollinizers []Pollinizer) *Catalogue {
	c := &Catalogue{
		varieties:   append([]Variety(nil), varieties...),
		byID:        make(map[string]Variety, len(varieties)),
		pollinizers: make(map[string]Pollinizer, len(pollinizers)),
	}
	for _, v := range varieties {
		c.byID[v.ID] = v
	}
	for _, p := range pollinizers {
		c.pollinizers[p.ID] = p
	}
	return c
}

// Varieties returns a copy of all varieties in catalogue order.
func (c *Catalogue) Varieties() []Variety {
	return append([]Variety(nil), c.varieties...)
}

// Pollinizers returns all pollinizers sorted by id.
func (c *Catalogue) Pollinizers() []Pollinizer {
	out := make([]Pollinizer, 0, len(c.pollinizers))
	for _, p := range c.pollinizers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Pollinizer looks up a pollinizer by id.
func (c *Catalogue) Pollinizer(id string) (Pollinizer, bool) {
	p, ok := c.pollinizers[id]
	return p, ok
}

// Select returns the varieties with the given ids, or all when ids is empty.
func (c *Catalogue) Select(ids []string) ([]Variety, error) {
	if len(ids) == 0 {
		return c.Varieties(), nil
	}
	out := make([]Variety, 0, len(ids))
	for _, id := range ids {
		v, ok := c.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown variety %q", id)
		}
		out = append(out, v)
	}
	return out, nil
}

// DefaultCatalogue is the pistachio reference table.
func DefaultCatalogue() *Catalogue {
	return NewCatalogue(defaultVarieties, defaultPollinizers)
}

var defaultVarieties = []Variety{
	{
		ID: "kerman", Name: "Kerman", Species: "Pistacia vera",
		ChillHoursMin: 1000, ChillHoursMax: 1400,
		MaxSummerTemp: 43, MinWinterTemp: -12,
		AnnualWaterNeed: 800, YearsToFirstProduction: 6,
		Pollinizers: []string{"peter"},
	},
	{
		ID: "sirora", Name: "Sirora", Species: "Pistacia vera",
		ChillHoursMin: 600, ChillHoursMax: 900,
		MaxSummerTemp: 42, MinWinterTemp: -10,
		AnnualWaterNeed: 750, YearsToFirstProduction: 5,
		Pollinizers: []string{"askar", "c-special"},
	},
	{
		ID: "larnaka", Name: "Larnaka", Species: "Pistacia vera",
		ChillHoursMin: 500, ChillHoursMax: 800,
		MaxSummerTemp: 42, MinWinterTemp: -8,
		AnnualWaterNeed: 700, YearsToFirstProduction: 5,
		Pollinizers: []string{"askar", "c-special"},
	},
	{
		ID: "kastel", Name: "Kastel", Species: "Pistacia vera",
		ChillHoursMin: 700, ChillHoursMax: 1000,
		MaxSummerTemp: 42, MinWinterTemp: -12,
		AnnualWaterNeed: 750, YearsToFirstProduction: 6,
		Pollinizers: []string{"randy"},
	},
	{
		ID: "aegina", Name: "Aegina", Species: "Pistacia vera",
		ChillHoursMin: 800, ChillHoursMax: 1100,
		MaxSummerTemp: 41, MinWinterTemp: -10,
		AnnualWaterNeed: 750, YearsToFirstProduction: 6,
		Pollinizers: []string{"c-special", "peter"},
	},
	{
		ID: "avdat", Name: "Avdat", Species: "Pistacia vera",
		ChillHoursMin: 600, ChillHoursMax: 900,
		MaxSummerTemp: 43, MinWinterTemp: -8,
		AnnualWaterNeed: 700, YearsToFirstProduction: 5,
		Pollinizers: []string{"askar"},
	},
	{
		ID: "mateur", Name: "Mateur", Species: "Pistacia vera",
		ChillHoursMin: 700, ChillHoursMax: 1000,
		MaxSummerTemp: 42, MinWinterTemp: -9,
		AnnualWaterNeed: 700, YearsToFirstProduction: 6,
		Pollinizers: []string{"nazar"},
	},
}

var defaultPollinizers = []Pollinizer{
	{ID: "peter", Name: "Peter", ChillHoursMin: 1000, ChillHoursMax: 1400},
	{ID: "askar", Name: "Askar", ChillHoursMin: 600, ChillHoursMax: 900},
	{ID: "c-special", Name: "C-Special", ChillHoursMin: 600, ChillHoursMax: 1000},
	{ID: "randy", Name: "Randy", ChillHoursMin: 700, ChillHoursMax: 1000},
	{ID: "nazar", Name: "Nazar", ChillHoursMin: 700, ChillHoursMax: 1000},
}

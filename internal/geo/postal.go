// Package geo resolves Spanish postal codes to coordinates through the
// Google geocoding API.
package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/agroclimate/internal/climate"
	"github.com/i474232898/agroclimate/internal/common"
)

var (
	// ErrPostalCodeNotFound is returned when the geocoder has no match.
	ErrPostalCodeNotFound = errors.New("postal code not found")
	// ErrInvalidPostalCode is returned for anything other than 5 digits.
	ErrInvalidPostalCode = errors.New("postal code must be exactly 5 digits")
	// ErrNotConfigured is returned when no geocoding api key is set.
	ErrNotConfigured = errors.New("geocoder api key is not configured")
)

// Coordinates is a resolved point.
type Coordinates struct {
	PostalCode string  `json:"postalCode"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// Location converts the point into a pipeline location.
func (c Coordinates) Location() climate.Location {
	return climate.Coordinates(c.Latitude, c.Longitude)
}

// PostalResolver looks up postal codes, remembering successful lookups.
type PostalResolver struct {
	country string
	apiKey  string
	lookup  func(geocoder.Address) (geocoder.Location, error)

	mu    sync.RWMutex
	cache map[string]Coordinates
}

// NewPostalResolver configures the geocoder with apiKey. country scopes the
// lookup, e.g. "Spain".
func NewPostalResolver(apiKey, country string) *PostalResolver {
	geocoder.ApiKey = apiKey
	return &PostalResolver{
		country: country,
		apiKey:  apiKey,
		lookup:  geocoder.Geocoding,
		cache:   make(map[string]Coordinates),
	}
}

// Resolve returns the coordinates of a 5-digit postal code.
func (r *PostalResolver) Resolve(ctx context.Context, postalCode string) (Coordinates, error) {
	if !climate.ValidPostalCode(postalCode) {
		return Coordinates{}, ErrInvalidPostalCode
	}

	r.mu.RLock()
	c, ok := r.cache[postalCode]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	if r.apiKey == "" {
		return Coordinates{}, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return Coordinates{}, err
	}

	loc, err := r.lookup(geocoder.Address{
		PostalCode: postalCode,
		Country:    r.country,
	})
	if err != nil {
		if common.HasAny(strings.ToLower(err.Error()), "zero_results", "empty results", "no results", "not found") {
			return Coordinates{}, fmt.Errorf("%w: %s", ErrPostalCodeNotFound, postalCode)
		}
		return Coordinates{}, fmt.Errorf("geocode postal code %s: %w", postalCode, err)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return Coordinates{}, fmt.Errorf("%w: %s", ErrPostalCodeNotFound, postalCode)
	}

	c = Coordinates{PostalCode: postalCode, Latitude: loc.Latitude, Longitude: loc.Longitude}
	r.mu.Lock()
	r.cache[postalCode] = c
	r.mu.Unlock()
	return c, nil
}

package climate

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Direction is the part of the calendar a source can serve relative to today.
type Direction int

const (
	DirectionPast Direction = iota
	DirectionFuture
	DirectionBoth
)

func (d Direction) String() string {
	switch d {
	case DirectionPast:
		return "past"
	case DirectionFuture:
		return "future"
	default:
		return "both"
	}
}

// LocationForm is how a source expects the location to be expressed.
type LocationForm int

const (
	LocationCoordinates LocationForm = iota
	LocationPostalCode
)

// Descriptor declares the capability envelope of a source. The pipeline
// dispatches on it instead of comparing source names.
type Descriptor struct {
	Kind         SourceKind   `json:"kind"`
	Name         string       `json:"name"`
	MaxChunkDays int          `json:"maxChunkDays"`
	Direction    Direction    `json:"-"`
	LocationForm LocationForm `json:"-"`
	Parameters   []string     `json:"parameters"`
}

// Source abstracts an upstream provider (NASA POWER, ERA5, SIAR, AEMET).
// Fetch never retries; it returns *CapabilityError or *UpstreamError on failure.
type Source interface {
	Descriptor() Descriptor
	Fetch(ctx context.Context, loc Location, rng DateRange) ([]RawPayload, error)
}

// Store caches canonical sequences by request key.
type Store interface {
	SaveSeries(ctx context.Context, key string, records []DailyRecord) error
	GetSeries(ctx context.Context, key string) ([]DailyRecord, error)
	Prune(ctx context.Context) (int, error)
}

// CheckCapabilities rejects a request outside the envelope declared by d.
// today must be a UTC calendar day.
func CheckCapabilities(d Descriptor, loc Location, rng DateRange, today time.Time) error {
	switch d.LocationForm {
	case LocationCoordinates:
		if !loc.HasCoordinates() {
			return &CapabilityError{Source: d.Kind, Reason: "latitude and longitude are required"}
		}
	case LocationPostalCode:
		if loc.PostalCode == "" {
			return &CapabilityError{Source: d.Kind, Reason: "postal code is required"}
		}
	}

	if rng.End.Before(rng.Start) {
		return &CapabilityError{Source: d.Kind, Reason: "end date precedes start date"}
	}
	if d.MaxChunkDays > 0 && rng.Days() > d.MaxChunkDays {
		return &CapabilityError{
			Source: d.Kind,
			Reason: fmt.Sprintf("range of %d days exceeds the %d-day limit per call", rng.Days(), d.MaxChunkDays),
		}
	}

	today = Day(today)
	switch d.Direction {
	case DirectionPast:
		if rng.End.After(today) {
			return &CapabilityError{Source: d.Kind, Reason: "historical-only source cannot serve future dates"}
		}
	case DirectionFuture:
		if rng.Start.Before(today) {
			return &CapabilityError{Source: d.Kind, Reason: "forecast-only source cannot serve past dates"}
		}
	}
	return nil
}

// Registry maps source kinds to adapters.
type Registry struct {
	sources map[SourceKind]Source
}

// NewRegistry registers the given sources by their declared kind.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[SourceKind]Source, len(sources))}
	for _, s := range sources {
		r.sources[s.Descriptor().Kind] = s
	}
	return r
}

// Get returns the adapter registered for kind.
func (r *Registry) Get(kind SourceKind) (Source, error) {
	s, ok := r.sources[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, kind)
	}
	return s, nil
}

// Descriptors lists registered sources sorted by kind.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

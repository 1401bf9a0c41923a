package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/i474232898/agroclimate/internal/climate"
	"github.com/i474232898/agroclimate/internal/geo"
	"github.com/i474232898/agroclimate/internal/suitability"
)

// Geocoder resolves a 5-digit postal code to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, postalCode string) (geo.Coordinates, error)
}

// Deps are the collaborators the routes need.
type Deps struct {
	Service  *climate.Service
	Engine   *suitability.Engine
	Geocoder Geocoder // optional

	// DefaultSource fills in a request that omits its source. Leave empty to
	// make source mandatory.
	DefaultSource climate.SourceKind
	Limits        climate.Limits
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Limits == (climate.Limits{}) {
		deps.Limits = climate.DefaultLimits
	}
	h := &handlers{Deps: deps}

	v1 := app.Group("/api/v1")

	v1.Post("/climate", h.climate)
	v1.Post("/climate/profile", h.climateProfile)
	v1.Post("/climate/multi", h.climateMulti)

	v1.Get("/geocode/postal/:code", h.geocode)

	v1.Get("/varieties", h.varieties)
	v1.Post("/suitability", h.suitability)
	v1.Post("/suitability/report", h.suitabilityReport)
}

type handlers struct {
	Deps
}

// RequestInfo describes how a response was produced.
type RequestInfo struct {
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	DayCount     int    `json:"dayCount"`
	IsHistorical bool   `json:"isHistorical"`
	YearsCount   *int   `json:"yearsCount,omitempty"`
	ChunksCount  *int   `json:"chunksCount,omitempty"`
	RecordCount  int    `json:"recordCount"`
	DroppedCount int    `json:"droppedCount"`
	Cached       bool   `json:"cached"`
	RequestID    string `json:"requestId"`
}

func newRequestInfo(rid string, q climate.Query, res climate.Result) RequestInfo {
	info := RequestInfo{
		StartDate:    q.Range.Start.Format(climate.DateLayout),
		EndDate:      q.Range.End.Format(climate.DateLayout),
		DayCount:     int(q.Range.End.Sub(q.Range.Start).Hours() / 24),
		IsHistorical: q.Historical,
		RecordCount:  len(res.Records),
		DroppedCount: res.Dropped,
		Cached:       res.Cached,
		RequestID:    rid,
	}
	if q.Historical {
		years := res.YearsCount()
		chunks := res.Chunks
		info.YearsCount = &years
		info.ChunksCount = &chunks
	}
	return info
}

func (h *handlers) climate(c *fiber.Ctx) error {
	ctx, rid := h.requestContext(c)

	var req climate.Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	q, res, err := h.run(ctx, c, req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"source":      q.Source,
		"data":        records(res.Records),
		"requestInfo": newRequestInfo(rid, q, res),
	})
}

func (h *handlers) climateProfile(c *fiber.Ctx) error {
	ctx, rid := h.requestContext(c)

	var req climate.Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	q, res, err := h.run(ctx, c, req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"source":      q.Source,
		"profile":     h.Service.Profile(res.Records),
		"requestInfo": newRequestInfo(rid, q, res),
	})
}

type sourceStatus struct {
	Source      climate.SourceKind `json:"source"`
	Success     bool               `json:"success"`
	RecordCount int                `json:"recordCount"`
	Error       string             `json:"error,omitempty"`
}

func (h *handlers) climateMulti(c *fiber.Ctx) error {
	ctx, rid := h.requestContext(c)

	var req climate.MultiRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Sources) == 0 && h.DefaultSource != "" {
		req.Sources = []climate.SourceKind{h.DefaultSource}
	}

	queries, err := climate.ValidateMultiRequest(req, h.Service.Today(), h.Limits)
	if err != nil {
		return err
	}

	multi, err := h.Service.FetchMulti(ctx, queries)
	if err != nil {
		return err
	}

	statuses := make([]sourceStatus, 0, len(multi.Outcomes))
	for _, o := range multi.Outcomes {
		st := sourceStatus{Source: o.Source, Success: o.Err == nil, RecordCount: len(o.Result.Records)}
		if o.Err != nil {
			st.Error = o.Err.Error()
		}
		statuses = append(statuses, st)
	}

	q := queries[0]
	info := newRequestInfo(rid, q, climate.Result{Query: q, Records: multi.Records})
	return c.JSON(fiber.Map{
		"success":     true,
		"sources":     statuses,
		"data":        records(multi.Records),
		"requestInfo": info,
	})
}

func (h *handlers) geocode(c *fiber.Ctx) error {
	if h.Geocoder == nil {
		return geo.ErrNotConfigured
	}
	coords, err := h.Geocoder.Resolve(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    coords,
	})
}

func (h *handlers) varieties(c *fiber.Ctx) error {
	cat := h.Engine.Catalogue()
	return c.JSON(fiber.Map{
		"success":     true,
		"varieties":   cat.Varieties(),
		"pollinizers": cat.Pollinizers(),
	})
}

// suitabilityRequest is a climate request plus an optional variety filter.
type suitabilityRequest struct {
	climate.Request
	Varieties []string `json:"varieties"`
}

type evaluation struct {
	query   climate.Query
	result  climate.Result
	profile climate.ClimateProfile
	recs    []suitability.Recommendation
}

func (h *handlers) evaluate(ctx context.Context, c *fiber.Ctx) (evaluation, error) {
	var req suitabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return evaluation{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	varieties, err := h.Engine.Catalogue().Select(req.Varieties)
	if err != nil {
		return evaluation{}, &climate.ValidationError{Field: "varieties", Message: err.Error()}
	}

	// Scoring needs a point; resolve a bare postal code for coordinate sources.
	if err := h.resolvePostalCode(ctx, &req.Request); err != nil {
		return evaluation{}, err
	}

	q, res, err := h.run(ctx, c, req.Request)
	if err != nil {
		return evaluation{}, err
	}
	profile := h.Service.Profile(res.Records)
	return evaluation{
		query:   q,
		result:  res,
		profile: profile,
		recs:    h.Engine.Score(varieties, profile, q.Location),
	}, nil
}

func (h *handlers) suitability(c *fiber.Ctx) error {
	ctx, rid := h.requestContext(c)
	ev, err := h.evaluate(ctx, c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":         true,
		"source":          ev.query.Source,
		"location":        ev.query.Location,
		"profile":         ev.profile,
		"recommendations": ev.recs,
		"requestInfo":     newRequestInfo(rid, ev.query, ev.result),
	})
}

func (h *handlers) suitabilityReport(c *fiber.Ctx) error {
	ctx, rid := h.requestContext(c)
	ev, err := h.evaluate(ctx, c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"source":      ev.query.Source,
		"report":      h.Engine.Report(ev.recs, ev.profile, ev.query.Location),
		"requestInfo": newRequestInfo(rid, ev.query, ev.result),
	})
}

// run validates req against the configured limits and executes the pipeline.
func (h *handlers) run(ctx context.Context, c *fiber.Ctx, req climate.Request) (climate.Query, climate.Result, error) {
	if req.Source == "" {
		req.Source = h.DefaultSource
	}
	if req.Source != "" {
		c.Locals(localSource, req.Source)
	}

	q, err := climate.ValidateRequest(req, h.Service.Today(), h.Limits)
	if err != nil {
		return climate.Query{}, climate.Result{}, err
	}
	res, err := h.Service.Fetch(ctx, q)
	if err != nil {
		return q, climate.Result{}, err
	}
	return q, res, nil
}

func (h *handlers) resolvePostalCode(ctx context.Context, req *climate.Request) error {
	source := req.Source
	if source == "" {
		source = h.DefaultSource
	}
	if source == climate.SourceAEMET || req.PostalCode == "" || req.Latitude != nil || req.Longitude != nil {
		return nil
	}
	if h.Geocoder == nil {
		return &climate.ValidationError{Field: "latitude", Message: "latitude is required"}
	}
	coords, err := h.Geocoder.Resolve(ctx, req.PostalCode)
	if err != nil {
		if errors.Is(err, geo.ErrInvalidPostalCode) {
			return &climate.ValidationError{Field: "postalCode", Message: "postalCode must be exactly 5 digits"}
		}
		return err
	}
	req.Latitude = &coords.Latitude
	req.Longitude = &coords.Longitude
	req.PostalCode = ""
	return nil
}

func (h *handlers) requestContext(c *fiber.Ctx) (context.Context, string) {
	rid := uuid.NewString()
	c.Set("X-Request-ID", rid)
	return climate.WithRequestID(c.UserContext(), rid), rid
}

func records(in []climate.DailyRecord) []climate.DailyRecord {
	if in == nil {
		return []climate.DailyRecord{}
	}
	return in
}

// RequestTimeout bounds the pipeline for one request.
func RequestTimeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

package climate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	postalCodePattern = regexp.MustCompile(`^\d{5}$`)
	validate          = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("postalcode", func(fl validator.FieldLevel) bool {
		return postalCodePattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidPostalCode reports whether code is a 5-digit postal code.
func ValidPostalCode(code string) bool {
	return postalCodePattern.MatchString(code)
}

// Request is the boundary shape of a historical or single-range climate query.
type Request struct {
	Source       SourceKind `json:"source" validate:"required,oneof=NASA_POWER ERA5 SIAR AEMET"`
	Latitude     *float64   `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64   `json:"longitude" validate:"omitempty,longitude"`
	PostalCode   string     `json:"postalCode" validate:"omitempty,postalcode"`
	StartDate    string     `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate      string     `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	IsHistorical bool       `json:"isHistorical"`
}

// Limits bounds request ranges at the boundary.
type Limits struct {
	MaxRangeDays int // non-historical cap, inclusive days
	ForecastDays int // forecast-only cap, inclusive days
}

// DefaultLimits mirror the public API contract.
var DefaultLimits = Limits{MaxRangeDays: 730, ForecastDays: 7}

// Query is a validated request ready for the pipeline.
type Query struct {
	Source     SourceKind
	Location   Location
	Range      DateRange
	Historical bool
}

// ValidateRequest applies the boundary rules in order and returns the query
// to run. today is the current UTC calendar day.
func ValidateRequest(req Request, today time.Time, limits Limits) (Query, error) {
	if req.Source == "" {
		return Query{}, &ValidationError{Field: "source", Message: "source is required"}
	}
	if err := validate.Struct(req); err != nil {
		return Query{}, toValidationError(err)
	}
	today = Day(today)

	if req.Source == SourceAEMET {
		return validateForecast(req, today, limits)
	}

	switch {
	case req.StartDate == "":
		return Query{}, &ValidationError{Field: "startDate", Message: "startDate is required"}
	case req.EndDate == "":
		return Query{}, &ValidationError{Field: "endDate", Message: "endDate is required"}
	case req.Latitude == nil:
		return Query{}, &ValidationError{Field: "latitude", Message: "latitude is required"}
	case req.Longitude == nil:
		return Query{}, &ValidationError{Field: "longitude", Message: "longitude is required"}
	}

	rng, err := ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return Query{}, &ValidationError{Field: "startDate", Message: err.Error()}
	}
	if rng.End.Before(rng.Start) {
		return Query{}, &ValidationError{Field: "endDate", Message: "endDate must not be before startDate"}
	}
	if req.IsHistorical && rng.End.After(today) {
		return Query{}, &ValidationError{Field: "endDate", Message: "endDate must not be in the future for historical requests"}
	}
	if !req.IsHistorical && limits.MaxRangeDays > 0 && rng.Days() > limits.MaxRangeDays {
		return Query{}, &ValidationError{
			Field:   "endDate",
			Message: fmt.Sprintf("range of %d days exceeds the %d-day limit; use isHistorical for longer ranges", rng.Days(), limits.MaxRangeDays),
		}
	}

	return Query{
		Source:     req.Source,
		Location:   Coordinates(*req.Latitude, *req.Longitude),
		Range:      rng,
		Historical: req.IsHistorical,
	}, nil
}

func validateForecast(req Request, today time.Time, limits Limits) (Query, error) {
	if req.PostalCode == "" {
		return Query{}, &ValidationError{Field: "postalCode", Message: "postalCode is required for AEMET"}
	}

	days := limits.ForecastDays
	if days <= 0 {
		days = DefaultLimits.ForecastDays
	}

	start := today
	if req.StartDate != "" {
		t, err := time.Parse(DateLayout, req.StartDate)
		if err != nil {
			return Query{}, &ValidationError{Field: "startDate", Message: err.Error()}
		}
		start = t
	}
	end := start.AddDate(0, 0, days-1)
	if req.EndDate != "" {
		t, err := time.Parse(DateLayout, req.EndDate)
		if err != nil {
			return Query{}, &ValidationError{Field: "endDate", Message: err.Error()}
		}
		end = t
	}

	rng := NewDateRange(start, end)
	switch {
	case rng.End.Before(rng.Start):
		return Query{}, &ValidationError{Field: "endDate", Message: "endDate must not be before startDate"}
	case rng.Start.Before(today):
		return Query{}, &ValidationError{Field: "startDate", Message: "AEMET is forecast-only; startDate must not be before today"}
	case rng.Days() > days:
		return Query{}, &ValidationError{Field: "endDate", Message: fmt.Sprintf("AEMET forecasts are limited to %d days", days)}
	}

	return Query{
		Source:   SourceAEMET,
		Location: Location{PostalCode: req.PostalCode},
		Range:    rng,
	}, nil
}

// MultiRequest queries several providers for the same point and range.
type MultiRequest struct {
	Sources      []SourceKind `json:"sources" validate:"required,min=1,dive,oneof=NASA_POWER ERA5 SIAR AEMET"`
	Latitude     *float64     `json:"latitude"`
	Longitude    *float64     `json:"longitude"`
	PostalCode   string       `json:"postalCode"`
	StartDate    string       `json:"startDate"`
	EndDate      string       `json:"endDate"`
	IsHistorical bool         `json:"isHistorical"`
}

// ValidateMultiRequest validates the request once per listed source,
// preserving the listed order.
func ValidateMultiRequest(req MultiRequest, today time.Time, limits Limits) ([]Query, error) {
	if err := validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}
	seen := make(map[SourceKind]bool, len(req.Sources))
	queries := make([]Query, 0, len(req.Sources))
	for _, kind := range req.Sources {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		q, err := ValidateRequest(Request{
			Source:       kind,
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
			PostalCode:   req.PostalCode,
			StartDate:    req.StartDate,
			EndDate:      req.EndDate,
			IsHistorical: req.IsHistorical,
		}, today, limits)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return nil, &ValidationError{Field: verr.Field, Message: fmt.Sprintf("%s: %s", kind, verr.Message)}
			}
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := fe.Field()

	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "latitude":
		msg = "latitude must be between -90 and 90"
	case "longitude":
		msg = "longitude must be between -180 and 180"
	case "postalcode":
		msg = "postalCode must be exactly 5 digits"
	case "datetime":
		msg = field + " must be a date in YYYY-MM-DD format"
	case "min":
		msg = fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
	default:
		msg = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
	return &ValidationError{Field: field, Message: msg}
}

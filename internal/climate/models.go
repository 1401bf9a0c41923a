package climate

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the canonical ISO calendar date format used on the wire.
const DateLayout = "2006-01-02"

// SourceKind identifies an upstream agroclimatic data provider.
type SourceKind string

const (
	SourceNASAPower SourceKind = "NASA_POWER"
	SourceERA5      SourceKind = "ERA5"
	SourceSIAR      SourceKind = "SIAR"
	SourceAEMET     SourceKind = "AEMET"
)

// Location is the point a request is made for. Coordinate sources use
// Latitude/Longitude, administrative sources use PostalCode.
type Location struct {
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
}

// Coordinates builds a coordinate Location.
func Coordinates(lat, lon float64) Location {
	return Location{Latitude: &lat, Longitude: &lon}
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	if l.HasCoordinates() {
		return strconv.FormatFloat(*l.Latitude, 'f', 4, 64) + ":" + strconv.FormatFloat(*l.Longitude, 'f', 4, 64)
	}
	return "cp:" + l.PostalCode
}

// DateRange is an inclusive range of calendar days, both ends at UTC midnight.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to UTC calendar days.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return NewDateRange(s, e), nil
}

// Days returns the inclusive number of calendar days in the range.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RawPayload is one provider day before normalization. Adapters map their
// own field names and date formats into it; nil means the field was absent.
type RawPayload struct {
	Date string

	TemperatureAvg *float64
	TemperatureMin *float64
	TemperatureMax *float64

	Precipitation  *float64
	Humidity       *float64
	SolarRadiation *float64
	WindSpeed      *float64
	ETo            *float64
	ETc            *float64
	FrostHours     *float64
	ChillHours     *float64
	GDD            *float64
}

// DailyRecord is the canonical, source-agnostic view of one day at one location.
type DailyRecord struct {
	Date   string     `json:"date"`
	Source SourceKind `json:"source"`

	TemperatureAvg float64  `json:"temperature_avg"`
	TemperatureMin *float64 `json:"temperature_min,omitempty"`
	TemperatureMax *float64 `json:"temperature_max,omitempty"`

	Precipitation  float64  `json:"precipitation"`
	Humidity       *float64 `json:"humidity,omitempty"`
	SolarRadiation *float64 `json:"solar_radiation,omitempty"`
	WindSpeed      *float64 `json:"wind_speed,omitempty"`
	ETo            *float64 `json:"eto,omitempty"`
	ETc            *float64 `json:"etc,omitempty"`
	FrostHours     *float64 `json:"frost_hours,omitempty"`
	ChillHours     *float64 `json:"chill_hours,omitempty"`
	GDD            float64  `json:"gdd"`

	ETOEstimated        bool `json:"eto_estimated,omitempty"`
	ChillHoursEstimated bool `json:"chill_hours_estimated,omitempty"`
	// FrostHoursEstimated marks a frost value inferred from temperature_min < 0:
	// at least one frost hour, magnitude unknown.
	FrostHoursEstimated bool `json:"frost_hours_estimated,omitempty"`
}

// Year returns the calendar year of the record, or 0 if the date is malformed.
func (r DailyRecord) Year() int {
	t, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return 0
	}
	return t.Year()
}

// FrostDay reports whether the day registered any frost.
func (r DailyRecord) FrostDay() bool {
	if r.FrostHours != nil && *r.FrostHours > 0 {
		return true
	}
	return r.TemperatureMin != nil && *r.TemperatureMin < 0
}

// DistinctYears counts the calendar years represented in records.
func DistinctYears(records []DailyRecord) int {
	years := make(map[int]struct{})
	for _, r := range records {
		if y := r.Year(); y != 0 {
			years[y] = struct{}{}
		}
	}
	return len(years)
}

func float(v float64) *float64 {
	return &v
}

package climate

import (
	"errors"
	"testing"
)

func TestValidateRequest(t *testing.T) {
	today := day("2024-06-15")
	lat, lon := 38.0, -1.5
	badLat := 123.0

	cases := []struct {
		name      string
		req       Request
		wantField string
	}{
		{"missing source", Request{Latitude: &lat, Longitude: &lon, StartDate: "2023-01-01", EndDate: "2023-01-03"}, "source"},
		{"unknown source", Request{Source: "OPENWEATHER", Latitude: &lat, Longitude: &lon, StartDate: "2023-01-01", EndDate: "2023-01-03"}, "source"},
		{"missing start", Request{Source: SourceNASAPower, Latitude: &lat, Longitude: &lon, EndDate: "2023-01-03"}, "startDate"},
		{"missing end", Request{Source: SourceNASAPower, Latitude: &lat, Longitude: &lon, StartDate: "2023-01-01"}, "endDate"},
		{"missing latitude", Request{Source: SourceNASAPower, Longitude: &lon, StartDate: "2023-01-01", EndDate: "2023-01-03"}, "latitude"},
		{"latitude out of range", Request{Source: SourceNASAPower, Latitude: &badLat, Longitude: &lon, StartDate: "2023-01-01", EndDate: "2023-01-03"}, "latitude"},
		{"bad date format", Request{Source: SourceNASAPower, Latitude: &lat, Longitude: &lon, StartDate: "2023/01/01", EndDate: "2023-01-03"}, "startDate"},
		{"end before start", Request{Source: SourceNASAPower, Latitude: &lat, Longitude: &lon, StartDate: "2023-01-03", EndDate: "2023-01-01"}, "endDate"},
		{"historical in future", Request{Source: SourceNASAPower, Latitude: &lat, Longitude: &lon, StartDate: "2024-01-01", EndDate: "2024-06-16", IsHistorical: true}, "endDate"},
		{"non-historical too long", Request{Source: SourceNASAPower, Latitude: &lat, Longitude: &lon, StartDate: "2020-01-01", EndDate: "2021-12-31"}, "endDate"},
		{"aemet without postal code", Request{Source: SourceAEMET}, "postalCode"},
		{"aemet non-numeric postal code", Request{Source: SourceAEMET, PostalCode: "4700A"}, "postalCode"},
		{"aemet in the past", Request{Source: SourceAEMET, PostalCode: "47001", StartDate: "2024-06-14"}, "startDate"},
		{"aemet over seven days", Request{Source: SourceAEMET, PostalCode: "47001", StartDate: "2024-06-15", EndDate: "2024-06-22"}, "endDate"},
	}

	for _, tc := range cases {
		_, err := ValidateRequest(tc.req, today, DefaultLimits)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		if verr.Field != tc.wantField {
			t.Fatalf("%s: expected field %q, got %q (%s)", tc.name, tc.wantField, verr.Field, verr.Message)
		}
	}
}

func TestValidateRequestAccepts(t *testing.T) {
	today := day("2024-06-15")
	lat, lon := 38.0, -1.5

	q, err := ValidateRequest(Request{
		Source: SourceNASAPower, Latitude: &lat, Longitude: &lon,
		StartDate: "2023-01-01", EndDate: "2023-01-03",
	}, today, DefaultLimits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Range.Days() != 3 || q.Historical {
		t.Fatalf("unexpected query %+v", q)
	}
	if q.Location.Key() != "38.0000:-1.5000" {
		t.Fatalf("unexpected location key %s", q.Location.Key())
	}

	// 730 inclusive days is the non-historical limit.
	if _, err := ValidateRequest(Request{
		Source: SourceERA5, Latitude: &lat, Longitude: &lon,
		StartDate: "2022-01-01", EndDate: "2023-12-31",
	}, today, DefaultLimits); err != nil {
		t.Fatalf("expected 730-day range to pass, got %v", err)
	}

	// Historical ranges have no upper cap.
	q, err = ValidateRequest(Request{
		Source: SourceNASAPower, Latitude: &lat, Longitude: &lon,
		StartDate: "2000-01-01", EndDate: "2024-06-15", IsHistorical: true,
	}, today, DefaultLimits)
	if err != nil || !q.Historical {
		t.Fatalf("expected long historical range to pass, got %v", err)
	}
}

func TestValidateRequestAEMETDefaults(t *testing.T) {
	today := day("2024-06-15")

	q, err := ValidateRequest(Request{Source: SourceAEMET, PostalCode: "47001"}, today, DefaultLimits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Range.String() != NewDateRange(today, today.AddDate(0, 0, 6)).String() {
		t.Fatalf("expected today..today+6, got %s", q.Range)
	}
	if q.Location.PostalCode != "47001" || q.Location.HasCoordinates() {
		t.Fatalf("expected postal code location, got %+v", q.Location)
	}
}

func TestValidateMultiRequest(t *testing.T) {
	today := day("2024-06-15")
	lat, lon := 38.0, -1.5

	queries, err := ValidateMultiRequest(MultiRequest{
		Sources:   []SourceKind{SourceERA5, SourceNASAPower, SourceERA5},
		Latitude:  &lat,
		Longitude: &lon,
		StartDate: "2023-01-01",
		EndDate:   "2023-01-31",
	}, today, DefaultLimits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 2 || queries[0].Source != SourceERA5 || queries[1].Source != SourceNASAPower {
		t.Fatalf("expected deduplicated sources in listed order, got %+v", queries)
	}

	_, err = ValidateMultiRequest(MultiRequest{}, today, DefaultLimits)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "sources" {
		t.Fatalf("expected sources validation error, got %v", err)
	}
}

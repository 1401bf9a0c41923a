package sources

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/agroclimate/internal/climate"
)

func clock(s string) func() time.Time {
	t, _ := time.Parse(climate.DateLayout, s)
	return func() time.Time { return t }
}

func dateRange(start, end string) climate.DateRange {
	r, err := climate.ParseDateRange(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

func TestNASAPowerFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("start") != "20230101" || q.Get("end") != "20230102" {
			t.Errorf("unexpected range %s..%s", q.Get("start"), q.Get("end"))
		}
		if q.Get("community") != "AG" || !strings.Contains(q.Get("parameters"), "PRECTOTCORR") {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"header": {"fill_value": -999},
			"properties": {"parameter": {
				"T2M": {"20230101": 8.5, "20230102": -999},
				"T2M_MAX": {"20230101": 14, "20230102": 12},
				"T2M_MIN": {"20230101": 3, "20230102": 1},
				"PRECTOTCORR": {"20230101": 0.4, "20230102": 2.1},
				"RH2M": {"20230101": 71, "20230102": 80}
			}}
		}`)
	}))
	defer srv.Close()

	p := NewNASAPowerSource(srv.Client())
	p.SetBaseURL(srv.URL)
	p.SetClock(clock("2024-06-15"))

	raws, err := p.Fetch(context.Background(), climate.Coordinates(38, -1.5), dateRange("2023-01-01", "2023-01-02"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(raws))
	}
	if raws[0].Date != "2023-01-01" || *raws[0].TemperatureAvg != 8.5 || *raws[0].Precipitation != 0.4 {
		t.Fatalf("unexpected first payload %+v", raws[0])
	}
	if raws[1].TemperatureAvg != nil {
		t.Fatalf("expected fill value mapped to nil, got %v", *raws[1].TemperatureAvg)
	}
	if raws[1].SolarRadiation != nil {
		t.Fatalf("expected missing parameter to be nil")
	}
}

func TestNASAPowerUpstreamErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("latitude") == "10" {
			fmt.Fprint(w, `<html>not json</html>`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, strings.Repeat("x", 2000))
	}))
	defer srv.Close()

	p := NewNASAPowerSource(srv.Client())
	p.SetBaseURL(srv.URL)
	p.SetClock(clock("2024-06-15"))
	rng := dateRange("2023-01-01", "2023-01-02")

	_, err := p.Fetch(context.Background(), climate.Coordinates(38, -1.5), rng)
	var uerr *climate.UpstreamError
	if !errors.As(err, &uerr) || uerr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected upstream 500, got %v", err)
	}
	if len(uerr.Body) > maxDiagnosticBody+3 {
		t.Fatalf("expected truncated body, got %d bytes", len(uerr.Body))
	}

	_, err = p.Fetch(context.Background(), climate.Coordinates(10, 10), rng)
	if !errors.As(err, &uerr) || uerr.StatusCode != http.StatusOK {
		t.Fatalf("expected malformed body error, got %v", err)
	}

	// Adapters never retry.
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected exactly 2 upstream calls, got %d", got)
	}
}

func TestCapabilityChecksBeforeCalling(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	nasa := NewNASAPowerSource(srv.Client())
	nasa.SetBaseURL(srv.URL)
	nasa.SetClock(clock("2024-06-15"))
	aemet := NewAEMETSource(srv.Client(), "key", nil)
	aemet.SetBaseURL(srv.URL)
	aemet.SetClock(clock("2024-06-15"))

	cases := []struct {
		name string
		src  climate.Source
		loc  climate.Location
		rng  climate.DateRange
	}{
		{"nasa without coordinates", nasa, climate.Location{PostalCode: "30001"}, dateRange("2023-01-01", "2023-01-02")},
		{"nasa future dates", nasa, climate.Coordinates(38, -1.5), dateRange("2024-06-10", "2024-06-20")},
		{"nasa range above chunk limit", nasa, climate.Coordinates(38, -1.5), dateRange("2020-01-01", "2022-12-31")},
		{"aemet past dates", aemet, climate.Location{PostalCode: "47001"}, dateRange("2024-06-10", "2024-06-12")},
		{"aemet without postal code", aemet, climate.Coordinates(38, -1.5), dateRange("2024-06-15", "2024-06-16")},
	}
	for _, tc := range cases {
		_, err := tc.src.Fetch(context.Background(), tc.loc, tc.rng)
		var cerr *climate.CapabilityError
		if !errors.As(err, &cerr) {
			t.Fatalf("%s: expected capability error, got %v", tc.name, err)
		}
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no upstream calls, got %d", calls)
	}
}

func TestERA5CountsHourlyChillAndFrost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("hourly") != "temperature_2m" || q.Get("start_date") != "2023-12-01" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		hours := make([]string, 0, 24)
		temps := make([]string, 0, 24)
		for h := 0; h < 24; h++ {
			hours = append(hours, fmt.Sprintf(`"2023-12-01T%02d:00"`, h))
			switch {
			case h < 3:
				temps = append(temps, "-1.5")
			case h < 13:
				temps = append(temps, "4")
			default:
				temps = append(temps, "null")
			}
		}
		fmt.Fprintf(w, `{
			"daily": {
				"time": ["2023-12-01"],
				"temperature_2m_mean": [3.2],
				"temperature_2m_max": [9.1],
				"temperature_2m_min": [-1.5],
				"precipitation_sum": [null],
				"et0_fao_evapotranspiration": [0.8]
			},
			"hourly": {"time": [%s], "temperature_2m": [%s]}
		}`, strings.Join(hours, ","), strings.Join(temps, ","))
	}))
	defer srv.Close()

	p := NewERA5Source(srv.Client())
	p.SetBaseURL(srv.URL)
	p.SetClock(clock("2024-06-15"))

	raws, err := p.Fetch(context.Background(), climate.Coordinates(38, -1.5), dateRange("2023-12-01", "2023-12-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(raws))
	}
	r := raws[0]
	if r.ChillHours == nil || *r.ChillHours != 10 {
		t.Fatalf("expected 10 chill hours, got %v", r.ChillHours)
	}
	if r.FrostHours == nil || *r.FrostHours != 3 {
		t.Fatalf("expected 3 frost hours, got %v", r.FrostHours)
	}
	if r.Precipitation != nil || r.ETo == nil || *r.ETo != 0.8 {
		t.Fatalf("unexpected water fields %+v", r)
	}
}

func TestSIARUsesNearestStation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("Id") != "MU21" || q.Get("ClaveAPI") != "secret" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"Datos": [
			{"Fecha": "2023-01-01T00:00:00", "TempMedia": 9.4, "TempMax": 16.2, "TempMin": 2.1, "Precipitacion": 0, "EtPMon": 1.3},
			{"Fecha": "2023-01-02T00:00:00", "TempMedia": 10.1, "TempMax": 17, "TempMin": 3.5, "Precipitacion": 4.2, "EtPMon": 1.1}
		]}`)
	}))
	defer srv.Close()

	stations := []SIARStation{
		{Code: "V101", Latitude: 39.47, Longitude: -0.38},
		{Code: "MU21", Latitude: 37.99, Longitude: -1.13},
	}
	p := NewSIARSource(srv.Client(), "secret", stations)
	p.SetBaseURL(srv.URL)
	p.SetClock(clock("2024-06-15"))

	raws, err := p.Fetch(context.Background(), climate.Coordinates(38, -1.5), dateRange("2023-01-01", "2023-01-02"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raws) != 2 || raws[1].Date != "2023-01-02" || *raws[1].ETo != 1.1 {
		t.Fatalf("unexpected payloads %+v", raws)
	}
}

func TestSIARRequiresConfiguration(t *testing.T) {
	p := NewSIARSource(http.DefaultClient, "", nil)
	p.SetClock(clock("2024-06-15"))
	_, err := p.Fetch(context.Background(), climate.Coordinates(38, -1.5), dateRange("2023-01-01", "2023-01-02"))
	var cerr *climate.CapabilityError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected capability error, got %v", err)
	}
}

func TestNearestStation(t *testing.T) {
	if _, ok := NearestStation(nil, 0, 0); ok {
		t.Fatalf("expected no station from empty list")
	}
	s, _ := NearestStation([]SIARStation{{Code: "far", Latitude: 43, Longitude: -8}, {Code: "near", Latitude: 38.1, Longitude: -1.4}}, 38, -1.5)
	if s.Code != "near" {
		t.Fatalf("expected near, got %s", s.Code)
	}
	if d := haversineKm(0, 0, 0, 1); math.Abs(d-111.19) > 0.1 {
		t.Fatalf("expected ~111.19 km per degree at the equator, got %v", d)
	}
}

func TestAEMETTwoStepFetch(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/prediccion/especifica/municipio/diaria/47186":
			fmt.Fprintf(w, `{"descripcion": "exito", "estado": 200, "datos": "%s/datos/abc"}`, srv.URL)
		case "/datos/abc":
			fmt.Fprint(w, `[{"prediccion": {"dia": [
				{"fecha": "2024-06-14T00:00:00", "temperatura": {"maxima": 30, "minima": 15}},
				{"fecha": "2024-06-15T00:00:00", "temperatura": {"maxima": 31, "minima": 16},
				 "humedadRelativa": {"maxima": 80, "minima": 40},
				 "viento": [{"periodo": "00-24", "velocidad": 18}]},
				{"fecha": "2024-06-16T00:00:00", "temperatura": {"maxima": 29, "minima": 14}}
			]}}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewAEMETSource(srv.Client(), "secret", map[string]string{"47001": "47186"})
	p.SetBaseURL(srv.URL)
	p.SetClock(clock("2024-06-15"))

	raws, err := p.Fetch(context.Background(), climate.Location{PostalCode: "47001"}, dateRange("2024-06-15", "2024-06-21"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected days outside range filtered, got %d", len(raws))
	}
	r := raws[0]
	if r.Date != "2024-06-15" || *r.TemperatureMax != 31 || *r.Humidity != 60 {
		t.Fatalf("unexpected payload %+v", r)
	}
	if math.Abs(*r.WindSpeed-5) > 1e-9 {
		t.Fatalf("expected wind 5 m/s, got %v", *r.WindSpeed)
	}
}

func TestAEMETMetadataError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"descripcion": "API key invalido", "estado": 401}`)
	}))
	defer srv.Close()

	p := NewAEMETSource(srv.Client(), "bad", nil)
	p.SetBaseURL(srv.URL)
	p.SetClock(clock("2024-06-15"))

	_, err := p.Fetch(context.Background(), climate.Location{PostalCode: "47001"}, dateRange("2024-06-15", "2024-06-16"))
	var uerr *climate.UpstreamError
	if !errors.As(err, &uerr) || uerr.StatusCode != 401 || uerr.Body != "API key invalido" {
		t.Fatalf("expected upstream 401, got %v", err)
	}
}

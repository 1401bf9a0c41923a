package sources

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/i474232898/agroclimate/internal/climate"
)

// SIARStation is an agroclimatic station of the SIAR irrigation network.
type SIARStation struct {
	Code      string  `json:"code"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SIARSource implements climate.Source for the SIAR daily station API. The
// request coordinates are served by the nearest configured station.
type SIARSource struct {
	base
	apiKey   string
	stations []SIARStation
}

func NewSIARSource(client *http.Client, apiKey string, stations []SIARStation) *SIARSource {
	return &SIARSource{
		base: newBase(climate.Descriptor{
			Kind:         climate.SourceSIAR,
			Name:         "SIAR",
			MaxChunkDays: 366,
			Direction:    climate.DirectionPast,
			LocationForm: climate.LocationCoordinates,
			Parameters:   []string{"TempMedia", "TempMax", "TempMin", "HumedadMedia", "VelViento", "Radiacion", "Precipitacion", "EtPMon"},
		}, "https://servicio.mapa.gob.es/siarapi/API/V1/Datos/Diarios/Estacion", client),
		apiKey:   apiKey,
		stations: stations,
	}
}

func (p *SIARSource) Fetch(ctx context.Context, loc climate.Location, rng climate.DateRange) ([]climate.RawPayload, error) {
	if err := p.checkCapabilities(loc, rng); err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, &climate.CapabilityError{Source: p.desc.Kind, Reason: "SIAR api key is not configured"}
	}
	station, ok := NearestStation(p.stations, *loc.Latitude, *loc.Longitude)
	if !ok {
		return nil, &climate.CapabilityError{Source: p.desc.Kind, Reason: "no SIAR stations configured"}
	}

	values := url.Values{}
	values.Set("Id", station.Code)
	values.Set("FechaInicial", rng.Start.Format(climate.DateLayout))
	values.Set("FechaFinal", rng.End.Format(climate.DateLayout))
	values.Set("ClaveAPI", p.apiKey)

	body, err := p.get(ctx, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		MensajeRespuesta *string `json:"MensajeRespuesta"`
		Datos            []struct {
			Fecha         string   `json:"Fecha"`
			TempMedia     *float64 `json:"TempMedia"`
			TempMax       *float64 `json:"TempMax"`
			TempMin       *float64 `json:"TempMin"`
			HumedadMedia  *float64 `json:"HumedadMedia"`
			VelViento     *float64 `json:"VelViento"`
			Radiacion     *float64 `json:"Radiacion"`
			Precipitacion *float64 `json:"Precipitacion"`
			EtPMon        *float64 `json:"EtPMon"`
		} `json:"Datos"`
	}
	if err := p.decode(body, &payload); err != nil {
		return nil, err
	}
	if len(payload.Datos) == 0 && payload.MensajeRespuesta != nil && *payload.MensajeRespuesta != "" {
		return nil, &climate.UpstreamError{Source: p.desc.Kind, StatusCode: http.StatusOK, Body: *payload.MensajeRespuesta}
	}

	out := make([]climate.RawPayload, 0, len(payload.Datos))
	for _, d := range payload.Datos {
		if len(d.Fecha) < len(climate.DateLayout) {
			continue
		}
		out = append(out, climate.RawPayload{
			Date:           d.Fecha[:len(climate.DateLayout)],
			TemperatureAvg: d.TempMedia,
			TemperatureMax: d.TempMax,
			TemperatureMin: d.TempMin,
			Humidity:       d.HumedadMedia,
			WindSpeed:      d.VelViento,
			SolarRadiation: d.Radiacion,
			Precipitation:  d.Precipitacion,
			ETo:            d.EtPMon,
		})
	}
	return out, nil
}

// NearestStation returns the station closest to (lat, lon) by great-circle distance.
func NearestStation(stations []SIARStation, lat, lon float64) (SIARStation, bool) {
	if len(stations) == 0 {
		return SIARStation{}, false
	}
	best := stations[0]
	bestDist := haversineKm(lat, lon, best.Latitude, best.Longitude)
	for _, s := range stations[1:] {
		if d := haversineKm(lat, lon, s.Latitude, s.Longitude); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, true
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

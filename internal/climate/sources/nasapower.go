package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/i474232898/agroclimate/internal/climate"
)

const nasaPowerDateLayout = "20060102"

var nasaPowerParameters = []string{"T2M", "T2M_MAX", "T2M_MIN", "PRECTOTCORR", "RH2M", "ALLSKY_SFC_SW_DWN", "WS2M"}

// NASAPowerSource implements climate.Source for the NASA POWER daily point API
// (agroclimatology community).
type NASAPowerSource struct {
	base
}

func NewNASAPowerSource(client *http.Client) *NASAPowerSource {
	return &NASAPowerSource{
		base: newBase(climate.Descriptor{
			Kind:         climate.SourceNASAPower,
			Name:         "NASA POWER",
			MaxChunkDays: 730,
			Direction:    climate.DirectionPast,
			LocationForm: climate.LocationCoordinates,
			Parameters:   nasaPowerParameters,
		}, "https://power.larc.nasa.gov/api/temporal/daily/point", client),
	}
}

func (p *NASAPowerSource) Fetch(ctx context.Context, loc climate.Location, rng climate.DateRange) ([]climate.RawPayload, error) {
	if err := p.checkCapabilities(loc, rng); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("parameters", strings.Join(nasaPowerParameters, ","))
	values.Set("community", "AG")
	values.Set("latitude", formatFloat(*loc.Latitude))
	values.Set("longitude", formatFloat(*loc.Longitude))
	values.Set("start", rng.Start.Format(nasaPowerDateLayout))
	values.Set("end", rng.End.Format(nasaPowerDateLayout))
	values.Set("format", "JSON")

	body, err := p.get(ctx, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Header struct {
			FillValue *float64 `json:"fill_value"`
		} `json:"header"`
		Properties struct {
			Parameter map[string]map[string]float64 `json:"parameter"`
		} `json:"properties"`
	}
	if err := p.decode(body, &payload); err != nil {
		return nil, err
	}
	params := payload.Properties.Parameter
	if len(params) == 0 {
		return nil, p.malformed(body, errors.New("no parameter data in response"))
	}

	fill := -999.0
	if payload.Header.FillValue != nil {
		fill = *payload.Header.FillValue
	}
	value := func(param, key string) *float64 {
		v, ok := params[param][key]
		if !ok || v == fill {
			return nil
		}
		return ptr(v)
	}

	keys := make(map[string]struct{})
	for _, series := range params {
		for k := range series {
			keys[k] = struct{}{}
		}
	}
	dates := make([]string, 0, len(keys))
	for k := range keys {
		dates = append(dates, k)
	}
	sort.Strings(dates)

	out := make([]climate.RawPayload, 0, len(dates))
	for _, k := range dates {
		day, err := time.Parse(nasaPowerDateLayout, k)
		if err != nil {
			continue
		}
		out = append(out, climate.RawPayload{
			Date:           day.Format(climate.DateLayout),
			TemperatureAvg: value("T2M", k),
			TemperatureMax: value("T2M_MAX", k),
			TemperatureMin: value("T2M_MIN", k),
			Precipitation:  value("PRECTOTCORR", k),
			Humidity:       value("RH2M", k),
			SolarRadiation: value("ALLSKY_SFC_SW_DWN", k),
			WindSpeed:      value("WS2M", k),
		})
	}
	return out, nil
}

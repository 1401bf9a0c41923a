package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/i474232898/agroclimate/internal/climate"
)

var era5DailyParameters = []string{
	"temperature_2m_mean",
	"temperature_2m_max",
	"temperature_2m_min",
	"precipitation_sum",
	"et0_fao_evapotranspiration",
	"shortwave_radiation_sum",
	"wind_speed_10m_mean",
	"relative_humidity_2m_mean",
}

// ERA5Source implements climate.Source for the Open-Meteo ERA5 reanalysis
// archive. Hourly 2 m temperature is requested as well so chill and frost
// hours are counted rather than estimated.
type ERA5Source struct {
	base
}

func NewERA5Source(client *http.Client) *ERA5Source {
	return &ERA5Source{
		base: newBase(climate.Descriptor{
			Kind:         climate.SourceERA5,
			Name:         "ERA5 (Open-Meteo archive)",
			MaxChunkDays: 730,
			Direction:    climate.DirectionPast,
			LocationForm: climate.LocationCoordinates,
			Parameters:   append(append([]string{}, era5DailyParameters...), "temperature_2m (hourly)"),
		}, "https://archive-api.open-meteo.com/v1/era5", client),
	}
}

func (p *ERA5Source) Fetch(ctx context.Context, loc climate.Location, rng climate.DateRange) ([]climate.RawPayload, error) {
	if err := p.checkCapabilities(loc, rng); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("latitude", formatFloat(*loc.Latitude))
	values.Set("longitude", formatFloat(*loc.Longitude))
	values.Set("start_date", rng.Start.Format(climate.DateLayout))
	values.Set("end_date", rng.End.Format(climate.DateLayout))
	values.Set("daily", strings.Join(era5DailyParameters, ","))
	values.Set("hourly", "temperature_2m")
	values.Set("wind_speed_unit", "ms")
	values.Set("timezone", "auto")

	body, err := p.get(ctx, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Daily struct {
			Time          []string   `json:"time"`
			TempMean      []*float64 `json:"temperature_2m_mean"`
			TempMax       []*float64 `json:"temperature_2m_max"`
			TempMin       []*float64 `json:"temperature_2m_min"`
			Precipitation []*float64 `json:"precipitation_sum"`
			ET0           []*float64 `json:"et0_fao_evapotranspiration"`
			Radiation     []*float64 `json:"shortwave_radiation_sum"`
			WindSpeed     []*float64 `json:"wind_speed_10m_mean"`
			Humidity      []*float64 `json:"relative_humidity_2m_mean"`
		} `json:"daily"`
		Hourly struct {
			Time        []string   `json:"time"`
			Temperature []*float64 `json:"temperature_2m"`
		} `json:"hourly"`
	}
	if err := p.decode(body, &payload); err != nil {
		return nil, err
	}

	hourly := make(map[string][]float64)
	for i, ts := range payload.Hourly.Time {
		t := at(payload.Hourly.Temperature, i)
		if t == nil || len(ts) < len(climate.DateLayout) {
			continue
		}
		day := ts[:len(climate.DateLayout)]
		hourly[day] = append(hourly[day], *t)
	}

	d := payload.Daily
	out := make([]climate.RawPayload, 0, len(d.Time))
	for i, day := range d.Time {
		raw := climate.RawPayload{
			Date:           day,
			TemperatureAvg: at(d.TempMean, i),
			TemperatureMax: at(d.TempMax, i),
			TemperatureMin: at(d.TempMin, i),
			Precipitation:  at(d.Precipitation, i),
			ETo:            at(d.ET0, i),
			SolarRadiation: at(d.Radiation, i),
			WindSpeed:      at(d.WindSpeed, i),
			Humidity:       at(d.Humidity, i),
		}
		if temps := hourly[day]; len(temps) > 0 {
			raw.ChillHours = ptr(climate.CountChillHours(temps))
			raw.FrostHours = ptr(climate.CountFrostHours(temps))
		}
		out = append(out, raw)
	}
	return out, nil
}

package sources

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/i474232898/agroclimate/internal/climate"
)

// AEMETSource implements climate.Source for the AEMET OpenData municipal
// daily forecast. It is forecast-only and addressed by postal code, which is
// mapped to the INE municipality code AEMET expects.
type AEMETSource struct {
	base
	apiKey         string
	municipalities map[string]string
}

func NewAEMETSource(client *http.Client, apiKey string, municipalities map[string]string) *AEMETSource {
	return &AEMETSource{
		base: newBase(climate.Descriptor{
			Kind:         climate.SourceAEMET,
			Name:         "AEMET OpenData",
			MaxChunkDays: 7,
			Direction:    climate.DirectionFuture,
			LocationForm: climate.LocationPostalCode,
			Parameters:   []string{"temperatura.maxima", "temperatura.minima", "humedadRelativa", "viento.velocidad"},
		}, "https://opendata.aemet.es/opendata/api", client),
		apiKey:         apiKey,
		municipalities: municipalities,
	}
}

// municipality resolves the INE code for a postal code; unmapped codes are
// passed through unchanged.
func (p *AEMETSource) municipality(postalCode string) string {
	if ine, ok := p.municipalities[postalCode]; ok {
		return ine
	}
	log.Printf("INFO: no INE municipality mapped for postal code %s; using it verbatim", postalCode)
	return postalCode
}

func (p *AEMETSource) Fetch(ctx context.Context, loc climate.Location, rng climate.DateRange) ([]climate.RawPayload, error) {
	if err := p.checkCapabilities(loc, rng); err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, &climate.CapabilityError{Source: p.desc.Kind, Reason: "AEMET api key is not configured"}
	}

	header := map[string]string{"api_key": p.apiKey}

	// OpenData answers with a pointer to the actual dataset.
	metaURL := fmt.Sprintf("%s/prediccion/especifica/municipio/diaria/%s", p.baseURL, p.municipality(loc.PostalCode))
	body, err := p.get(ctx, metaURL, header)
	if err != nil {
		return nil, err
	}
	var meta struct {
		Descripcion string `json:"descripcion"`
		Estado      int    `json:"estado"`
		Datos       string `json:"datos"`
	}
	if err := p.decode(body, &meta); err != nil {
		return nil, err
	}
	if meta.Estado != http.StatusOK {
		return nil, &climate.UpstreamError{Source: p.desc.Kind, StatusCode: meta.Estado, Body: meta.Descripcion}
	}
	if meta.Datos == "" {
		return nil, p.malformed(body, errors.New("missing datos url"))
	}

	body, err = p.get(ctx, meta.Datos, header)
	if err != nil {
		return nil, err
	}
	var forecast []struct {
		Prediccion struct {
			Dia []struct {
				Fecha       string `json:"fecha"`
				Temperatura struct {
					Maxima *float64 `json:"maxima"`
					Minima *float64 `json:"minima"`
				} `json:"temperatura"`
				HumedadRelativa struct {
					Maxima *float64 `json:"maxima"`
					Minima *float64 `json:"minima"`
				} `json:"humedadRelativa"`
				Viento []struct {
					Periodo   string   `json:"periodo"`
					Velocidad *float64 `json:"velocidad"`
				} `json:"viento"`
			} `json:"dia"`
		} `json:"prediccion"`
	}
	if err := p.decode(body, &forecast); err != nil {
		return nil, err
	}
	if len(forecast) == 0 {
		return nil, p.malformed(body, errors.New("empty forecast"))
	}

	from := rng.Start.Format(climate.DateLayout)
	to := rng.End.Format(climate.DateLayout)

	var out []climate.RawPayload
	for _, d := range forecast[0].Prediccion.Dia {
		if len(d.Fecha) < len(climate.DateLayout) {
			continue
		}
		day := d.Fecha[:len(climate.DateLayout)]
		if day < from || day > to {
			continue
		}

		raw := climate.RawPayload{
			Date:           day,
			TemperatureMax: d.Temperatura.Maxima,
			TemperatureMin: d.Temperatura.Minima,
		}
		if h := d.HumedadRelativa; h.Maxima != nil && h.Minima != nil {
			raw.Humidity = ptr((*h.Maxima + *h.Minima) / 2)
		}
		for _, w := range d.Viento {
			if w.Velocidad != nil && (w.Periodo == "" || w.Periodo == "00-24") {
				// Convert wind from kph to m/s.
				raw.WindSpeed = ptr(*w.Velocidad / 3.6)
				break
			}
		}
		out = append(out, raw)
	}
	return out, nil
}

package climate

import (
	"math"
	"time"
)

// NormalizeOptions controls derived fields.
type NormalizeOptions struct {
	BaseTemperature float64
	CropCoefficient float64

	// Latitude/Longitude of the request, used for the hemisphere of the
	// dormancy window and for the estimators below.
	Latitude  *float64
	Longitude *float64

	EstimateETo   bool
	EstimateChill bool
}

// Normalizer maps raw provider payloads into canonical daily records.
type Normalizer struct {
	opts NormalizeOptions
}

func NewNormalizer(opts NormalizeOptions) *Normalizer {
	return &Normalizer{opts: opts}
}

// Normalize returns nil when the payload has no usable temperature or an
// unparseable date; such days are dropped, never defaulted.
func (n *Normalizer) Normalize(raw RawPayload, kind SourceKind) *DailyRecord {
	date, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return nil
	}

	avg, ok := temperatureAvg(raw)
	if !ok {
		return nil
	}

	rec := &DailyRecord{
		Date:           date.Format(DateLayout),
		Source:         kind,
		TemperatureAvg: avg,
		TemperatureMin: copyFloat(raw.TemperatureMin),
		TemperatureMax: copyFloat(raw.TemperatureMax),
		Humidity:       clampPtr(raw.Humidity),
		SolarRadiation: clampPtr(raw.SolarRadiation),
		WindSpeed:      clampPtr(raw.WindSpeed),
	}
	if rec.Humidity != nil && *rec.Humidity > 100 {
		rec.Humidity = float(100)
	}
	if raw.Precipitation != nil {
		rec.Precipitation = math.Max(0, *raw.Precipitation)
	}

	n.deriveWater(rec, raw, date)
	n.deriveFrost(rec, raw)
	n.deriveChill(rec, raw, date)

	if raw.GDD != nil {
		rec.GDD = math.Max(0, *raw.GDD)
	} else {
		rec.GDD = math.Max(0, avg-n.opts.BaseTemperature)
	}

	return rec
}

// NormalizeAll normalizes a batch and reports how many payloads were dropped.
func (n *Normalizer) NormalizeAll(raws []RawPayload, kind SourceKind) ([]DailyRecord, int) {
	records := make([]DailyRecord, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		rec := n.Normalize(raw, kind)
		if rec == nil {
			dropped++
			continue
		}
		records = append(records, *rec)
	}
	return records, dropped
}

// temperatureAvg applies the fallback chain avg -> (max+min)/2 -> single extreme.
func temperatureAvg(raw RawPayload) (float64, bool) {
	switch {
	case raw.TemperatureAvg != nil:
		return *raw.TemperatureAvg, true
	case raw.TemperatureMax != nil && raw.TemperatureMin != nil:
		return (*raw.TemperatureMax + *raw.TemperatureMin) / 2, true
	case raw.TemperatureMax != nil:
		return *raw.TemperatureMax, true
	case raw.TemperatureMin != nil:
		return *raw.TemperatureMin, true
	}
	return 0, false
}

func (n *Normalizer) deriveWater(rec *DailyRecord, raw RawPayload, date time.Time) {
	rec.ETo = clampPtr(raw.ETo)
	if rec.ETo == nil && n.opts.EstimateETo && n.opts.Latitude != nil &&
		raw.TemperatureMin != nil && raw.TemperatureMax != nil {
		rec.ETo = float(HargreavesETo(date, *n.opts.Latitude, *raw.TemperatureMin, *raw.TemperatureMax))
		rec.ETOEstimated = true
	}

	rec.ETc = clampPtr(raw.ETc)
	if rec.ETc == nil && rec.ETo != nil {
		rec.ETc = float(*rec.ETo * n.opts.CropCoefficient)
	}
}

func (n *Normalizer) deriveFrost(rec *DailyRecord, raw RawPayload) {
	if raw.FrostHours != nil {
		rec.FrostHours = float(math.Max(0, *raw.FrostHours))
		return
	}
	if raw.TemperatureMin == nil {
		return
	}
	if *raw.TemperatureMin < 0 {
		rec.FrostHours = float(1)
		rec.FrostHoursEstimated = true
		return
	}
	rec.FrostHours = float(0)
}

func (n *Normalizer) deriveChill(rec *DailyRecord, raw RawPayload, date time.Time) {
	if !InDormancyWindow(date, n.opts.Latitude) {
		// Out of season chill is discarded regardless of what upstream reports.
		if raw.ChillHours != nil || n.opts.EstimateChill {
			rec.ChillHours = float(0)
		}
		return
	}

	if raw.ChillHours != nil {
		rec.ChillHours = float(math.Max(0, *raw.ChillHours))
		return
	}
	if n.opts.EstimateChill && raw.TemperatureMin != nil && raw.TemperatureMax != nil {
		hourly := HourlyTemperatures(*raw.TemperatureMin, *raw.TemperatureMax,
			DayLength(date, n.opts.Latitude, n.opts.Longitude))
		rec.ChillHours = float(CountChillHours(hourly))
		rec.ChillHoursEstimated = true
	}
}

func clampPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return float(math.Max(0, *v))
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return float(*v)
}

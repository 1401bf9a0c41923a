package climate

import "math"

// Thresholds for counting heat-stress and extreme-cold days.
type Thresholds struct {
	HeatStress  float64 `json:"heatStress"`
	ExtremeCold float64 `json:"extremeCold"`
}

// DefaultThresholds are used when no configuration overrides them.
var DefaultThresholds = Thresholds{HeatStress: 35, ExtremeCold: -10}

// ClimateProfile aggregates a canonical sequence. It is built fresh per
// request and never mutated afterwards.
type ClimateProfile struct {
	RecordCount int    `json:"recordCount"`
	YearCount   int    `json:"yearCount"`
	FirstDate   string `json:"firstDate,omitempty"`
	LastDate    string `json:"lastDate,omitempty"`

	AvgTemperature float64 `json:"avgTemperature"`
	MinTemperature float64 `json:"minTemperature"`
	MaxTemperature float64 `json:"maxTemperature"`

	AvgHumidity       *float64 `json:"avgHumidity,omitempty"`
	AvgSolarRadiation *float64 `json:"avgSolarRadiation,omitempty"`
	AvgWindSpeed      *float64 `json:"avgWindSpeed,omitempty"`

	TotalChillHours    float64 `json:"totalChillHours"`
	TotalFrostHours    float64 `json:"totalFrostHours"`
	FrostDays          int     `json:"frostDays"`
	TotalPrecipitation float64 `json:"totalPrecipitation"`
	TotalETo           float64 `json:"totalEto"`
	TotalETc           float64 `json:"totalEtc"`
	WaterDeficit       float64 `json:"waterDeficit"`
	TotalGDD           float64 `json:"totalGdd"`
	HeatStressDays     int     `json:"heatStressDays"`
	ExtremeColdDays    int     `json:"extremeColdDays"`

	Annual AnnualAverages `json:"annual"`
}

// AnnualAverages divides cumulative totals by the distinct year count.
type AnnualAverages struct {
	ChillHours     float64 `json:"chillHours"`
	FrostHours     float64 `json:"frostHours"`
	FrostDays      float64 `json:"frostDays"`
	Precipitation  float64 `json:"precipitation"`
	ETc            float64 `json:"etc"`
	WaterDeficit   float64 `json:"waterDeficit"`
	GDD            float64 `json:"gdd"`
	HeatStressDays float64 `json:"heatStressDays"`
}

// sum is a Neumaier compensated accumulator that also tracks how many
// values contributed.
type sum struct {
	total, comp float64
	n           int
}

func (s *sum) add(v float64) {
	t := s.total + v
	if math.Abs(s.total) >= math.Abs(v) {
		s.comp += (s.total - t) + v
	} else {
		s.comp += (v - t) + s.total
	}
	s.total = t
	s.n++
}

func (s *sum) addPtr(v *float64) {
	if v != nil {
		s.add(*v)
	}
}

func (s *sum) value() float64 {
	return s.total + s.comp
}

func (s *sum) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.value() / float64(s.n)
}

func (s *sum) meanPtr() *float64 {
	if s.n == 0 {
		return nil
	}
	return float(s.mean())
}

// Aggregate computes the climate profile of records. Missing optional fields
// are excluded from their own sums and denominators rather than counted as
// zero. An empty sequence yields an all-zero profile.
func Aggregate(records []DailyRecord, th Thresholds) ClimateProfile {
	var p ClimateProfile
	if len(records) == 0 {
		return p
	}

	var (
		temp, humidity, solar, wind         sum
		chill, frost, precip, eto, etc, gdd sum
	)
	minT, maxT := math.Inf(1), math.Inf(-1)
	p.FirstDate, p.LastDate = records[0].Date, records[0].Date

	for _, r := range records {
		temp.add(r.TemperatureAvg)
		humidity.addPtr(r.Humidity)
		solar.addPtr(r.SolarRadiation)
		wind.addPtr(r.WindSpeed)

		chill.addPtr(r.ChillHours)
		frost.addPtr(r.FrostHours)
		precip.add(r.Precipitation)
		eto.addPtr(r.ETo)
		etc.addPtr(r.ETc)
		gdd.add(r.GDD)

		lo, hi := r.TemperatureAvg, r.TemperatureAvg
		if r.TemperatureMin != nil {
			lo = *r.TemperatureMin
			if lo < th.ExtremeCold {
				p.ExtremeColdDays++
			}
		}
		if r.TemperatureMax != nil {
			hi = *r.TemperatureMax
			if hi > th.HeatStress {
				p.HeatStressDays++
			}
		}
		minT = math.Min(minT, lo)
		maxT = math.Max(maxT, hi)

		if r.FrostDay() {
			p.FrostDays++
		}
		if r.Date < p.FirstDate {
			p.FirstDate = r.Date
		}
		if r.Date > p.LastDate {
			p.LastDate = r.Date
		}
	}

	p.RecordCount = len(records)
	p.YearCount = DistinctYears(records)
	p.AvgTemperature = temp.mean()
	p.MinTemperature = minT
	p.MaxTemperature = maxT
	p.AvgHumidity = humidity.meanPtr()
	p.AvgSolarRadiation = solar.meanPtr()
	p.AvgWindSpeed = wind.meanPtr()

	p.TotalChillHours = chill.value()
	p.TotalFrostHours = frost.value()
	p.TotalPrecipitation = precip.value()
	p.TotalETo = eto.value()
	p.TotalETc = etc.value()
	p.TotalGDD = gdd.value()
	p.WaterDeficit = math.Max(0, p.TotalETc-p.TotalPrecipitation)

	p.Annual = AnnualAverages{
		ChillHours:     perYear(p.TotalChillHours, p.YearCount),
		FrostHours:     perYear(p.TotalFrostHours, p.YearCount),
		FrostDays:      perYear(float64(p.FrostDays), p.YearCount),
		Precipitation:  perYear(p.TotalPrecipitation, p.YearCount),
		ETc:            perYear(p.TotalETc, p.YearCount),
		WaterDeficit:   perYear(p.WaterDeficit, p.YearCount),
		GDD:            perYear(p.TotalGDD, p.YearCount),
		HeatStressDays: perYear(float64(p.HeatStressDays), p.YearCount),
	}
	return p
}

func perYear(total float64, years int) float64 {
	if years == 0 {
		return 0
	}
	return total / float64(years)
}

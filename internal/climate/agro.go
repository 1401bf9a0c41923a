package climate

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// Chill band bounds in degrees Celsius (0-7.2 °C model).
const (
	ChillBandLow  = 0.0
	ChillBandHigh = 7.2
)

// InDormancyWindow reports whether date falls in the four-month chilling season:
// November through February in the northern hemisphere, May through August
// for negative latitudes. A nil latitude is treated as northern.
func InDormancyWindow(date time.Time, lat *float64) bool {
	m := date.Month()
	if lat != nil && *lat < 0 {
		return m >= time.May && m <= time.August
	}
	return m == time.November || m == time.December || m == time.January || m == time.February
}

// HargreavesETo estimates reference evapotranspiration (mm/day) from daily
// extremes and extraterrestrial radiation at the given latitude.
func HargreavesETo(date time.Time, lat, tmin, tmax float64) float64 {
	j := float64(date.YearDay())
	phi := lat * math.Pi / 180

	dr := 1 + 0.033*math.Cos(2*math.Pi*j/365)
	delta := 0.409 * math.Sin(2*math.Pi*j/365-1.39)

	x := -math.Tan(phi) * math.Tan(delta)
	x = math.Max(-1, math.Min(1, x))
	ws := math.Acos(x)

	// MJ/m²/day, converted to equivalent evaporation with 0.408.
	ra := (24 * 60 / math.Pi) * 0.0820 * dr *
		(ws*math.Sin(phi)*math.Sin(delta) + math.Cos(phi)*math.Cos(delta)*math.Sin(ws))

	spread := math.Max(0, tmax-tmin)
	tmean := (tmax + tmin) / 2
	return math.Max(0, 0.0023*0.408*ra*(tmean+17.8)*math.Sqrt(spread))
}

// DayLength returns daylight hours at the location on date, falling back to
// 12 hours when no coordinates are known or the sun does not rise or set.
func DayLength(date time.Time, lat, lon *float64) float64 {
	if lat == nil || lon == nil {
		return 12
	}
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC)
	times := suncalc.GetTimes(noon, *lat, *lon)
	sunrise := times["sunrise"].Value
	sunset := times["sunset"].Value
	if sunrise.IsZero() || sunset.IsZero() || !sunset.After(sunrise) {
		return 12
	}
	h := sunset.Sub(sunrise).Hours()
	if math.IsNaN(h) || h <= 0 || h >= 24 {
		return 12
	}
	return h
}

// HourlyTemperatures reconstructs 24 hourly temperatures from daily extremes:
// a sine curve from sunrise to sunset and a logarithmic decay overnight.
func HourlyTemperatures(tmin, tmax, dayLength float64) []float64 {
	temps := make([]float64, 0, 24)
	daylight := int(math.Round(dayLength))
	if daylight < 1 {
		daylight = 1
	}
	if daylight > 23 {
		daylight = 23
	}

	for h := 0; h < daylight; h++ {
		temps = append(temps, tmin+(tmax-tmin)*math.Sin(math.Pi*float64(h)/(dayLength+4)))
	}
	sunset := tmin + (tmax-tmin)*math.Sin(math.Pi*dayLength/(dayLength+4))
	night := 24 - daylight
	for h := 1; h <= night; h++ {
		t := sunset - (sunset-tmin)*math.Log(float64(h))/math.Log(float64(night)+1)
		temps = append(temps, t)
	}
	return temps
}

// CountChillHours counts hours inside the chilling band.
func CountChillHours(hourly []float64) float64 {
	var n float64
	for _, t := range hourly {
		if t >= ChillBandLow && t <= ChillBandHigh {
			n++
		}
	}
	return n
}

// CountFrostHours counts hours below freezing.
func CountFrostHours(hourly []float64) float64 {
	var n float64
	for _, t := range hourly {
		if t < 0 {
			n++
		}
	}
	return n
}

package suitability

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/i474232898/agroclimate/internal/climate"
)

// Factor weights; they sum to 100.
const (
	weightChill = 40.0
	weightHeat  = 30.0
	weightCold  = 20.0
	weightWater = 10.0

	// Degrees beyond a tolerance still counted as marginal.
	marginalTempBand = 3.0

	SuitableScore = 75
	MarginalScore = 50
)

// Rating labels.
const (
	RatingSuitable   = "suitable"
	RatingMarginal   = "marginal"
	RatingUnsuitable = "unsuitable"
)

// VarietyRef names a variety or pollinizer.
type VarietyRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Recommendation is a scored variety for one evaluation.
type Recommendation struct {
	Variety                VarietyRef   `json:"variety"`
	Score                  int          `json:"score"`
	Rating                 string       `json:"rating"`
	MatchingFactors        []string     `json:"matchingFactors"`
	Concerns               []string     `json:"concerns"`
	Pollinizers            []VarietyRef `json:"pollinizers"`
	YearsToFirstProduction int          `json:"yearsToFirstProduction"`
}

// Engine scores varieties against a climate profile.
type Engine struct {
	catalogue *Catalogue
}

func NewEngine(catalogue *Catalogue) *Engine {
	return &Engine{catalogue: catalogue}
}

// Catalogue returns the reference table the engine resolves pollinizers from.
func (e *Engine) Catalogue() *Catalogue {
	return e.catalogue
}

// Score evaluates each variety and returns recommendations sorted by score,
// highest first, ties broken by name. The profile is only read.
func (e *Engine) Score(varieties []Variety, profile climate.ClimateProfile, loc climate.Location) []Recommendation {
	recs := make([]Recommendation, 0, len(varieties))
	for _, v := range varieties {
		recs = append(recs, e.scoreVariety(v, profile))
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Variety.Name < recs[j].Variety.Name
	})
	return recs
}

func (e *Engine) scoreVariety(v Variety, p climate.ClimateProfile) Recommendation {
	rec := Recommendation{
		Variety:                VarietyRef{ID: v.ID, Name: v.Name},
		MatchingFactors:        []string{},
		Concerns:               []string{},
		Pollinizers:            e.pollinizerRefs(v),
		YearsToFirstProduction: v.YearsToFirstProduction,
	}
	if p.YearCount == 0 {
		rec.Rating = RatingUnsuitable
		rec.Concerns = append(rec.Concerns, "Insufficient climate data to evaluate this variety")
		return rec
	}

	var score float64
	score += chillFactor(v, p, &rec)
	score += heatFactor(v, p, &rec)
	score += coldFactor(v, p, &rec)
	score += waterFactor(v, p, &rec)

	rec.Score = int(math.Round(math.Max(0, math.Min(100, score))))
	rec.Rating = rating(rec.Score)
	return rec
}

func chillFactor(v Variety, p climate.ClimateProfile, rec *Recommendation) float64 {
	chill := p.Annual.ChillHours
	switch {
	case chill >= v.ChillHoursMin && chill <= v.ChillHoursMax:
		rec.MatchingFactors = append(rec.MatchingFactors,
			fmt.Sprintf("Chill hours (%.0f/yr) within required range %.0f-%.0f", chill, v.ChillHoursMin, v.ChillHoursMax))
		return weightChill
	case chill < v.ChillHoursMin && chill >= 0.9*v.ChillHoursMin:
		rec.Concerns = append(rec.Concerns,
			fmt.Sprintf("Chill hours (%.0f/yr) marginally below minimum of %.0f", chill, v.ChillHoursMin))
		return weightChill / 2
	case chill < v.ChillHoursMin:
		rec.Concerns = append(rec.Concerns,
			fmt.Sprintf("Insufficient chill hours (%.0f/yr, needs %.0f)", chill, v.ChillHoursMin))
		return 0
	case chill <= 1.2*v.ChillHoursMax:
		rec.Concerns = append(rec.Concerns,
			fmt.Sprintf("Chill hours (%.0f/yr) slightly above range %.0f-%.0f", chill, v.ChillHoursMin, v.ChillHoursMax))
		return weightChill * 0.75
	default:
		rec.Concerns = append(rec.Concerns,
			fmt.Sprintf("Chill hours (%.0f/yr) well above range %.0f-%.0f; late flowering likely", chill, v.ChillHoursMin, v.ChillHoursMax))
		return weightChill * 0.4
	}
}

func heatFactor(v Variety, p climate.ClimateProfile, rec *Recommendation) float64 {
	margin := v.MaxSummerTemp - p.MaxTemperature
	switch {
	case margin >= 0:
		rec.MatchingFactors = append(rec.MatchingFactors,
			fmt.Sprintf("Peak temperature %.1f°C within heat tolerance of %.1f°C", p.MaxTemperature, v.MaxSummerTemp))
		return weightHeat
	case margin >= -marginalTempBand:
		rec.Concerns = append(rec.Concerns,
			fmt.Sprintf("Peak temperature %.1f°C marginally exceeds heat tolerance of %.1f°C", p.MaxTemperature, v.MaxSummerTemp))
		return weightHeat / 2
	default:
		rec.Concerns = append(rec.Concerns,
			fmt.Sprintf("Peak temperature %.1f°C exceeds heat tolerance of %.1f°C", p.MaxTemperature, v.MaxSummerTemp))
		return 0
	}
}

func coldFactor(v Variety, p climate.ClimateProfile, rec *Recommendation) float64 {
	margin := p.MinTemperature - v.MinWinterTemp
	switch {
	case margin >= 0:
		rec.MatchingFactors = append(rec.MatchingFactors,
			fmt.Sprintf("Minimum temperature %.1f°C within cold tolerance of %.1f°C", p.MinTemperature, v.MinWinterTemp))
		return weightCold
	case margin >= -marginalTempBand:
		rec.Concerns = append(rec.Concerns,
			fmt.Sprintf("Minimum temperature %.1f°C marginally below cold tolerance of %.1f°C", p.MinTemperature, v.MinWinterTemp))
		return weightCold / 2
	default:
		rec.Concerns = append(rec.Concerns,
			fmt.Sprintf("Minimum temperature %.1f°C below cold tolerance of %.1f°C; frost damage risk", p.MinTemperature, v.MinWinterTemp))
		return 0
	}
}

func waterFactor(v Variety, p climate.ClimateProfile, rec *Recommendation) float64 {
	rain := p.Annual.Precipitation
	if v.AnnualWaterNeed <= 0 || rain >= v.AnnualWaterNeed {
		rec.MatchingFactors = append(rec.MatchingFactors,
			fmt.Sprintf("Rainfall (%.0f mm/yr) covers the annual water need", rain))
		return weightWater
	}
	rec.Concerns = append(rec.Concerns,
		fmt.Sprintf("Irrigation required: about %.0f mm/yr beyond rainfall", v.AnnualWaterNeed-rain))
	return weightWater * rain / v.AnnualWaterNeed
}

func rating(score int) string {
	switch {
	case score >= SuitableScore:
		return RatingSuitable
	case score >= MarginalScore:
		return RatingMarginal
	default:
		return RatingUnsuitable
	}
}

func (e *Engine) pollinizerRefs(v Variety) []VarietyRef {
	refs := make([]VarietyRef, 0, len(v.Pollinizers))
	for _, id := range v.Pollinizers {
		name := id
		if e.catalogue != nil {
			if p, ok := e.catalogue.Pollinizer(id); ok {
				name = p.Name
			}
		}
		refs = append(refs, VarietyRef{ID: id, Name: name})
	}
	return refs
}

// Risk thresholds, per year.
const (
	FrostRiskDays      = 30.0
	DroughtRiskDeficit = 400.0
	HeatRiskDays       = 20.0
)

// Summary is the narrative part of a detailed report.
type Summary struct {
	TotalVarieties   int      `json:"totalVarieties"`
	SuitableCount    int      `json:"suitableCount"`
	MarginalCount    int      `json:"marginalCount"`
	TopScore         int      `json:"topScore"`
	TopVariety       string   `json:"topVariety,omitempty"`
	RiskLevel        string   `json:"riskLevel"`
	Risks            []string `json:"risks"`
	PlantingStrategy string   `json:"plantingStrategy"`
	Narrative        string   `json:"narrative"`
}

// Report composes ranked recommendations with the profile and location.
type Report struct {
	Location        climate.Location       `json:"location"`
	Profile         climate.ClimateProfile `json:"profile"`
	Recommendations []Recommendation       `json:"recommendations"`
	Summary         Summary                `json:"summary"`
}

// Report builds the detailed report. It is deterministic for identical inputs.
func (e *Engine) Report(recs []Recommendation, profile climate.ClimateProfile, loc climate.Location) Report {
	s := Summary{TotalVarieties: len(recs), Risks: []string{}}
	for _, r := range recs {
		switch r.Rating {
		case RatingSuitable:
			s.SuitableCount++
		case RatingMarginal:
			s.MarginalCount++
		}
	}
	if len(recs) > 0 {
		s.TopScore = recs[0].Score
		s.TopVariety = recs[0].Variety.Name
	}

	a := profile.Annual
	if a.FrostDays > FrostRiskDays {
		s.Risks = append(s.Risks, fmt.Sprintf("frequent frost (%.0f frost days/yr)", a.FrostDays))
	}
	if a.WaterDeficit > DroughtRiskDeficit {
		s.Risks = append(s.Risks, fmt.Sprintf("drought (%.0f mm/yr water deficit)", a.WaterDeficit))
	}
	if a.HeatStressDays > HeatRiskDays {
		s.Risks = append(s.Risks, fmt.Sprintf("heat stress (%.0f days/yr)", a.HeatStressDays))
	}
	switch len(s.Risks) {
	case 0:
		s.RiskLevel = "low"
	case 1:
		s.RiskLevel = "moderate"
	default:
		s.RiskLevel = "high"
	}

	s.PlantingStrategy = plantingStrategy(recs)
	s.Narrative = fmt.Sprintf("%d of %d varieties are suitable and %d marginal at %s. Top score %d. Overall climate risk: %s.",
		s.SuitableCount, s.TotalVarieties, s.MarginalCount, describeLocation(loc), s.TopScore, s.RiskLevel)

	return Report{
		Location:        loc,
		Profile:         profile,
		Recommendations: recs,
		Summary:         s,
	}
}

func plantingStrategy(recs []Recommendation) string {
	if len(recs) == 0 || recs[0].Score < MarginalScore {
		return "No variety is well suited to this location; consider a site with a closer climate match."
	}
	top := recs[0]
	if len(top.Pollinizers) == 0 {
		return fmt.Sprintf("Plant %s as the main variety; expect first production in about %d years.",
			top.Variety.Name, top.YearsToFirstProduction)
	}
	names := make([]string, 0, len(top.Pollinizers))
	for _, p := range top.Pollinizers {
		names = append(names, p.Name)
	}
	return fmt.Sprintf("Plant %s as the main variety with %s as pollinizer; expect first production in about %d years.",
		top.Variety.Name, strings.Join(names, " or "), top.YearsToFirstProduction)
}

func describeLocation(loc climate.Location) string {
	if loc.HasCoordinates() {
		return fmt.Sprintf("%.4f, %.4f", *loc.Latitude, *loc.Longitude)
	}
	if loc.PostalCode != "" {
		return "postal code " + loc.PostalCode
	}
	return "the requested location"
}

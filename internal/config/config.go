package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/agroclimate/internal/climate"
	"github.com/i474232898/agroclimate/internal/climate/sources"
)

type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration

	// DefaultSource is applied when a request omits its source.
	DefaultSource climate.SourceKind

	Limits   climate.Limits
	Pipeline climate.Config

	AEMETAPIKey         string
	AEMETMunicipalities map[string]string
	SIARAPIKey          string
	SIARStations        []sources.SIARStation

	GeocoderAPIKey  string
	GeocoderCountry string

	Store StoreConfig

	// SchedulerInterval controls how often cache pruning and warm-up run.
	SchedulerInterval time.Duration
	WarmLocations     []climate.Location
	WarmDays          int
}

// StoreConfig selects and configures the series cache backend.
type StoreConfig struct {
	Driver     string // memory, sqlite or redis
	MaxAge     time.Duration
	MaxEntries int
	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	cfg.DefaultSource = climate.SourceKind(strings.ToUpper(getenvDefault("DEFAULT_SOURCE", string(climate.SourceNASAPower))))
	switch cfg.DefaultSource {
	case climate.SourceNASAPower, climate.SourceERA5, climate.SourceSIAR, climate.SourceAEMET:
	default:
		return nil, fmt.Errorf("invalid DEFAULT_SOURCE: %s", cfg.DefaultSource)
	}

	cfg.Limits = climate.Limits{
		MaxRangeDays: getenvInt("MAX_RANGE_DAYS", 730),
		ForecastDays: getenvInt("FORECAST_DAYS", 7),
	}

	pipeline := climate.DefaultConfig()
	pipeline.HistoricalChunkDays = getenvInt("HISTORICAL_CHUNK_DAYS", pipeline.HistoricalChunkDays)
	pipeline.ChunkConcurrency = getenvInt("CHUNK_CONCURRENCY", pipeline.ChunkConcurrency)
	pipeline.BaseTemperature = getenvFloat("BASE_TEMPERATURE", pipeline.BaseTemperature)
	pipeline.CropCoefficient = getenvFloat("CROP_COEFFICIENT", pipeline.CropCoefficient)
	pipeline.EstimateETo = getenvBool("ESTIMATE_ETO", pipeline.EstimateETo)
	pipeline.EstimateChill = getenvBool("ESTIMATE_CHILL", pipeline.EstimateChill)
	pipeline.Thresholds.HeatStress = getenvFloat("HEAT_STRESS_THRESHOLD", pipeline.Thresholds.HeatStress)
	pipeline.Thresholds.ExtremeCold = getenvFloat("EXTREME_COLD_THRESHOLD", pipeline.Thresholds.ExtremeCold)
	cfg.Pipeline = pipeline

	cfg.AEMETAPIKey = os.Getenv("AEMET_API_KEY")
	if cfg.AEMETMunicipalities, err = parseMunicipalities(os.Getenv("AEMET_MUNICIPALITIES")); err != nil {
		return nil, err
	}
	cfg.SIARAPIKey = os.Getenv("SIAR_API_KEY")
	if cfg.SIARStations, err = parseStations(os.Getenv("SIAR_STATIONS")); err != nil {
		return nil, err
	}

	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	cfg.GeocoderCountry = getenvDefault("GEOCODER_COUNTRY", "Spain")

	cfg.Store = StoreConfig{
		Driver:        getenvDefault("STORE_DRIVER", "memory"),
		MaxEntries:    getenvInt("STORE_MAX_ENTRIES", 500),
		SQLitePath:    getenvDefault("SQLITE_PATH", "data/agroclimate.db"),
		RedisAddr:     getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),
	}
	if cfg.Store.MaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	if cfg.SchedulerInterval, err = getenvDuration("SCHEDULER_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if cfg.WarmLocations, err = parseLocations(os.Getenv("WARM_LOCATIONS")); err != nil {
		return nil, err
	}
	cfg.WarmDays = getenvInt("WARM_DAYS", 30)

	return cfg, nil
}

// parseMunicipalities parses "postal:ine,postal:ine".
func parseMunicipalities(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range splitList(s) {
		parts := strings.Split(item, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid AEMET_MUNICIPALITIES entry %q; want postal:ine", item)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

// parseStations parses "code:lat:lon,code:lat:lon".
func parseStations(s string) ([]sources.SIARStation, error) {
	var out []sources.SIARStation
	for _, item := range splitList(s) {
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid SIAR_STATIONS entry %q; want code:lat:lon", item)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SIAR_STATIONS latitude in %q: %w", item, err)
		}
		lon, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SIAR_STATIONS longitude in %q: %w", item, err)
		}
		out = append(out, sources.SIARStation{Code: parts[0], Latitude: lat, Longitude: lon})
	}
	return out, nil
}

// parseLocations parses "lat:lon,lat:lon".
func parseLocations(s string) ([]climate.Location, error) {
	var out []climate.Location
	for _, item := range splitList(s) {
		parts := strings.Split(item, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid WARM_LOCATIONS entry %q; want lat:lon", item)
		}
		lat, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid WARM_LOCATIONS latitude in %q: %w", item, err)
		}
		lon, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid WARM_LOCATIONS longitude in %q: %w", item, err)
		}
		out = append(out, climate.Coordinates(lat, lon))
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v4"

	"github.com/i474232898/agroclimate/internal/climate"
	"github.com/i474232898/agroclimate/internal/climate/sources"
	"github.com/i474232898/agroclimate/internal/config"
	"github.com/i474232898/agroclimate/internal/store"
	"github.com/i474232898/agroclimate/internal/suitability"
)

type QueryFlags struct {
	Source     string  `short:"s" help:"Data source (NASA_POWER, ERA5, SIAR, AEMET). Defaults to DEFAULT_SOURCE."`
	Latitude   float64 `name:"lat" help:"Latitude in decimal degrees."`
	Longitude  float64 `name:"lon" help:"Longitude in decimal degrees."`
	PostalCode string  `name:"postal-code" help:"5-digit postal code (AEMET)."`
	Start      string  `help:"First day, YYYY-MM-DD."`
	End        string  `help:"Last day, YYYY-MM-DD."`
	Historical bool    `help:"Split long ranges into chunks."`
}

func (f QueryFlags) request(defaultSource climate.SourceKind) climate.Request {
	req := climate.Request{
		Source:       climate.SourceKind(strings.ToUpper(f.Source)),
		PostalCode:   f.PostalCode,
		StartDate:    f.Start,
		EndDate:      f.End,
		IsHistorical: f.Historical,
	}
	if req.Source == "" {
		req.Source = defaultSource
	}
	if req.Source != climate.SourceAEMET {
		lat, lon := f.Latitude, f.Longitude
		req.Latitude = &lat
		req.Longitude = &lon
	}
	return req
}

type fetchCmd struct {
	QueryFlags `embed:""`
}

func (c *fetchCmd) Run(app *appContext) error {
	res, err := app.fetch(c.QueryFlags)
	if err != nil {
		return err
	}
	log.Printf("INFO: %d records in %d chunk(s), %d dropped", len(res.Records), res.Chunks, res.Dropped)
	return app.print(res.Records)
}

type profileCmd struct {
	QueryFlags `embed:""`
}

func (c *profileCmd) Run(app *appContext) error {
	res, err := app.fetch(c.QueryFlags)
	if err != nil {
		return err
	}
	return app.print(app.service.Profile(res.Records))
}

type suitabilityCmd struct {
	QueryFlags `embed:""`
	Varieties  []string `help:"Variety ids to evaluate; all when empty."`
	Report     bool     `help:"Print the detailed report instead of the ranked list."`
}

func (c *suitabilityCmd) Run(app *appContext) error {
	engine := suitability.NewEngine(suitability.DefaultCatalogue())
	varieties, err := engine.Catalogue().Select(c.Varieties)
	if err != nil {
		return err
	}

	res, err := app.fetch(c.QueryFlags)
	if err != nil {
		return err
	}
	profile := app.service.Profile(res.Records)
	recs := engine.Score(varieties, profile, res.Query.Location)
	if c.Report {
		return app.print(engine.Report(recs, profile, res.Query.Location))
	}
	return app.print(recs)
}

var cli struct {
	Retries uint64 `help:"Retries for failed upstream calls." default:"3"`
	Cache   string `help:"Optional sqlite file used as a series cache."`

	Fetch       fetchCmd       `cmd:"" help:"Fetch the canonical daily series."`
	Profile     profileCmd     `cmd:"" help:"Aggregate a climate profile."`
	Suitability suitabilityCmd `cmd:"" help:"Score varieties against a climate profile."`
}

type appContext struct {
	ctx     context.Context
	cfg     *config.AppConfig
	service *climate.Service
	retries uint64
}

func (a *appContext) fetch(f QueryFlags) (climate.Result, error) {
	q, err := climate.ValidateRequest(f.request(a.cfg.DefaultSource), a.service.Today(), a.cfg.Limits)
	if err != nil {
		return climate.Result{}, err
	}

	var res climate.Result
	err = retry(a.ctx, a.retries, func() error {
		var err error
		res, err = a.service.Fetch(a.ctx, q)
		return err
	})
	return res, err
}

func (a *appContext) print(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// retry re-runs op with exponential backoff. Errors that a retry cannot fix
// stop it immediately.
func retry(ctx context.Context, retries uint64, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if permanent(err) {
			return backoff.Permanent(err)
		}
		log.Printf("INFO: attempt %d failed: %v", attempt, err)
		return err
	}, bo)
}

func permanent(err error) bool {
	var (
		verr *climate.ValidationError
		cerr *climate.CapabilityError
		uerr *climate.UpstreamError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &cerr):
		return true
	case errors.Is(err, climate.ErrUnknownSource):
		return true
	case errors.As(err, &uerr):
		// Client errors do not improve on retry, except rate limiting.
		return uerr.StatusCode >= 400 && uerr.StatusCode < 500 && uerr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("agroclimate-cli"),
		kong.Description("Fetch agroclimatic series and score crop varieties."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cache climate.Store
	if cli.Cache != "" {
		s, err := store.OpenSQLite(cli.Cache, cfg.Store.MaxAge)
		if err != nil {
			log.Fatalf("failed to open cache: %v", err)
		}
		defer s.Close()
		cache = s
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	registry := climate.NewRegistry(
		sources.NewNASAPowerSource(httpClient),
		sources.NewERA5Source(httpClient),
		sources.NewSIARSource(httpClient, cfg.SIARAPIKey, cfg.SIARStations),
		sources.NewAEMETSource(httpClient, cfg.AEMETAPIKey, cfg.AEMETMunicipalities),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &appContext{
		ctx:     climate.WithRequestID(ctx, "cli"),
		cfg:     cfg,
		service: climate.NewService(registry, cache, cfg.Pipeline),
		retries: cli.Retries,
	}
	if err := kctx.Run(app); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

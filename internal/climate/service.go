package climate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/i474232898/agroclimate/internal/metrics"
)

// Config tunes the pipeline.
type Config struct {
	// HistoricalChunkDays caps each upstream call of a historical request;
	// the source's own MaxChunkDays applies when smaller.
	HistoricalChunkDays int
	// ChunkConcurrency bounds outstanding chunk requests per provider.
	ChunkConcurrency int

	BaseTemperature float64
	CropCoefficient float64
	EstimateETo     bool
	EstimateChill   bool

	Thresholds Thresholds
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		HistoricalChunkDays: 730,
		ChunkConcurrency:    3,
		BaseTemperature:     10,
		CropCoefficient:     0.6,
		EstimateETo:         true,
		EstimateChill:       true,
		Thresholds:          DefaultThresholds,
	}
}

// Service runs the pipeline: split, fetch, normalize, merge.
type Service struct {
	registry *Registry
	store    Store
	cfg      Config
	now      func() time.Time
}

// NewService creates a new Service. store may be nil to disable caching.
func NewService(registry *Registry, store Store, cfg Config) *Service {
	if cfg.HistoricalChunkDays <= 0 {
		cfg.HistoricalChunkDays = 730
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = 1
	}
	return &Service{
		registry: registry,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Today returns the current UTC calendar day.
func (s *Service) Today() time.Time {
	return Day(s.now())
}

// Registry exposes the registered sources.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Result is the canonical sequence produced for one query.
type Result struct {
	Query   Query
	Records []DailyRecord
	Chunks  int
	Dropped int
	Cached  bool
}

// YearsCount is the number of distinct calendar years present in the data.
func (r Result) YearsCount() int {
	return DistinctYears(r.Records)
}

// Fetch runs the pipeline for one validated query. Historical queries are split
// into chunks fetched concurrently; if any chunk fails the whole query fails
// and nothing is merged.
func (s *Service) Fetch(ctx context.Context, q Query) (Result, error) {
	src, err := s.registry.Get(q.Source)
	if err != nil {
		return Result{}, err
	}
	desc := src.Descriptor()
	rid := RequestID(ctx)

	chunks := []DateRange{q.Range}
	if q.Historical {
		size := s.cfg.HistoricalChunkDays
		if desc.MaxChunkDays > 0 && desc.MaxChunkDays < size {
			size = desc.MaxChunkDays
		}
		chunks = SplitRange(q.Range.Start, q.Range.End, size)
	}

	key := SeriesKey(q)
	cacheable := s.store != nil && desc.Direction != DirectionFuture && q.Range.End.Before(s.Today())
	if cacheable {
		records, err := s.store.GetSeries(ctx, key)
		switch {
		case err == nil:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			log.Printf("DEBUG: [%s] cache hit for %s", rid, key)
			return Result{Query: q, Records: records, Chunks: len(chunks), Cached: true}, nil
		case !errors.Is(err, ErrNotCached):
			log.Printf("ERROR: [%s] cache lookup for %s failed: %v", rid, key, err)
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	log.Printf("DEBUG: [%s] fetching %s %s for %s in %d chunk(s)", rid, q.Source, q.Range, q.Location.Key(), len(chunks))

	batches, dropped, err := s.fetchChunks(ctx, src, q, chunks)
	if err != nil {
		return Result{}, err
	}

	records := Merge(batches...)
	if cacheable {
		if err := s.store.SaveSeries(ctx, key, records); err != nil {
			log.Printf("ERROR: [%s] cache save for %s failed: %v", rid, key, err)
		}
	}

	return Result{
		Query:   q,
		Records: records,
		Chunks:  len(chunks),
		Dropped: dropped,
	}, nil
}

func (s *Service) fetchChunks(parent context.Context, src Source, q Query, chunks []DateRange) ([][]DailyRecord, int, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	kind := string(q.Source)
	normalizer := s.normalizer(q.Location)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		batches  = make([][]DailyRecord, len(chunks))
		dropped  = make([]int, len(chunks))
		sem      = make(chan struct{}, s.cfg.ChunkConcurrency)
	)

	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk DateRange) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}

			raws, err := src.Fetch(ctx, q.Location, chunk)
			if err != nil {
				metrics.ChunksTotal.WithLabelValues(kind, "failed").Inc()
				if len(chunks) > 1 {
					err = &ChunkError{Index: i, Range: chunk, Err: err}
				}
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			metrics.ChunksTotal.WithLabelValues(kind, "ok").Inc()

			recs, d := normalizer.NormalizeAll(raws, q.Source)
			metrics.RecordsNormalized.WithLabelValues(kind, "kept").Add(float64(len(recs)))
			metrics.RecordsNormalized.WithLabelValues(kind, "dropped").Add(float64(d))

			// Each goroutine owns its own index.
			batches[i] = recs
			dropped[i] = d
		}(i, chunk)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, 0, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, 0, err
	}

	total := 0
	for _, d := range dropped {
		total += d
	}
	return batches, total, nil
}

func (s *Service) normalizer(loc Location) *Normalizer {
	return NewNormalizer(NormalizeOptions{
		BaseTemperature: s.cfg.BaseTemperature,
		CropCoefficient: s.cfg.CropCoefficient,
		Latitude:        loc.Latitude,
		Longitude:       loc.Longitude,
		EstimateETo:     s.cfg.EstimateETo,
		EstimateChill:   s.cfg.EstimateChill,
	})
}

// SourceOutcome is one provider's share of a multi-source fetch.
type SourceOutcome struct {
	Source SourceKind
	Result Result
	Err    error
}

// MultiResult holds the merged sequence and per-provider outcomes in the
// order the sources were requested.
type MultiResult struct {
	Records  []DailyRecord
	Outcomes []SourceOutcome
}

// FetchMulti queries several providers concurrently. Failures are isolated
// per provider; the call fails only when every provider fails. On date
// collisions the provider listed later wins.
func (s *Service) FetchMulti(ctx context.Context, queries []Query) (MultiResult, error) {
	outcomes := make([]SourceOutcome, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q Query) {
			defer wg.Done()
			res, err := s.Fetch(ctx, q)
			if err != nil {
				log.Printf("provider %s fetch failed for %s: %v", q.Source, q.Location.Key(), err)
			}
			outcomes[i] = SourceOutcome{Source: q.Source, Result: res, Err: err}
		}(i, q)
	}
	wg.Wait()

	var (
		batches [][]DailyRecord
		errs    []error
	)
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Source, o.Err))
			continue
		}
		batches = append(batches, o.Result.Records)
	}

	if len(batches) == 0 {
		return MultiResult{Outcomes: outcomes}, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	}

	return MultiResult{
		Records:  Merge(batches...),
		Outcomes: outcomes,
	}, nil
}

// Profile aggregates records with the configured thresholds.
func (s *Service) Profile(records []DailyRecord) ClimateProfile {
	return Aggregate(records, s.cfg.Thresholds)
}

// SeriesKey identifies a query's canonical sequence in a Store.
func SeriesKey(q Query) string {
	return fmt.Sprintf("%s|%s|%s|%s", q.Source, q.Location.Key(),
		q.Range.Start.Format(DateLayout), q.Range.End.Format(DateLayout))
}

type requestIDKey struct{}

// WithRequestID tags ctx with a request id used as a log prefix.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "-".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return "-"
}

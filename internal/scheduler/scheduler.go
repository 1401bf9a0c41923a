package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/agroclimate/internal/climate"
)

// warmLag keeps warm-up ranges clear of days providers have not published yet.
const warmLag = 7

// Scheduler periodically prunes the series cache and pre-fetches climate
// series for configured locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *climate.Service
	store     climate.Store
	source    climate.SourceKind
	locations []climate.Location
	warmDays  int
	interval  time.Duration
}

// New creates a new Scheduler. store may be nil, in which case only warm-up runs.
func New(service *climate.Service, store climate.Store, source climate.SourceKind, locations []climate.Location, warmDays int, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		store:     store,
		source:    source,
		locations: locations,
		warmDays:  warmDays,
		interval:  interval,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.store == nil && len(s.locations) == 0 {
		log.Println("scheduler: no store and no locations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	if s.store != nil {
		if _, err := s.scheduler.Every(minutes).Minutes().Do(s.prune); err != nil {
			return err
		}
	}
	if len(s.locations) > 0 {
		if _, err := s.scheduler.Every(minutes).Minutes().Do(s.warm); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.store.Prune(ctx)
	if err != nil {
		log.Printf("scheduler: cache prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("scheduler: pruned %d expired series", n)
	}
}

func (s *Scheduler) warm() {
	log.Println("scheduler: running warm-up job")

	queries := WarmQueries(s.source, s.locations, s.warmDays, s.service.Today())

	var wg sync.WaitGroup
	for _, q := range queries {
		q := q
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			ctx = climate.WithRequestID(ctx, "warm")

			res, err := s.service.Fetch(ctx, q)
			if err != nil {
				log.Printf("scheduler: warm-up failed for %s: %v", q.Location.Key(), err)
				return
			}
			log.Printf("scheduler: warmed %s %s (%d records, cached=%t)", q.Location.Key(), q.Range, len(res.Records), res.Cached)
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed warm-up job")
}

// WarmQueries builds the fixed past-dated queries the warm-up job runs: the
// last days days ending a week before today.
func WarmQueries(source climate.SourceKind, locations []climate.Location, days int, today time.Time) []climate.Query {
	if days <= 0 {
		days = 30
	}
	end := climate.Day(today).AddDate(0, 0, -warmLag)
	rng := climate.NewDateRange(end.AddDate(0, 0, -(days-1)), end)

	out := make([]climate.Query, 0, len(locations))
	for _, loc := range locations {
		out = append(out, climate.Query{
			Source:   source,
			Location: loc,
			Range:    rng,
		})
	}
	return out
}

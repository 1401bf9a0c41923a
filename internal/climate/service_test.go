package climate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubSource struct {
	desc Descriptor
	fail func(rng DateRange) error
	fill func(date time.Time) RawPayload

	mu    sync.Mutex
	calls []DateRange
}

func newStub(kind SourceKind, maxChunk int, dir Direction) *stubSource {
	form := LocationCoordinates
	if dir == DirectionFuture {
		form = LocationPostalCode
	}
	return &stubSource{desc: Descriptor{Kind: kind, Name: string(kind), MaxChunkDays: maxChunk, Direction: dir, LocationForm: form}}
}

func (s *stubSource) Descriptor() Descriptor { return s.desc }

func (s *stubSource) Fetch(ctx context.Context, loc Location, rng DateRange) ([]RawPayload, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rng)
	s.mu.Unlock()

	if s.fail != nil {
		if err := s.fail(rng); err != nil {
			return nil, err
		}
	}
	var out []RawPayload
	for d := rng.Start; !d.After(rng.End); d = d.AddDate(0, 0, 1) {
		if s.fill != nil {
			out = append(out, s.fill(d))
			continue
		}
		out = append(out, RawPayload{Date: d.Format(DateLayout), TemperatureAvg: float(12), Precipitation: float(1)})
	}
	return out, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type mapStore struct {
	mu     sync.Mutex
	series map[string][]DailyRecord
	gets   int
}

func newMapStore() *mapStore {
	return &mapStore{series: make(map[string][]DailyRecord)}
}

func (m *mapStore) SaveSeries(_ context.Context, key string, records []DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[key] = records
	return nil
}

func (m *mapStore) GetSeries(_ context.Context, key string) ([]DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	r, ok := m.series[key]
	if !ok {
		return nil, ErrNotCached
	}
	return r, nil
}

func (m *mapStore) Prune(context.Context) (int, error) { return 0, nil }

func fixedClock(s string) func() time.Time {
	t := day(s).Add(10 * time.Hour)
	return func() time.Time { return t }
}

func TestServiceFetchSpecExample(t *testing.T) {
	src := newStub(SourceNASAPower, 730, DirectionPast)
	precip := map[string]float64{"2023-01-01": 0, "2023-01-02": 5, "2023-01-03": 2}
	src.fill = func(d time.Time) RawPayload {
		k := d.Format(DateLayout)
		return RawPayload{Date: k, TemperatureAvg: float(8), Precipitation: float(precip[k])}
	}

	svc := NewService(NewRegistry(src), nil, DefaultConfig())
	svc.SetClock(fixedClock("2024-06-15"))

	lat, lon := 38.0, -1.5
	q, err := ValidateRequest(Request{
		Source: SourceNASAPower, Latitude: &lat, Longitude: &lon,
		StartDate: "2023-01-01", EndDate: "2023-01-03",
	}, svc.Today(), DefaultLimits)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	res, err := svc.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 3 || res.Chunks != 1 {
		t.Fatalf("expected 3 records in 1 chunk, got %d in %d", len(res.Records), res.Chunks)
	}
	if p := svc.Profile(res.Records); p.TotalPrecipitation != 7 {
		t.Fatalf("expected total precipitation 7, got %v", p.TotalPrecipitation)
	}
}

func TestServiceFetchHistoricalChunks(t *testing.T) {
	src := newStub(SourceNASAPower, 730, DirectionPast)
	svc := NewService(NewRegistry(src), nil, DefaultConfig())
	svc.SetClock(fixedClock("2024-06-15"))

	q := Query{
		Source:     SourceNASAPower,
		Location:   Coordinates(38, -1.5),
		Range:      NewDateRange(day("2021-01-01"), day("2023-12-31")),
		Historical: true,
	}
	res, err := svc.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Chunks != 2 || src.callCount() != 2 {
		t.Fatalf("expected 2 chunks, got %d (%d calls)", res.Chunks, src.callCount())
	}
	if len(res.Records) != 1095 {
		t.Fatalf("expected 1095 records, got %d", len(res.Records))
	}
	if res.YearsCount() != 3 {
		t.Fatalf("expected 3 distinct years, got %d", res.YearsCount())
	}
	for i := 1; i < len(res.Records); i++ {
		if res.Records[i-1].Date >= res.Records[i].Date {
			t.Fatalf("records not strictly ascending at %d", i)
		}
	}
}

func TestServiceChunkSizeUsesSourceLimit(t *testing.T) {
	src := newStub(SourceSIAR, 366, DirectionPast)
	svc := NewService(NewRegistry(src), nil, DefaultConfig())
	svc.SetClock(fixedClock("2024-06-15"))

	res, err := svc.Fetch(context.Background(), Query{
		Source:     SourceSIAR,
		Location:   Coordinates(38, -1.5),
		Range:      NewDateRange(day("2021-01-01"), day("2023-12-31")),
		Historical: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Chunks != 3 {
		t.Fatalf("expected 3 chunks of at most 366 days, got %d", res.Chunks)
	}
}

func TestServiceHistoricalFailsAtomically(t *testing.T) {
	src := newStub(SourceNASAPower, 730, DirectionPast)
	upstream := &UpstreamError{Source: SourceNASAPower, StatusCode: 500}
	src.fail = func(rng DateRange) error {
		if rng.Start.Year() == 2023 {
			return upstream
		}
		return nil
	}
	svc := NewService(NewRegistry(src), nil, DefaultConfig())
	svc.SetClock(fixedClock("2024-06-15"))

	res, err := svc.Fetch(context.Background(), Query{
		Source:     SourceNASAPower,
		Location:   Coordinates(38, -1.5),
		Range:      NewDateRange(day("2021-01-01"), day("2023-12-31")),
		Historical: true,
	})
	if err == nil {
		t.Fatalf("expected error, got %d records", len(res.Records))
	}
	if len(res.Records) != 0 {
		t.Fatalf("expected no partial records, got %d", len(res.Records))
	}
	var cerr *ChunkError
	if !errors.As(err, &cerr) || cerr.Index != 1 {
		t.Fatalf("expected failure of chunk index 1, got %v", err)
	}
	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected upstream error in chain, got %v", err)
	}
}

func TestServiceUnknownSource(t *testing.T) {
	svc := NewService(NewRegistry(), nil, DefaultConfig())
	_, err := svc.Fetch(context.Background(), Query{Source: SourceERA5})
	if !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestServiceCachesPastSeriesOnly(t *testing.T) {
	past := newStub(SourceNASAPower, 730, DirectionPast)
	future := newStub(SourceAEMET, 7, DirectionFuture)
	store := newMapStore()
	svc := NewService(NewRegistry(past, future), store, DefaultConfig())
	svc.SetClock(fixedClock("2024-06-15"))

	q := Query{Source: SourceNASAPower, Location: Coordinates(38, -1.5), Range: NewDateRange(day("2023-01-01"), day("2023-01-10"))}
	if _, err := svc.Fetch(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := svc.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Cached || past.callCount() != 1 {
		t.Fatalf("expected second fetch served from cache, cached=%t calls=%d", res.Cached, past.callCount())
	}

	fq := Query{Source: SourceAEMET, Location: Location{PostalCode: "47001"}, Range: NewDateRange(day("2024-06-15"), day("2024-06-21"))}
	for i := 0; i < 2; i++ {
		if _, err := svc.Fetch(context.Background(), fq); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if future.callCount() != 2 {
		t.Fatalf("expected forecasts never cached, got %d calls", future.callCount())
	}
	if _, ok := store.series[SeriesKey(fq)]; ok {
		t.Fatalf("forecast series must not be stored")
	}
}

func TestServiceFetchMulti(t *testing.T) {
	nasa := newStub(SourceNASAPower, 730, DirectionPast)
	era5 := newStub(SourceERA5, 730, DirectionPast)
	era5.fill = func(d time.Time) RawPayload {
		return RawPayload{Date: d.Format(DateLayout), TemperatureAvg: float(20)}
	}
	svc := NewService(NewRegistry(nasa, era5), nil, DefaultConfig())
	svc.SetClock(fixedClock("2024-06-15"))

	loc := Coordinates(38, -1.5)
	rng := NewDateRange(day("2023-01-01"), day("2023-01-05"))
	res, err := svc.FetchMulti(context.Background(), []Query{
		{Source: SourceNASAPower, Location: loc, Range: rng},
		{Source: SourceERA5, Location: loc, Range: rng},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 5 {
		t.Fatalf("expected 5 merged records, got %d", len(res.Records))
	}
	for _, r := range res.Records {
		if r.Source != SourceERA5 {
			t.Fatalf("expected later-listed source to win, got %s on %s", r.Source, r.Date)
		}
	}
	if len(res.Outcomes) != 2 || res.Outcomes[0].Source != SourceNASAPower {
		t.Fatalf("expected outcomes in listed order, got %+v", res.Outcomes)
	}
}

func TestServiceFetchMultiIsolatesFailures(t *testing.T) {
	nasa := newStub(SourceNASAPower, 730, DirectionPast)
	era5 := newStub(SourceERA5, 730, DirectionPast)
	era5.fail = func(DateRange) error { return &UpstreamError{Source: SourceERA5, StatusCode: 503} }
	svc := NewService(NewRegistry(nasa, era5), nil, DefaultConfig())
	svc.SetClock(fixedClock("2024-06-15"))

	loc := Coordinates(38, -1.5)
	rng := NewDateRange(day("2023-01-01"), day("2023-01-05"))
	res, err := svc.FetchMulti(context.Background(), []Query{
		{Source: SourceNASAPower, Location: loc, Range: rng},
		{Source: SourceERA5, Location: loc, Range: rng},
	})
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(res.Records) != 5 || res.Outcomes[1].Err == nil {
		t.Fatalf("expected nasa records and recorded era5 error, got %d records", len(res.Records))
	}

	nasa.fail = era5.fail
	_, err = svc.FetchMulti(context.Background(), []Query{
		{Source: SourceNASAPower, Location: loc, Range: rng},
		{Source: SourceERA5, Location: loc, Range: rng},
	})
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected per-source errors joined, got %v", err)
	}
}

func TestRequestIDDefault(t *testing.T) {
	if got := RequestID(context.Background()); got != "-" {
		t.Fatalf("expected -, got %s", got)
	}
	if got := RequestID(WithRequestID(context.Background(), "abc")); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
}

package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/agroclimate/internal/climate"
	"github.com/i474232898/agroclimate/internal/common"
	"github.com/i474232898/agroclimate/internal/metrics"
)

// HTTPClientConfig bundles the HTTP client shared by adapters.
type HTTPClientConfig struct {
	Client    *http.Client
	UserAgent string
}

const (
	maxDiagnosticBody = 512
	maxResponseBody   = 64 << 20
)

var (
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// base carries what every adapter shares: its descriptor, endpoint, client,
// circuit breaker and clock.
type base struct {
	desc    climate.Descriptor
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func newBase(desc climate.Descriptor, baseURL string, client *http.Client) base {
	return base{
		desc:    desc,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{Client: client, UserAgent: "agroclimate/1.0"},
		circuit: newCircuitBreaker(string(desc.Kind)),
		now:     time.Now,
	}
}

func (b *base) Descriptor() climate.Descriptor {
	return b.desc
}

// SetBaseURL sets the base URL for the API (useful for testing)
func (b *base) SetBaseURL(baseURL string) {
	b.baseURL = baseURL
}

// SetClock overrides the clock used for capability checks.
func (b *base) SetClock(now func() time.Time) {
	b.now = now
}

func (b *base) checkCapabilities(loc climate.Location, rng climate.DateRange) error {
	return climate.CheckCapabilities(b.desc, loc, rng, b.now())
}

// get executes a GET once through the circuit breaker. It never retries:
// retry policy belongs to the caller.
func (b *base) get(ctx context.Context, u string, header map[string]string) ([]byte, error) {
	kind := b.desc.Kind
	if b.httpCfg.Client == nil {
		return nil, &climate.UpstreamError{Source: kind, Err: errNoHTTPClient}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if b.httpCfg.UserAgent != "" {
		req.Header.Set("User-Agent", b.httpCfg.UserAgent)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	start := time.Now()
	result, err := b.circuit.Execute(func() (interface{}, error) {
		resp, execErr := b.httpCfg.Client.Do(req)
		if execErr != nil {
			return nil, &climate.UpstreamError{Source: kind, Err: execErr}
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if readErr != nil {
			return nil, &climate.UpstreamError{Source: kind, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", readErr)}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &climate.UpstreamError{
				Source:     kind,
				StatusCode: resp.StatusCode,
				Body:       common.Truncate(string(body), maxDiagnosticBody),
			}
		}
		return body, nil
	})
	metrics.UpstreamLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.UpstreamCallsTotal.WithLabelValues(string(kind), "circuit_open").Inc()
			return nil, &climate.UpstreamError{Source: kind, Err: fmt.Errorf("%w: %v", errCircuitOpen, err)}
		}
		status := "error"
		var uerr *climate.UpstreamError
		if errors.As(err, &uerr) && uerr.StatusCode != 0 {
			status = strconv.Itoa(uerr.StatusCode)
		}
		metrics.UpstreamCallsTotal.WithLabelValues(string(kind), status).Inc()
		return nil, err
	}

	metrics.UpstreamCallsTotal.WithLabelValues(string(kind), "ok").Inc()
	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}

// decode unmarshals a 2xx body, reporting malformed JSON as an upstream failure.
func (b *base) decode(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return b.malformed(body, err)
	}
	return nil
}

func (b *base) malformed(body []byte, err error) error {
	return &climate.UpstreamError{
		Source:     b.desc.Kind,
		StatusCode: http.StatusOK,
		Body:       common.Truncate(string(body), maxDiagnosticBody),
		Err:        fmt.Errorf("malformed body: %w", err),
	}
}

// formatFloat formats a float64 to a string with appropriate precision
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func ptr(v float64) *float64 {
	return &v
}

// at returns the i-th element of a nullable series, or nil when out of range.
func at(series []*float64, i int) *float64 {
	if i < 0 || i >= len(series) {
		return nil
	}
	return series[i]
}

package scraper

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// PacedClient wraps an HTTP client with an x/time/rate limiter (smoothing
// bursts once a pkg/ratelimit quota check has already passed) and a
// gobreaker circuit breaker (tripping on a flaky provider so a string of
// timeouts doesn't pile up retries against it). This generalizes the
// teacher's ClientOption-configured RateLimitedClient in pkg/http, which
// paces on 429 responses alone; here the pacing is proactive and the
// breaker is a distinct, separately-tripping concern.
type PacedClient struct {
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// ClientOption configures a PacedClient.
type ClientOption func(*PacedClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(p *PacedClient) { p.client = c }
}

// WithRateLimit sets the smoothing rate (requests/sec) and burst size.
func WithRateLimit(eventsPerSecond float64, burst int) ClientOption {
	return func(p *PacedClient) { p.limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), burst) }
}

// NewPacedClient builds a client for providerName, with a breaker that
// trips once at least 5 requests in the current one-minute interval have
// been seen and at least half of them failed.
func NewPacedClient(providerName string, opts ...ClientOption) *PacedClient {
	p := &PacedClient{
		client:  http.DefaultClient,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(p)
	}

	settings := gobreaker.Settings{
		Name:        providerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
	p.breaker = gobreaker.NewCircuitBreaker[*http.Response](settings)
	return p
}

// Do paces req through the rate limiter, then runs it through the circuit
// breaker. A tripped breaker returns gobreaker.ErrOpenState without
// touching the network.
func (p *PacedClient) Do(req *http.Request) (*http.Response, error) {
	if err := p.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return p.breaker.Execute(func() (*http.Response, error) {
		return p.client.Do(req)
	})
}

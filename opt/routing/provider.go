package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultRequestTimeout bounds a single external routing call.
const DefaultRequestTimeout = 30 * time.Second

// DefaultMaxInFlight caps outstanding external requests so batch calls stay
// inside the upstream rate limit (~1000/h documented).
const DefaultMaxInFlight = 8

// Router is the surface the problem builder consumes. The solver never calls
// it; distances are materialized into matrices before a run starts.
type Router interface {
	Distance(ctx context.Context, o, d Coordinate) Leg
	DistanceBatch(ctx context.Context, pairs []Pair) []Leg
}

// ProviderConfig configures a Provider. Zero values take defaults.
type ProviderConfig struct {
	BaseURL        string        // OSRM-style endpoint; empty disables remote routing
	RequestTimeout time.Duration // per-request deadline (default 30s)
	MaxInFlight    int64         // outstanding external requests (default 8)
	CacheTTL       time.Duration // route cache TTL (default 24h)
	SweepInterval  time.Duration // expired-entry sweeper cadence (default 6h)
	HTTPClient     *http.Client  // override for tests
}

// Provider resolves pairs through the external router with a process-wide
// TTL cache and a haversine fallback.
type Provider struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	sem     *semaphore.Weighted
	cache   *routeCache
	log     *logrus.Entry
}

// NewProvider builds a Provider and starts its cache sweeper. Call Close to
// stop the sweeper.
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	p := &Provider{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
		timeout: cfg.RequestTimeout,
		sem:     semaphore.NewWeighted(cfg.MaxInFlight),
		cache:   newRouteCache(cfg.CacheTTL),
		log:     logrus.WithField("component", "routing"),
	}
	p.cache.startSweeper(cfg.SweepInterval)
	return p
}

// Close stops the background sweeper.
func (p *Provider) Close() {
	p.cache.stopSweeper()
}

func pairKey(o, d Coordinate) string {
	return o.Key() + "|" + d.Key()
}

// Distance resolves one pair: cache, then remote, then haversine fallback.
// Routing failures are degraded, never fatal.
func (p *Provider) Distance(ctx context.Context, o, d Coordinate) Leg {
	key := pairKey(o, d)
	if leg, ok := p.cache.get(key); ok {
		leg.Source = SourceCache
		return leg
	}

	leg, err := p.remote(ctx, o, d)
	if err != nil {
		p.log.WithFields(logrus.Fields{"pair": key, "error": err}).
			Debug("routing unavailable, using haversine fallback")
		leg = fallbackLeg(o, d)
	}
	p.cache.put(key, leg)
	return leg
}

// DistanceBatch resolves pairs in parallel, capped at MaxInFlight outstanding
// external requests. The result slice is positionally aligned with pairs.
func (p *Provider) DistanceBatch(ctx context.Context, pairs []Pair) []Leg {
	legs := make([]Leg, len(pairs))
	done := make(chan int, len(pairs))
	for i := range pairs {
		go func(i int) {
			defer func() { done <- i }()
			if err := p.sem.Acquire(ctx, 1); err != nil {
				legs[i] = fallbackLeg(pairs[i].Origin, pairs[i].Destination)
				return
			}
			defer p.sem.Release(1)
			legs[i] = p.Distance(ctx, pairs[i].Origin, pairs[i].Destination)
		}(i)
	}
	for range pairs {
		<-done
	}
	return legs
}

// osrmResponse is the wire format of the external routing endpoint:
// [{"km": ..., "min": ...}, ...].
type osrmResponse []struct {
	KM  float64 `json:"km"`
	Min float64 `json:"min"`
}

func (p *Provider) remote(ctx context.Context, o, d Coordinate) (Leg, error) {
	if p.baseURL == "" {
		return Leg{}, fmt.Errorf("no routing endpoint configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("pairs", fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", o.Lat, o.Lng, d.Lat, d.Lng))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/route?"+q.Encode(), nil)
	if err != nil {
		return Leg{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Leg{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return Leg{}, fmt.Errorf("routing endpoint returned %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Leg{}, fmt.Errorf("malformed routing response: %w", err)
	}
	if len(body) != 1 {
		return Leg{}, fmt.Errorf("routing response carried %d legs, want 1", len(body))
	}
	return Leg{KM: body[0].KM, Minutes: body[0].Min, Source: SourceOSRM}, nil
}

// CacheLen reports live cache entries. Exposed for tests and diagnostics.
func (p *Provider) CacheLen() int {
	return p.cache.len()
}

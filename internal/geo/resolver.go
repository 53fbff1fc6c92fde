// Package geo resolves free-text venue strings to map coordinates.
//
// Resolution never fails: a static table of known venues is consulted first,
// then the geocoding service with a small fixed retry budget, and finally the
// configured city-centre coordinate.
package geo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"eventmap/internal/geo/nominatim"
	appLog "eventmap/internal/log"
	"eventmap/internal/metrics"
	"eventmap/internal/model"
)

const (
	DefaultMaxAttempts = 2
	DefaultRetryDelay  = 2000 * time.Millisecond
	DefaultCityToken   = "katowice"
	DefaultCitySuffix  = ", Katowice, Poland"
	DefaultCountry     = "pl"
)

// Searcher is the geocoding backend. *nominatim.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts nominatim.SearchOptions) ([]nominatim.SearchResult, error)
}

// Config controls a Resolver. Zero values take the package defaults.
type Config struct {
	Known   []KnownLocation
	Default model.Coordinate

	// CityToken suppresses CitySuffix when the address already mentions it.
	CityToken    string
	CitySuffix   string
	CountryCodes string

	// MaxAttempts bounds geocoding calls per address; every attempt after
	// the first waits RetryDelay.
	MaxAttempts int
	RetryDelay  time.Duration

	// MemoTTL keeps successful lookups in memory; zero disables it.
	MemoTTL  time.Duration
	MemoSize int
}

// Resolver maps addresses to coordinates.
type Resolver struct {
	searcher Searcher
	table    *Table
	cfg      Config
	memo     *memo
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSleep replaces the context-aware sleep used between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// WithClock sets the clock used for memo expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.memo.now = now
	}
}

// NewResolver creates a Resolver. searcher may be nil, in which case any
// address missing from the table resolves to the default coordinate.
func NewResolver(searcher Searcher, cfg Config, opts ...Option) *Resolver {
	if cfg.Default == (model.Coordinate{}) {
		cfg.Default = DefaultCenter
	}
	if cfg.Known == nil {
		cfg.Known = DefaultKnownLocations()
	}
	if cfg.CityToken == "" {
		cfg.CityToken = DefaultCityToken
	}
	if cfg.CitySuffix == "" {
		cfg.CitySuffix = DefaultCitySuffix
	}
	if cfg.CountryCodes == "" {
		cfg.CountryCodes = DefaultCountry
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	r := &Resolver{
		searcher: searcher,
		table:    NewTable(cfg.Known),
		cfg:      cfg,
		memo:     newMemo(cfg.MemoSize, cfg.MemoTTL, time.Now),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query builds the geocoding query for a normalized address.
func (r *Resolver) Query(normalized string) string {
	if strings.Contains(normalized, r.cfg.CityToken) {
		return normalized
	}
	return normalized + r.cfg.CitySuffix
}

// Resolve returns a coordinate for address. A blank address gets the default
// coordinate straight away, and known venues return without any network call
// or delay. Otherwise the geocoder is asked up to MaxAttempts times. After an
// empty answer or an error the resolver waits RetryDelay before the next
// attempt; there is no wait after the last one.
// Anything left unresolved gets the default coordinate.
func (r *Resolver) Resolve(ctx context.Context, address string) model.Coordinate {
	normalized := Normalize(address)
	if normalized == "" {
		metrics.GeocodingRequestsTotal.WithLabelValues("default").Inc()
		return r.cfg.Default
	}

	if c, ok := r.table.Lookup(normalized); ok {
		metrics.GeocodingRequestsTotal.WithLabelValues("known").Inc()
		appLog.Debug("using known coordinates", "location", address)
		return c
	}

	query := r.Query(normalized)

	if c, ok := r.memo.get(query); ok {
		metrics.GeocodingRequestsTotal.WithLabelValues("memo").Inc()
		return c
	}

	if r.searcher == nil {
		return r.fallback(address, "no geocoder configured")
	}

	last := r.cfg.MaxAttempts - 1
	for attempt := 0; attempt <= last; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.cfg.RetryDelay); err != nil {
				return r.fallback(address, "canceled")
			}
		}

		start := time.Now()
		results, err := r.searcher.Search(ctx, query, nominatim.SearchOptions{
			CountryCodes: r.cfg.CountryCodes,
			Limit:        1,
		})
		metrics.GeocodingNominatimLatency.Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.GeocodingNominatimRequestsTotal.WithLabelValues("error").Inc()
			appLog.Warn("geocoding error", "query", query, "attempt", attempt+1, "err", err.Error())
			if attempt == last {
				return r.fallback(address, "error")
			}
			continue
		}

		if c, ok := firstCoordinate(results); ok {
			metrics.GeocodingNominatimRequestsTotal.WithLabelValues("success").Inc()
			metrics.GeocodingRequestsTotal.WithLabelValues("nominatim").Inc()
			r.memo.put(query, c)
			appLog.Info("geocoded location", "location", address, "lat", c.Lat, "lon", c.Lon)
			return c
		}

		metrics.GeocodingNominatimRequestsTotal.WithLabelValues("empty").Inc()
		appLog.Warn("no geocoding results", "query", query, "attempt", attempt+1)
	}

	return r.fallback(address, "no results")
}

func (r *Resolver) fallback(address, reason string) model.Coordinate {
	metrics.GeocodingRequestsTotal.WithLabelValues("default").Inc()
	appLog.Warn("using default coordinates", "location", address, "reason", reason)
	return r.cfg.Default
}

// firstCoordinate reads the first result; both fields must be present and numeric.
func firstCoordinate(results []nominatim.SearchResult) (model.Coordinate, bool) {
	if len(results) == 0 || results[0].Lat == "" || results[0].Lon == "" {
		return model.Coordinate{}, false
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return model.Coordinate{}, false
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return model.Coordinate{}, false
	}
	return model.Coordinate{Lat: lat, Lon: lon}, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

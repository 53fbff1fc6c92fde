// Package catalog owns the current set of ingested events. A refresh fetches
// the spreadsheet, parses it, builds records and swaps them in as one
// immutable snapshot; readers never see a half-built list.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eventmap/internal/feed"
	appLog "eventmap/internal/log"
	"eventmap/internal/metrics"
	"eventmap/internal/model"
)

// ErrNotLoaded is returned by Snapshot until the first refresh succeeds.
var ErrNotLoaded = errors.New("catalog: events not loaded yet")

// FailureKind tells the UI which message to show for a failed refresh.
type FailureKind string

const (
	// FailureTransport covers network errors, non-OK statuses and empty bodies.
	FailureTransport FailureKind = "transport"
	// FailureParse covers a feed body that cannot be read as CSV.
	FailureParse FailureKind = "parse"
)

// Failure records why the last refresh failed.
type Failure struct {
	Kind FailureKind
	At   time.Time
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("catalog: %s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Fetcher downloads the raw feed.
type Fetcher interface {
	Fetch(ctx context.Context) (feed.FetchResult, error)
}

// Builder turns parsed rows into records.
type Builder interface {
	Build(ctx context.Context, rows []feed.Row, now time.Time) ([]model.EventRecord, error)
}

// Snapshot is one successfully ingested version of the feed.
type Snapshot struct {
	Events    []model.EventRecord
	LoadedAt  time.Time
	Warnings  []string
	Unchanged bool // the feed answered 304 and the previous body was rebuilt
}

// Status summarizes the service state for /api/status.
type Status struct {
	Loaded      bool        `json:"loaded"`
	LoadedAt    time.Time   `json:"loadedAt,omitzero"`
	Counts      Counts      `json:"counts"`
	Warnings    int         `json:"warnings"`
	LastError   string      `json:"lastError,omitempty"`
	FailureKind FailureKind `json:"failureKind,omitempty"`
	FailedAt    time.Time   `json:"failedAt,omitzero"`
}

// Service keeps the current snapshot and refreshes it on demand.
type Service struct {
	fetcher Fetcher
	builder Builder
	columns feed.Columns
	now     func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	current *Snapshot
	failure *Failure
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now as the source of the archival "now".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. Nothing is fetched until Refresh is called.
func NewService(fetcher Fetcher, builder Builder, cols feed.Columns, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		builder: builder,
		columns: cols,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh ingests the feed and replaces the snapshot. Concurrent callers
// share one in-flight refresh, which runs detached from any single caller's
// cancellation: a caller whose ctx ends gets ctx.Err() back while the shared
// refresh carries on for the others. On failure the previous snapshot stays
// in place and the returned error is a *Failure.
func (s *Service) Refresh(ctx context.Context) error {
	ch := s.group.DoChan("refresh", func() (any, error) {
		return nil, s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Shared {
			appLog.Debug("joined in-flight refresh")
		}
		return res.Err
	case <-ctx.Done():
		appLog.Debug("refresh caller gone, refresh continues", "reason", ctx.Err().Error())
		return ctx.Err()
	}
}

func (s *Service) refresh(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.FeedRefreshDuration.Observe(time.Since(start).Seconds())
	}()

	res, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return s.fail(FailureTransport, err)
	}

	rows, warnings, err := feed.ParseRows(res.Body, s.columns)
	if err != nil {
		return s.fail(FailureParse, err)
	}
	for _, w := range warnings {
		appLog.Warn("feed warning", "detail", w)
	}

	now := s.now()
	events, err := s.builder.Build(ctx, rows, now)
	if err != nil {
		return s.fail(FailureTransport, fmt.Errorf("build events: %w", err))
	}

	snap := &Snapshot{
		Events:    events,
		LoadedAt:  now,
		Warnings:  warnings,
		Unchanged: res.NotModified,
	}
	counts := CountsOf(events)

	s.mu.Lock()
	s.current = snap
	s.failure = nil
	s.mu.Unlock()

	metrics.FeedRefreshTotal.WithLabelValues("success").Inc()
	metrics.EventsLoaded.WithLabelValues("active").Set(float64(counts.Active))
	metrics.EventsLoaded.WithLabelValues("archived").Set(float64(counts.Archived))

	appLog.Info("events refreshed",
		"rows", len(rows),
		"events", counts.Total,
		"archived", counts.Archived,
		"unchanged", res.NotModified,
		"elapsed", time.Since(start).String(),
	)
	return nil
}

func (s *Service) fail(kind FailureKind, err error) error {
	if errors.Is(err, context.Canceled) {
		appLog.Warn("events refresh canceled", "error", err.Error())
		return err
	}
	f := &Failure{Kind: kind, At: s.now(), Err: err}

	s.mu.Lock()
	s.failure = f
	s.mu.Unlock()

	metrics.FeedRefreshTotal.WithLabelValues(string(kind)).Inc()
	appLog.Error("events refresh failed", err, "kind", string(kind))
	return f
}

// Snapshot returns the current snapshot. Before the first successful
// refresh it returns ErrNotLoaded, joined with the last failure if any.
func (s *Service) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		if s.failure != nil {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrNotLoaded, s.failure)
		}
		return Snapshot{}, ErrNotLoaded
	}
	return *s.current, nil
}

// Status reports the current state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Status
	if s.current != nil {
		st.Loaded = true
		st.LoadedAt = s.current.LoadedAt
		st.Counts = CountsOf(s.current.Events)
		st.Warnings = len(s.current.Warnings)
	}
	if s.failure != nil {
		st.LastError = s.failure.Err.Error()
		st.FailureKind = s.failure.Kind
		st.FailedAt = s.failure.At
	}
	return st
}

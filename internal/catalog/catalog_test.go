package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventmap/internal/dates"
	"eventmap/internal/feed"
	"eventmap/internal/model"
)

const csvBody = `data,od,json
2024-01-01,a@b.com,"{""eventName"":""Past"",""dateTime"":""15.03.2024 18:00"",""location"":""Gliwicka 81""}"
2024-01-02,c@d.com,"{""eventName"":""Future"",""dateTime"":""20.04.2024 10:00"",""location"":""Wawelska 5""}"
2024-01-03,e@f.com,"{""eventName"":""Weekly"",""dateTime"":""Środa, godziny 9:00 - 15:00"",""location"":""""}"
`

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context) (feed.FetchResult, error) {
	args := m.Called()
	return args.Get(0).(feed.FetchResult), args.Error(1)
}

type fixedResolver map[string]model.Coordinate

func (r fixedResolver) Resolve(_ context.Context, address string) model.Coordinate {
	if c, ok := r[address]; ok {
		return c
	}
	return model.Coordinate{Lat: 50.2649, Lon: 19.0238}
}

var testNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestService(f Fetcher) *Service {
	resolver := fixedResolver{
		"Gliwicka 81": {Lat: 50.2593, Lon: 18.9927},
		"Wawelska 5":  {Lat: 50.2593, Lon: 19.0238},
	}
	parser := dates.NewParser(dates.WithLocation(time.UTC), dates.WithClock(func() time.Time { return testNow }))
	return NewService(f, feed.NewBuilder(resolver, parser), feed.DefaultColumns,
		WithClock(func() time.Time { return testNow }))
}

func TestService_NotLoaded(t *testing.T) {
	s := newTestService(new(MockFetcher))

	_, err := s.Snapshot()
	require.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, s.Status().Loaded)
	assert.Empty(t, s.Status().FailureKind)
}

func TestService_Refresh(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch").Return(feed.FetchResult{Body: []byte(csvBody)}, nil).Once()

	s := newTestService(f)
	require.NoError(t, s.Refresh(context.Background()))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Events, 3)
	assert.Equal(t, testNow, snap.LoadedAt)

	assert.True(t, snap.Events[0].Archived)
	assert.False(t, snap.Events[1].Archived)
	assert.False(t, snap.Events[2].Archived)

	st := s.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, Counts{Total: 3, Archived: 1, Active: 2}, st.Counts)
	assert.Empty(t, st.LastError)
	f.AssertExpectations(t)
}

func TestService_TransportFailureKeepsSnapshot(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch").Return(feed.FetchResult{Body: []byte(csvBody)}, nil).Once()
	f.On("Fetch").Return(feed.FetchResult{}, feed.ErrEmptyFeed).Once()

	s := newTestService(f)
	require.NoError(t, s.Refresh(context.Background()))

	err := s.Refresh(context.Background())
	require.ErrorIs(t, err, feed.ErrEmptyFeed)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, FailureTransport, failure.Kind)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Events, 3)

	st := s.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, FailureTransport, st.FailureKind)
	assert.Equal(t, feed.ErrEmptyFeed.Error(), st.LastError)
}

func TestService_ParseFailureBeforeFirstLoad(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch").Return(feed.FetchResult{Body: []byte{}}, nil)

	s := newTestService(f)
	err := s.Refresh(context.Background())
	require.ErrorIs(t, err, feed.ErrMalformedFeed)

	_, err = s.Snapshot()
	require.ErrorIs(t, err, ErrNotLoaded)
	require.ErrorIs(t, err, feed.ErrMalformedFeed)

	assert.Equal(t, FailureParse, s.Status().FailureKind)
}

// blockingFetcher holds every Fetch until release is closed.
type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) Fetch(ctx context.Context) (feed.FetchResult, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	select {
	case <-b.release:
		return feed.FetchResult{Body: []byte(csvBody)}, nil
	case <-ctx.Done():
		return feed.FetchResult{}, ctx.Err()
	}
}

func TestService_ConcurrentRefreshShared(t *testing.T) {
	bf := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	s := newTestService(bf)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = s.Refresh(context.Background())
	}()
	<-bf.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = s.Refresh(context.Background())
	}()

	// Give the second caller a chance to join before the fetch finishes.
	time.Sleep(50 * time.Millisecond)
	close(bf.release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int32(1), bf.calls.Load())
}

func TestService_CanceledCallerDoesNotAbortSharedRefresh(t *testing.T) {
	bf := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	s := newTestService(bf)

	reqCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var first, second error

	wg.Add(1)
	go func() {
		defer wg.Done()
		first = s.Refresh(reqCtx)
	}()
	<-bf.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		second = s.Refresh(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(bf.release)
	wg.Wait()

	assert.ErrorIs(t, first, context.Canceled)
	assert.NoError(t, second)
	assert.Equal(t, int32(1), bf.calls.Load())

	st := s.Status()
	assert.True(t, st.Loaded)
	assert.Empty(t, st.FailureKind)
	assert.Empty(t, st.LastError)
}

func TestService_CanceledFetchIsNotRecordedAsFailure(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch").Return(feed.FetchResult{}, context.Canceled).Once()

	s := newTestService(f)
	err := s.Refresh(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	var failure *Failure
	assert.False(t, errors.As(err, &failure))
	assert.Empty(t, s.Status().FailureKind)

	_, err = s.Snapshot()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestView(t *testing.T) {
	events := []model.EventRecord{
		{ID: "1", Archived: false},
		{ID: "2", Archived: true},
		{ID: "3", Archived: false},
	}

	active := View(events, false)
	archived := View(events, true)

	require.Len(t, active, 2)
	assert.Equal(t, "1", active[0].ID)
	assert.Equal(t, "3", active[1].ID)
	require.Len(t, archived, 1)
	assert.Equal(t, "2", archived[0].ID)

	assert.Equal(t, Counts{Total: 3, Archived: 1, Active: 2}, CountsOf(events))
	assert.Equal(t, Counts{}, CountsOf(nil))
}

func TestFind(t *testing.T) {
	events := []model.EventRecord{{ID: "a", Name: "first"}, {ID: "a", Name: "second"}}

	e, ok := Find(events, "a")
	require.True(t, ok)
	assert.Equal(t, "first", e.Name)

	_, ok = Find(events, "b")
	assert.False(t, ok)
}

func TestCenter(t *testing.T) {
	def := model.Coordinate{Lat: 50.2649, Lon: 19.0238}
	a := model.Coordinate{Lat: 50.0, Lon: 19.0}
	b := model.Coordinate{Lat: 51.0, Lon: 20.0}
	events := []model.EventRecord{{Coordinates: &a}, {Coordinates: &b}, {}}

	assert.Equal(t, def, Center(nil, nil, def))
	assert.Equal(t, def, Center([]model.EventRecord{{}}, nil, def))

	c := Center(events, nil, def)
	assert.InDelta(t, 50.5, c.Lat, 1e-9)
	assert.InDelta(t, 19.5, c.Lon, 1e-9)

	assert.Equal(t, b, Center(events, &events[1], def))
	assert.InDelta(t, 50.5, Center(events, &events[2], def).Lat, 1e-9)
}

func TestMarkerColor(t *testing.T) {
	assert.Equal(t, MarkerActive, MarkerColor(model.EventRecord{}))
	assert.Equal(t, MarkerArchived, MarkerColor(model.EventRecord{Archived: true}))
}

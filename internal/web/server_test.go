package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventmap/internal/catalog"
	"eventmap/internal/config"
	"eventmap/internal/feed"
	"eventmap/internal/i18n"
	"eventmap/internal/model"
)

// fakeCatalog serves a fixed snapshot or error.
type fakeCatalog struct {
	snap       catalog.Snapshot
	err        error
	refreshErr error
	refreshes  int
}

func (f *fakeCatalog) Snapshot() (catalog.Snapshot, error) {
	if f.err != nil {
		return catalog.Snapshot{}, f.err
	}
	return f.snap, nil
}

func (f *fakeCatalog) Status() catalog.Status {
	return catalog.Status{Loaded: f.err == nil, Counts: catalog.CountsOf(f.snap.Events)}
}

func (f *fakeCatalog) Refresh(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

var loadedAt = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func sampleEvents() []model.EventRecord {
	a := model.Coordinate{Lat: 50.2593, Lon: 18.9927}
	b := model.Coordinate{Lat: 50.2693, Lon: 19.0127}
	return []model.EventRecord{
		{
			ID:          "2024-01-01a@b.com",
			Name:        "Koncert",
			DateTime:    "15.03.2024 18:00",
			Description: "<script>alert(1)</script>Hello\nWorld",
			Link:        model.NoLinkPlaceholder,
			Location:    "Gliwicka 81",
			Coordinates: &a,
			Archived:    true,
		},
		{
			ID:           "2024-01-02c@d.com",
			Name:         "Wystawa",
			DateTime:     "20.04.2024 10:00",
			Registration: "Zapisy mailowo",
			Link:         "https://example.com/wystawa",
			Location:     "Wawelska 5",
			Coordinates:  &b,
		},
		{
			ID:           "2024-01-03e@f.com",
			Name:         "Warsztaty",
			DateTime:     "Środa, godziny 9:00 - 15:00",
			Registration: model.NoRegistrationPlaceholder,
		},
	}
}

func newTestServer(t *testing.T, cat *fakeCatalog, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	s := NewServer(cfg, cat, i18n.NewTranslator(cfg.Language), WithClock(func() time.Time { return loadedAt }))
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func loaded() *fakeCatalog {
	return &fakeCatalog{snap: catalog.Snapshot{Events: sampleEvents(), LoadedAt: loadedAt}}
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeCatalog{err: catalog.ErrNotLoaded}, nil), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEvents_ActivePartition(t *testing.T) {
	rec := do(t, newTestServer(t, loaded(), nil), http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Archived)
	assert.Equal(t, catalog.Counts{Total: 3, Archived: 1, Active: 2}, resp.Counts)
	assert.Equal(t, catalog.DefaultZoom, resp.Zoom)
	require.Len(t, resp.Events, 2)

	wystawa := resp.Events[0]
	assert.Equal(t, "Wystawa", wystawa.Name)
	assert.Equal(t, "https://example.com/wystawa", wystawa.Link)
	assert.Equal(t, "Zapisy mailowo", wystawa.Registration)
	assert.Equal(t, catalog.MarkerActive, wystawa.Marker)
	assert.Equal(t, "2024-04-20T08:00:00.000Z", wystawa.DateISO)

	warsztaty := resp.Events[1]
	assert.True(t, warsztaty.Recurring)
	assert.Empty(t, warsztaty.DateISO)
	assert.Empty(t, warsztaty.Registration)

	// Only Wystawa has coordinates among active events.
	assert.Equal(t, *wystawa.Coordinates, resp.Center)
	require.NotNil(t, wystawa.Position)
	assert.Equal(t, [2]float64{wystawa.Coordinates.Lat, wystawa.Coordinates.Lon}, *wystawa.Position)
	assert.Nil(t, warsztaty.Position)
}

func TestEvents_ArchivedPartition(t *testing.T) {
	rec := do(t, newTestServer(t, loaded(), nil), http.MethodGet, "/api/events?archived=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Archived)
	require.Len(t, resp.Events, 1)

	ev := resp.Events[0]
	assert.Equal(t, "Koncert", ev.Name)
	assert.True(t, ev.Archived)
	assert.Equal(t, catalog.MarkerArchived, ev.Marker)
	assert.Empty(t, ev.Link, "placeholder link is dropped")
	assert.NotContains(t, ev.DescriptionHTML, "script")
	assert.Contains(t, ev.DescriptionHTML, "Hello<br>")
}

func TestEvents_NotLoadedIsLocalized(t *testing.T) {
	cat := &fakeCatalog{err: fmt.Errorf("%w: %w", catalog.ErrNotLoaded,
		&catalog.Failure{Kind: catalog.FailureTransport, Err: feed.ErrEmptyFeed})}
	h := newTestServer(t, cat, nil)

	rec := do(t, h, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Nie udało się pobrać wydarzeń. Spróbuj ponownie później.", resp.Error)
	assert.Equal(t, catalog.FailureTransport, resp.Kind)

	rec = do(t, h, http.MethodGet, "/api/events?lang=en", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Could not load events. Please try again later.", resp.Error)
}

func TestEvents_ParseFailure(t *testing.T) {
	cat := &fakeCatalog{err: &catalog.Failure{Kind: catalog.FailureParse, Err: feed.ErrMalformedFeed}}
	rec := do(t, newTestServer(t, cat, nil), http.MethodGet, "/api/events", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Błąd podczas przetwarzania danych", resp.Error)
	assert.Equal(t, catalog.FailureParse, resp.Kind)
}

func TestEvent_ByID(t *testing.T) {
	h := newTestServer(t, loaded(), nil)

	rec := do(t, h, http.MethodGet, "/api/events/2024-01-02c@d.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ev eventDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "Wystawa", ev.Name)

	rec = do(t, h, http.MethodGet, "/api/events/missing", http.Header{"Accept-Language": {"en-US"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Event not found")
}

func TestRefresh(t *testing.T) {
	cat := loaded()
	h := newTestServer(t, cat, nil)

	rec := do(t, h, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cat.refreshes)

	cat.refreshErr = &catalog.Failure{Kind: catalog.FailureTransport, Err: feed.ErrEmptyFeed}
	rec = do(t, h, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/refresh", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatus(t *testing.T) {
	rec := do(t, newTestServer(t, loaded(), nil), http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st catalog.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Loaded)
	assert.Equal(t, 3, st.Counts.Total)
}

func TestICS(t *testing.T) {
	rec := do(t, newTestServer(t, loaded(), nil), http.MethodGet, "/events.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "BEGIN:VCALENDAR"))
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))
}

func TestIndex(t *testing.T) {
	h := newTestServer(t, loaded(), nil)

	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<html lang="pl">`)
	assert.Contains(t, body, "<title>Wydarzenia w Katowicach</title>")
	assert.Contains(t, body, `data-ready="false"`)
	assert.Contains(t, body, `"ActiveCount":"Aktywne ({count})"`)

	rec = do(t, h, http.MethodGet, "/", http.Header{"Accept-Language": {"en-GB,en;q=0.9"}})
	assert.Contains(t, rec.Body.String(), `<html lang="en">`)
	assert.Contains(t, rec.Body.String(), "<title>Events in Katowice</title>")
}

func TestStaticAndMetrics(t *testing.T) {
	h := newTestServer(t, loaded(), nil)

	rec := do(t, h, http.MethodGet, "/static/app.js", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data-ready")

	rec = do(t, h, http.MethodGet, "/static/missing.js", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBasicAuth(t *testing.T) {
	h := newTestServer(t, loaded(), func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)

	rec := do(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"eventmap/internal/catalog"
	"eventmap/internal/dates"
	"eventmap/internal/i18n"
	"eventmap/internal/ics"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// eventDTO is the JSON shape of one event for the widget.
type eventDTO struct {
	ID              string            `json:"id"`
	Name            string            `json:"eventName"`
	DateTime        string            `json:"dateTime"`
	DateISO         string            `json:"dateISO"`
	Recurring       bool              `json:"recurring"`
	Description     string            `json:"description"`
	DescriptionHTML string            `json:"descriptionHtml"`
	Registration    string            `json:"registration,omitempty"`
	Organizer       string            `json:"organizer"`
	Link            string            `json:"eventLink,omitempty"`
	Location        string            `json:"location"`
	Coordinates     *model.Coordinate `json:"coordinates,omitempty"`
	Position        *[2]float64       `json:"position,omitempty"` // [lat, lon]
	Archived        bool              `json:"isArchived"`
	Marker          string            `json:"marker"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events   []eventDTO       `json:"events"`
	Archived bool             `json:"archived"`
	Counts   catalog.Counts   `json:"counts"`
	Center   model.Coordinate `json:"center"`
	Zoom     int              `json:"zoom"`
}

// errorResponse carries a localized message the widget shows as is.
type errorResponse struct {
	Error string              `json:"error"`
	Kind  catalog.FailureKind `json:"kind,omitempty"`
}

// pageData feeds templates/index.html.
type pageData struct {
	Lang     string
	Title    string
	Loading  string
	Messages template.JS
	Config   template.JS
}

// widgetConfig is passed to app.js.
type widgetConfig struct {
	Center model.Coordinate `json:"center"`
	Zoom   int              `json:"zoom"`
	Lang   string           `json:"lang"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	prefs := langPrefs(r)
	lang := s.tr.Lang(prefs...)

	msgs, err := json.Marshal(s.tr.Messages(prefs...))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	cfg, err := json.Marshal(widgetConfig{
		Center: s.cfg.Geocoding.Default,
		Zoom:   catalog.DefaultZoom,
		Lang:   lang,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	data := pageData{
		Lang:     lang,
		Title:    s.tr.T(i18n.MsgTitle, nil, prefs...),
		Loading:  s.tr.T(i18n.MsgLoading, nil, prefs...),
		Messages: template.JS(msgs),
		Config:   template.JS(cfg),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		appLog.Error("failed to render index page", err)
	}
}

// handleEvents returns one partition of the current snapshot.
//
// GET /api/events?archived=true&lang=en
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))
	view := catalog.View(snap.Events, archived)
	parser := s.parser(snap)

	resp := eventsResponse{
		Events:   make([]eventDTO, 0, len(view)),
		Archived: archived,
		Counts:   catalog.CountsOf(snap.Events),
		Center:   catalog.Center(view, nil, s.cfg.Geocoding.Default),
		Zoom:     catalog.DefaultZoom,
	}
	for _, e := range view {
		resp.Events = append(resp.Events, s.toDTO(e, parser))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvent returns a single event by id.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	e, found := catalog.Find(snap.Events, chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, s.tr.T(i18n.MsgErrorNotFound, nil, langPrefs(r)...), "")
		return
	}
	writeJSON(w, http.StatusOK, s.toDTO(e, s.parser(snap)))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Status())
}

// handleRefresh runs a refresh and answers with the resulting status.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Refresh(r.Context()); err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.catalog.Status())
}

// handleICS serves every event, active and archived, as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	body, err := ics.Export(snap.Events, s.now(), s.loc)
	if err != nil {
		appLog.Error("ics export failed", err)
		writeError(w, http.StatusInternalServerError, "ics export failed", "")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="wydarzenia-katowice.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// snapshot loads the current snapshot or writes the localized failure.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (catalog.Snapshot, bool) {
	snap, err := s.catalog.Snapshot()
	if err != nil {
		s.writeFailure(w, r, err)
		return catalog.Snapshot{}, false
	}
	return snap, true
}

// writeFailure maps a catalog error to 503 and the matching UI message.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := catalog.FailureTransport
	var f *catalog.Failure
	if errors.As(err, &f) {
		kind = f.Kind
	}

	id := i18n.MsgErrorTransport
	if kind == catalog.FailureParse {
		id = i18n.MsgErrorParse
	}
	writeError(w, http.StatusServiceUnavailable, s.tr.T(id, nil, langPrefs(r)...), kind)
}

// parser classifies against the snapshot's own "now", so the ISO dates
// shown agree with the archived flags computed at ingestion.
func (s *Server) parser(snap catalog.Snapshot) *dates.Parser {
	at := snap.LoadedAt
	return dates.NewParser(dates.WithLocation(s.loc), dates.WithClock(func() time.Time { return at }))
}

func (s *Server) toDTO(e model.EventRecord, parser *dates.Parser) eventDTO {
	dto := eventDTO{
		ID:              e.ID,
		Name:            e.Name,
		DateTime:        e.DateTime,
		Recurring:       dates.IsRecurring(e.DateTime),
		Description:     e.Description,
		DescriptionHTML: s.descriptionHTML(e.Description),
		Organizer:       e.Organizer,
		Location:        e.Location,
		Coordinates:     e.Coordinates,
		Archived:        e.Archived,
		Marker:          catalog.MarkerColor(e),
	}
	if e.Coordinates != nil {
		pos := e.Coordinates.Pair()
		dto.Position = &pos
	}
	if !dto.Recurring {
		dto.DateISO = parser.FormatISO(e.DateTime)
	}
	if e.HasLink() {
		dto.Link = strings.TrimSpace(e.Link)
	}
	if e.HasRegistration() {
		dto.Registration = strings.TrimSpace(e.Registration)
	}
	return dto
}

// descriptionHTML sanitizes submitter text and keeps its line breaks.
func (s *Server) descriptionHTML(text string) string {
	clean := s.policy.Sanitize(strings.TrimSpace(text))
	return strings.ReplaceAll(clean, "\n", "<br>\n")
}

// langPrefs returns the caller's language preferences, most preferred first.
func langPrefs(r *http.Request) []string {
	return []string{r.URL.Query().Get("lang"), r.Header.Get("Accept-Language")}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, kind catalog.FailureKind) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"eventmap/internal/model"
)

func warsaw(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	return loc
}

func TestParseRecurrence(t *testing.T) {
	rec, ok := ParseRecurrence("Środa i piątek, godziny 10:00 - 18:00")
	require.True(t, ok)
	assert.Equal(t, []rrule.Weekday{rrule.WE, rrule.FR}, rec.Days)
	assert.Equal(t, 10*time.Hour, rec.Start)
	assert.Equal(t, 18*time.Hour, rec.End)
	assert.Equal(t, 8*time.Hour, rec.Duration())

	rec, ok = ParseRecurrence("Niedziele, godziny 12:30")
	require.True(t, ok)
	assert.Equal(t, []rrule.Weekday{rrule.SU}, rec.Days)
	assert.Equal(t, time.Hour, rec.Duration())

	_, ok = ParseRecurrence("godziny 9:00 - 15:00")
	assert.False(t, ok)
	_, ok = ParseRecurrence("Wtorek, godziny otwarcia")
	assert.False(t, ok)
}

func TestRecurrence_RuleStartsAtNextOccurrence(t *testing.T) {
	loc := warsaw(t)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, loc) // Monday

	rec, ok := ParseRecurrence("Środa, godziny 9:00 - 15:00")
	require.True(t, ok)

	rule, err := rec.Rule(now, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 3, 9, 0, 0, 0, loc), rule.OrigOptions.Dtstart)

	next := rule.After(time.Date(2024, 4, 3, 10, 0, 0, 0, loc), false)
	assert.Equal(t, time.Date(2024, 4, 10, 9, 0, 0, 0, loc), next)
}

func TestExport(t *testing.T) {
	loc := warsaw(t)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, loc)
	coord := model.Coordinate{Lat: 50.2593, Lon: 18.9927}

	events := []model.EventRecord{
		{
			ID:           "2024-01-01a@b.com",
			Name:         "Koncert",
			DateTime:     "15.03.2024 18:00",
			Description:  "Muzyka",
			Organizer:    "NOSPR",
			Registration: model.NoRegistrationPlaceholder,
			Link:         "https://example.com/koncert",
			Location:     "Gliwicka 81",
			Coordinates:  &coord,
		},
		{
			ID:       "2024-01-02c@d.com",
			Name:     "Wystawa",
			DateTime: "Od 1 marca 2024 r. do 3 maja 2024 r.",
			Link:     model.NoLinkPlaceholder,
		},
		{
			ID:       "2024-01-03e@f.com",
			Name:     "Warsztaty",
			DateTime: "Środa, godziny 9:00 - 15:00",
		},
		{
			ID:       "2024-01-04g@h.com",
			Name:     "Bez daty",
			DateTime: "wkrótce",
		},
	}

	out, err := Export(events, now, loc)
	require.NoError(t, err)

	cal, err := ical.ParseCalendar(bytes.NewReader(out))
	require.NoError(t, err)
	require.Len(t, cal.Events(), 3)

	byName := map[string]*ical.VEvent{}
	for _, ev := range cal.Events() {
		byName[ev.GetProperty(ical.ComponentPropertySummary).Value] = ev
	}

	concert := byName["Koncert"]
	require.NotNil(t, concert)
	start, err := concert.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2024, 3, 15, 18, 0, 0, 0, loc)))
	end, err := concert.GetEndAt()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, end.Sub(start))
	assert.Equal(t, "https://example.com/koncert", concert.GetProperty(ical.ComponentPropertyUrl).Value)
	assert.Equal(t, "50.259300;18.992700", concert.GetProperty(ical.ComponentPropertyGeo).Value)
	assert.NotContains(t, concert.GetProperty(ical.ComponentPropertyDescription).Value, "Rejestracja")
	assert.NotContains(t, concert.Id(), "@b.com")

	exhibition := byName["Wystawa"]
	require.NotNil(t, exhibition)
	assert.Equal(t, "20240301", exhibition.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20240504", exhibition.GetProperty(ical.ComponentPropertyDtEnd).Value)
	assert.Nil(t, exhibition.GetProperty(ical.ComponentPropertyUrl))

	workshop := byName["Warsztaty"]
	require.NotNil(t, workshop)
	rule := workshop.GetProperty(ical.ComponentPropertyRrule)
	require.NotNil(t, rule)
	assert.Contains(t, rule.Value, "FREQ=WEEKLY")
	assert.Contains(t, rule.Value, "BYDAY=WE")
	start, err = workshop.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2024, 4, 3, 9, 0, 0, 0, loc)))

	assert.True(t, strings.Contains(string(out), "X-WR-CALNAME:Wydarzenia w Katowicach"))
}

func TestExport_Empty(t *testing.T) {
	out, err := Export(nil, time.Now(), nil)
	require.NoError(t, err)

	cal, err := ical.ParseCalendar(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Empty(t, cal.Events())
}

func TestDescription(t *testing.T) {
	e := model.EventRecord{Description: " Opis ", Organizer: "Muzeum", Registration: "Zapisy mailowo"}
	assert.Equal(t, "Opis\n\nOrganizator: Muzeum\n\nRejestracja: Zapisy mailowo", description(e))
	assert.Equal(t, "", description(model.EventRecord{}))
}

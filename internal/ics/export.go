// Package ics renders the event catalog as an iCalendar feed so listings can
// be subscribed to from calendar apps.
package ics

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventmap/internal/dates"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

const (
	productID    = "-//eventmap//Wydarzenia w Katowicach//PL"
	calendarName = "Wydarzenia w Katowicach"
	uidDomain    = "eventmap"
)

// Export renders events as a VCALENDAR. now stamps every VEVENT and anchors
// recurring hours; loc interprets zone-less date strings. Events whose date
// string cannot be parsed at all are left out.
func Export(events []model.EventRecord, now time.Time, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}
	parser := dates.NewParser(dates.WithLocation(loc), dates.WithClock(func() time.Time { return now }))

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(calendarName)
	cal.SetXWRTimezone(loc.String())

	skipped := 0
	for _, e := range events {
		if !addEvent(cal, parser, e, now, loc) {
			skipped++
		}
	}

	if skipped > 0 {
		appLog.Debug("ics export skipped events", "skipped", skipped, "total", len(events))
	}
	return []byte(cal.Serialize()), nil
}

func addEvent(cal *ical.Calendar, parser *dates.Parser, e model.EventRecord, now time.Time, loc *time.Location) bool {
	if dates.IsRecurring(e.DateTime) {
		rec, ok := ParseRecurrence(e.DateTime)
		if !ok {
			return false
		}
		rule, err := rec.Rule(now, loc)
		if err != nil {
			appLog.Warn("ics recurrence rule failed", "id", e.ID, "err", err.Error())
			return false
		}
		start := rule.OrigOptions.Dtstart

		ev := newVEvent(cal, e, now)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(rec.Duration()))
		ev.AddProperty(ical.ComponentPropertyRrule, rule.OrigOptions.RRuleString())
		return true
	}

	start := parser.Start(e.DateTime, now)
	end := parser.End(e.DateTime, now)
	if start.Strategy == dates.StrategyFallback && end.Strategy == dates.StrategyFallback {
		return false
	}
	if start.Strategy == dates.StrategyFallback {
		start = end
	}
	if end.Strategy == dates.StrategyFallback || end.Time.Before(start.Time) {
		end = start
	}

	ev := newVEvent(cal, e, now)
	if start.Strategy == dates.StrategyRange && end.Strategy == dates.StrategyRange {
		// Date-only: DTEND is exclusive.
		ev.SetAllDayStartAt(start.Time)
		ev.SetAllDayEndAt(end.Time.AddDate(0, 0, 1))
		return true
	}

	ev.SetStartAt(start.Time)
	if end.Time.Equal(start.Time) {
		ev.SetEndAt(start.Time.Add(time.Hour))
	} else {
		ev.SetEndAt(end.Time)
	}
	return true
}

func newVEvent(cal *ical.Calendar, e model.EventRecord, now time.Time) *ical.VEvent {
	ev := cal.AddEvent(eventUID(e.ID))
	ev.SetDtStampTime(now)
	ev.SetSummary(e.Name)
	ev.SetDescription(description(e))

	if e.Location != "" {
		ev.SetLocation(e.Location)
	}
	if e.HasLink() {
		ev.SetURL(strings.TrimSpace(e.Link))
	}
	if c := e.Coordinates; c != nil {
		ev.SetProperty(ical.ComponentPropertyGeo,
			strconv.FormatFloat(c.Lat, 'f', 6, 64)+";"+strconv.FormatFloat(c.Lon, 'f', 6, 64))
	}
	return ev
}

// eventUID hashes the record id, which embeds the submitter's email.
func eventUID(id string) string {
	sum := sha1.Sum([]byte(id))
	return hex.EncodeToString(sum[:]) + "@" + uidDomain
}

func description(e model.EventRecord) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(e.Description))
	if e.Organizer != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Organizator: ")
		b.WriteString(e.Organizer)
	}
	if e.HasRegistration() {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Rejestracja: ")
		b.WriteString(strings.TrimSpace(e.Registration))
	}
	return b.String()
}

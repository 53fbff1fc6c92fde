package ics

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// weekdayStems maps the stem of a Polish weekday name to its rrule weekday.
// Stems cover the nominative and the plural forms ("środa", "środy").
var weekdayStems = []struct {
	stem string
	day  rrule.Weekday
}{
	{"poniedział", rrule.MO},
	{"wtor", rrule.TU},
	{"środ", rrule.WE},
	{"czwart", rrule.TH},
	{"piąt", rrule.FR},
	{"sobot", rrule.SA},
	{"niedziel", rrule.SU},
}

var clockRe = regexp.MustCompile(`(\d{1,2}):(\d{2})`)

// Recurrence describes weekly opening hours such as
// "Środa, godziny 9:00 - 15:00".
type Recurrence struct {
	Days  []rrule.Weekday
	Start time.Duration // offset from midnight
	End   time.Duration // offset from midnight; zero when only a start is given
}

// ParseRecurrence extracts weekdays and clock times from a recurring-hours
// string. ok is false when no weekday or no start time is found.
func ParseRecurrence(raw string) (Recurrence, bool) {
	var rec Recurrence

	lower := strings.ToLower(raw)
	for _, w := range weekdayStems {
		if strings.Contains(lower, w.stem) {
			rec.Days = append(rec.Days, w.day)
		}
	}
	if len(rec.Days) == 0 {
		return rec, false
	}

	clocks := clockRe.FindAllStringSubmatch(raw, 2)
	if len(clocks) == 0 {
		return rec, false
	}
	rec.Start = clockOffset(clocks[0])
	if len(clocks) > 1 {
		rec.End = clockOffset(clocks[1])
	}
	if rec.Start >= 24*time.Hour || rec.End >= 24*time.Hour {
		return rec, false
	}
	return rec, true
}

func clockOffset(m []string) time.Duration {
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return time.Duration(h)*time.Hour + time.Duration(mm)*time.Minute
}

// Rule builds the weekly rule whose first occurrence is the next matching
// start at or after now, in loc.
func (r Recurrence) Rule(now time.Time, loc *time.Location) (*rrule.RRule, error) {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	probe, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: r.Days,
		Dtstart:   midnight.Add(r.Start),
	})
	if err != nil {
		return nil, err
	}

	first := probe.After(local, true)
	if first.IsZero() {
		first = midnight.Add(r.Start)
	}

	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: r.Days,
		Dtstart:   first,
	})
}

// Duration returns the length of one occurrence, defaulting to an hour.
func (r Recurrence) Duration() time.Duration {
	if r.End > r.Start {
		return r.End - r.Start
	}
	return time.Hour
}

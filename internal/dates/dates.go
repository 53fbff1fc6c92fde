// Package dates turns the free-text date strings submitters type into the
// spreadsheet into timestamps, and decides whether an event is over.
//
// Parsing is best effort. A fixed, ordered list of strategies is tried and the
// first one that yields a valid timestamp wins; when none does, "now" is
// returned. Nothing in this package returns an error.
package dates

import (
	"strings"
	"time"

	appLog "eventmap/internal/log"
	"eventmap/internal/metrics"
)

// Strategy names the parsing strategy that produced a Result.
type Strategy string

const (
	StrategyNumeric  Strategy = "numeric"   // 15.03.2024 18:00
	StrategyGeneric  Strategy = "generic"   // Sunday, November 3, 2024 at 7:00 PM; 2024-03-15T18:00
	StrategyRange    Strategy = "range"     // Od 1 marca 2024 r. do 3 marca 2024 r.
	StrategyTimeOnly Strategy = "time_only" // Środa, godziny 9:00
	StrategyFallback Strategy = "fallback"
)

// RangeSeparator splits "start - end" strings.
const RangeSeparator = " - "

// recurringToken marks descriptions of recurring opening hours, which are
// never archived.
const recurringToken = "godziny"

// isoLayout matches JavaScript's Date.prototype.toISOString output.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Result is a parsed timestamp together with the strategy that produced it.
type Result struct {
	Time     time.Time
	Strategy Strategy
}

// Parser holds the wall-clock location used for strings that carry no zone
// and the clock used for time-only strings and the fallback.
type Parser struct {
	loc *time.Location
	now func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithLocation sets the location in which zone-less strings are interpreted.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// NewParser creates a Parser. Defaults: time.Local and time.Now.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		loc: time.Local,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseDateTime parses raw using the parser's clock for "now".
func (p *Parser) ParseDateTime(raw string) time.Time {
	return p.Parse(raw, p.now()).Time
}

// Parse runs the strategies in order against raw. now anchors time-only
// strings to a calendar day and is returned when every strategy fails, so
// parsing the same string with the same now is deterministic.
func (p *Parser) Parse(raw string, now time.Time) Result {
	for _, s := range strategies {
		if t, ok := s.parse(p, raw, now); ok && valid(t) {
			metrics.DateParseTotal.WithLabelValues(string(s.name)).Inc()
			return Result{Time: t, Strategy: s.name}
		}
	}

	metrics.DateParseTotal.WithLabelValues(string(StrategyFallback)).Inc()
	appLog.Warn("could not parse date, using now", "raw", raw)
	return Result{Time: now, Strategy: StrategyFallback}
}

// End resolves the relevant end timestamp of raw: for "A - B" it parses B,
// otherwise the whole string.
func (p *Parser) End(raw string, now time.Time) Result {
	return p.Parse(endPart(raw), now)
}

// Start resolves the start timestamp of raw: for "A - B" it parses A, and a
// "od D <month> YYYY do ..." string yields its first date.
func (p *Parser) Start(raw string, now time.Time) Result {
	part := strings.Split(raw, RangeSeparator)[0]
	r := p.Parse(part, now)
	if r.Strategy == StrategyRange {
		if t, ok := firstPolishDate(p, part); ok && valid(t) {
			r.Time = t
		}
	}
	return r
}

// IsArchived reports whether the event described by raw ended strictly
// before now. Recurring-hours descriptions are never archived, and a string
// nothing can parse resolves to now itself, which is not archived either.
func (p *Parser) IsArchived(raw string, now time.Time) bool {
	if strings.Contains(raw, recurringToken) {
		return false
	}
	return p.End(raw, now).Time.Before(now)
}

// IsRecurring reports whether raw describes recurring opening hours.
func IsRecurring(raw string) bool {
	return strings.Contains(raw, recurringToken)
}

// FormatISO returns the ISO-8601 (UTC, millisecond) form of raw's end or
// only date. When the resolved timestamp cannot be represented, raw is
// returned unchanged.
func (p *Parser) FormatISO(raw string) string {
	t := p.End(raw, p.now()).Time
	if !valid(t) {
		return raw
	}
	return t.UTC().Format(isoLayout)
}

func endPart(raw string) string {
	parts := strings.Split(raw, RangeSeparator)
	if len(parts) > 1 {
		return parts[1]
	}
	return parts[0]
}

func valid(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	y := t.UTC().Year()
	return y >= 1 && y <= 9999
}

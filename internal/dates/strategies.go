package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

type strategy struct {
	name  Strategy
	parse func(p *Parser, s string, now time.Time) (time.Time, bool)
}

// Order matters: the first valid result wins.
var strategies = []strategy{
	{StrategyNumeric, parseNumeric},
	{StrategyGeneric, parseGeneric},
	{StrategyRange, parseRange},
	{StrategyTimeOnly, parseTimeOnly},
}

var numericRe = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})\s+(\d{1,2}):(\d{2})`)

// parseNumeric handles "D.M.YYYY H:MM". Components are taken as wall-clock
// values in the parser's location.
func parseNumeric(p *Parser, s string, _ time.Time) (time.Time, bool) {
	m := numericRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	n := atois(m[1:])
	return time.Date(n[2], time.Month(n[1]), n[0], n[3], n[4], 0, 0, p.loc), true
}

var yearRe = regexp.MustCompile(`\b\d{4}\b`)

var genericLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006",
	"Monday, January 2, 2006 3:04 PM",
	"Monday, January 2, 2006 3:04PM",
	"Monday, January 2, 2006 15:04",
	"Monday, January 2, 2006",
	"January 2, 2006 3:04 PM",
	"January 2, 2006 15:04",
	"January 2, 2006",
	"Mon, Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
}

// parseGeneric handles machine and English forms such as
// "Weekday, Month D, YYYY at H:MM AM/PM", "2024-03-15T18:00" (datetime-local)
// and "03/15/2024 18:00" (month first). The " at " separator is dropped, then
// known layouts are tried before a generic English date parser.
//
// Polish month ranges and recurring-hours descriptions are left to the later
// strategies, as is anything without a four-digit year.
func parseGeneric(p *Parser, s string, now time.Time) (time.Time, bool) {
	if !yearRe.MatchString(s) || rangeRe.MatchString(s) || strings.Contains(s, recurringToken) {
		return time.Time{}, false
	}
	s = strings.TrimSpace(strings.Replace(s, " at ", " ", 1))

	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, true
		}
	}

	cfg := &dateparser.Configuration{
		Languages:       []string{"en"},
		DateOrder:       dateparser.MDY,
		CurrentTime:     now.In(p.loc),
		DefaultTimezone: p.loc,
	}
	dt, err := dateparser.Parse(cfg, s)
	if err != nil || dt.Time.IsZero() {
		return time.Time{}, false
	}
	return dt.Time, true
}

// polishMonths maps genitive month names to months.
var polishMonths = map[string]time.Month{
	"stycznia":     time.January,
	"lutego":       time.February,
	"marca":        time.March,
	"kwietnia":     time.April,
	"maja":         time.May,
	"czerwca":      time.June,
	"lipca":        time.July,
	"sierpnia":     time.August,
	"września":     time.September,
	"października": time.October,
	"listopada":    time.November,
	"grudnia":      time.December,
}

var rangeRe = regexp.MustCompile(`(?i)(\d{1,2})\s+(stycznia|lutego|marca|kwietnia|maja|czerwca|lipca|sierpnia|września|października|listopada|grudnia)\s+(\d{4})`)

// parseRange handles "D <month> YYYY", possibly several times as in
// "Od 1 marca 2024 r. do 3 marca 2024 r."; the last occurrence wins.
func parseRange(p *Parser, s string, _ time.Time) (time.Time, bool) {
	all := rangeRe.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return time.Time{}, false
	}
	return p.polishDate(all[len(all)-1])
}

// firstPolishDate is parseRange keeping the first occurrence instead.
func firstPolishDate(p *Parser, s string) (time.Time, bool) {
	m := rangeRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return p.polishDate(m)
}

func (p *Parser) polishDate(m []string) (time.Time, bool) {
	month, ok := polishMonths[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	return time.Date(year, month, day, 0, 0, 0, 0, p.loc), true
}

var timeOfDayRe = regexp.MustCompile(`(\d{1,2}):(\d{2})`)

// parseTimeOnly takes the first H:MM and puts it on now's calendar day, for
// descriptive schedules such as "Środa, godziny 9:00 - 15:00".
func parseTimeOnly(p *Parser, s string, now time.Time) (time.Time, bool) {
	m := timeOfDayRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	n := atois(m[1:])
	today := now.In(p.loc)
	return time.Date(today.Year(), today.Month(), today.Day(), n[0], n[1], 0, 0, p.loc), true
}

// atois converts regexp digit captures; they cannot fail.
func atois(ss []string) []int {
	out := make([]int, len(ss))
	for i, s := range ss {
		out[i], _ = strconv.Atoi(s)
	}
	return out
}

package geo

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"eventmap/internal/model"
)

// KnownLocation pins a normalized address fragment to a coordinate.
type KnownLocation struct {
	Key        string           `yaml:"key" json:"key" validate:"required"`
	Coordinate model.Coordinate `yaml:",inline" json:"coordinate"`
}

// DefaultCenter is the city-centre fallback for Katowice.
var DefaultCenter = model.Coordinate{Lat: 50.2649, Lon: 19.0238}

// DefaultKnownLocations are recurring venues that never need a network lookup.
// Keys are written in normalized form.
func DefaultKnownLocations() []KnownLocation {
	return []KnownLocation{
		{Key: "gliwicka 81", Coordinate: model.Coordinate{Lat: 50.2593, Lon: 18.9927}},
		{Key: "wawelska 5", Coordinate: model.Coordinate{Lat: 50.2593, Lon: 19.0238}},
		{Key: "archikatedra", Coordinate: model.Coordinate{Lat: 50.2593, Lon: 19.0238}},
		{Key: "wita stwosza 11", Coordinate: model.Coordinate{Lat: 50.2593, Lon: 19.0238}},
		{Key: "świętego jana 10", Coordinate: model.Coordinate{Lat: 50.2593, Lon: 19.0238}},
	}
}

var (
	lowerPL    = cases.Lower(language.Polish)
	whitespace = regexp.MustCompile(`\s+`)
)

// Normalize lowercases address, drops street designators, expands common
// abbreviations and collapses whitespace.
func Normalize(address string) string {
	s := lowerPL.String(address)
	s = strings.ReplaceAll(s, "ul.", "")
	s = strings.ReplaceAll(s, "ulica", "")
	s = strings.ReplaceAll(s, "św.", "świętego")
	s = strings.ReplaceAll(s, "św ", "świętego ")
	s = strings.ReplaceAll(s, "al.", "aleja")
	s = strings.ReplaceAll(s, "pl.", "plac")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Table is an ordered known-location lookup.
type Table struct {
	entries []KnownLocation
}

// NewTable builds a Table; keys are normalized so configs may use any
// spelling ("ul. Gliwicka 81").
func NewTable(entries []KnownLocation) *Table {
	t := &Table{entries: make([]KnownLocation, 0, len(entries))}
	for _, e := range entries {
		key := Normalize(e.Key)
		if key == "" {
			continue
		}
		t.entries = append(t.entries, KnownLocation{Key: key, Coordinate: e.Coordinate})
	}
	return t
}

// Lookup matches an already-normalized address in two passes: first a key
// contained verbatim, then a key whose every whitespace-separated token
// appears somewhere in the address. Entry order decides ties.
func (t *Table) Lookup(normalized string) (model.Coordinate, bool) {
	if t == nil || normalized == "" {
		return model.Coordinate{}, false
	}

	for _, e := range t.entries {
		if strings.Contains(normalized, e.Key) {
			return e.Coordinate, true
		}
	}

	for _, e := range t.entries {
		if allTokensIn(normalized, e.Key) {
			return e.Coordinate, true
		}
	}

	return model.Coordinate{}, false
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func allTokensIn(s, key string) bool {
	for _, part := range strings.Split(key, " ") {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}

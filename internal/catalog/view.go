package catalog

import (
	"eventmap/internal/model"
)

// DefaultZoom is the map zoom level the widget opens with.
const DefaultZoom = 13

// Marker colors.
const (
	MarkerActive   = "blue"
	MarkerArchived = "grey"
)

// Counts are the header numbers.
type Counts struct {
	Total    int `json:"total"`
	Archived int `json:"archived"`
	Active   int `json:"active"`
}

// CountsOf counts events per partition.
func CountsOf(events []model.EventRecord) Counts {
	c := Counts{Total: len(events)}
	for _, e := range events {
		if e.Archived {
			c.Archived++
		}
	}
	c.Active = c.Total - c.Archived
	return c
}

// View returns the events of one partition in feed order: archived ones
// when archived is true, active ones otherwise.
func View(events []model.EventRecord, archived bool) []model.EventRecord {
	out := make([]model.EventRecord, 0, len(events))
	for _, e := range events {
		if e.Archived == archived {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the event with the given id. IDs are not guaranteed unique;
// the first match wins.
func Find(events []model.EventRecord, id string) (model.EventRecord, bool) {
	for _, e := range events {
		if e.ID == id {
			return e, true
		}
	}
	return model.EventRecord{}, false
}

// Center picks the map center: the selected event's coordinate, else the
// mean of the visible events' coordinates, else def.
func Center(events []model.EventRecord, selected *model.EventRecord, def model.Coordinate) model.Coordinate {
	if selected != nil && selected.Coordinates != nil {
		return *selected.Coordinates
	}

	var lat, lon float64
	n := 0
	for _, e := range events {
		if e.Coordinates == nil {
			continue
		}
		lat += e.Coordinates.Lat
		lon += e.Coordinates.Lon
		n++
	}
	if n == 0 {
		return def
	}
	return model.Coordinate{Lat: lat / float64(n), Lon: lon / float64(n)}
}

// MarkerColor returns the marker color for e.
func MarkerColor(e model.EventRecord) string {
	if e.Archived {
		return MarkerArchived
	}
	return MarkerActive
}

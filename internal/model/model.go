package model

import (
	"strings"
	"time"
)

// Placeholders the submission form writes when the submitter left a field empty.
const (
	NoLinkPlaceholder         = "Brak informacji o linku do wydarzenia"
	NoRegistrationPlaceholder = "Brak informacji o konieczności rejestracji"
)

// Coordinate is a latitude/longitude pair. It is always derived (known-location
// table, geocoding or the configured default), never taken from user input.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

// Pair returns the coordinate as [lat, lon], the shape map libraries expect.
func (c Coordinate) Pair() [2]float64 {
	return [2]float64{c.Lat, c.Lon}
}

// Payload is the JSON document stored in the spreadsheet's payload column.
type Payload struct {
	EventName    string `json:"eventName"`
	DateTime     string `json:"dateTime"`
	Description  string `json:"description"`
	Registration string `json:"registration"`
	Organizer    string `json:"organizer"`
	EventLink    string `json:"eventLink"`
	Location     string `json:"location"`
}

// EventRecord is one ingested spreadsheet row. Records are built once per
// refresh and never mutated afterwards; a refresh produces a new slice.
type EventRecord struct {
	// ID is SubmittedAt concatenated with Email, without separator.
	ID string `json:"id"`

	Name         string `json:"eventName"`
	DateTime     string `json:"dateTime"`
	Description  string `json:"description"`
	Registration string `json:"registration"`
	Organizer    string `json:"organizer"`
	Link         string `json:"eventLink"`
	Location     string `json:"location"`

	Coordinates *Coordinate `json:"coordinates,omitempty"`

	// Archived is computed at ingestion from a snapshot of "now".
	Archived bool `json:"isArchived"`

	// Ends is the resolved end (or only) timestamp of DateTime.
	Ends time.Time `json:"ends"`

	SubmittedAt string `json:"date"`
	Email       string `json:"email"`
}

// NewEventID derives the record identifier. Two submissions sharing a date
// string and an email collide.
func NewEventID(submittedAt, email string) string {
	return submittedAt + email
}

// HasLink reports whether the record carries a real event link.
func (e EventRecord) HasLink() bool {
	l := strings.TrimSpace(e.Link)
	return l != "" && l != NoLinkPlaceholder
}

// HasRegistration reports whether the record carries registration info.
func (e EventRecord) HasRegistration() bool {
	r := strings.TrimSpace(e.Registration)
	return r != "" && r != NoRegistrationPlaceholder
}

// Package i18n holds the widget's UI strings. Polish is the primary language;
// English is provided as an alternative and as a fallback for unknown tags.
package i18n

import (
	"embed"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	appLog "eventmap/internal/log"
)

//go:embed active.*.toml
var localeFS embed.FS

// Message IDs.
const (
	MsgTitle          = "Title"
	MsgActiveCount    = "ActiveCount"
	MsgArchivedCount  = "ArchivedCount"
	MsgShowArchived   = "ShowArchived"
	MsgShowActive     = "ShowActive"
	MsgLoading        = "Loading"
	MsgNoEvents       = "NoEvents"
	MsgArchivedBadge  = "ArchivedBadge"
	MsgArchivedEvent  = "ArchivedEvent"
	MsgDate           = "Date"
	MsgLocation       = "Location"
	MsgOrganizer      = "Organizer"
	MsgGoToEvent      = "GoToEvent"
	MsgEventLink      = "EventLink"
	MsgDescription    = "Description"
	MsgRegistration   = "Registration"
	MsgRefresh        = "Refresh"
	MsgCloseDetails   = "CloseDetails"
	MsgSelectEvent    = "SelectEvent"
	MsgErrorTransport = "ErrorTransport"
	MsgErrorParse     = "ErrorParse"
	MsgErrorNotFound  = "ErrorNotFound"
	MsgRetry          = "Retry"
	MsgCalendarExport = "CalendarExport"
)

// AllMessages lists every message ID shipped to the browser.
var AllMessages = []string{
	MsgTitle, MsgActiveCount, MsgArchivedCount, MsgShowArchived, MsgShowActive,
	MsgLoading, MsgNoEvents, MsgArchivedBadge, MsgArchivedEvent, MsgDate,
	MsgLocation, MsgOrganizer, MsgGoToEvent, MsgEventLink, MsgDescription,
	MsgRegistration, MsgRefresh, MsgCloseDetails, MsgSelectEvent,
	MsgErrorTransport, MsgErrorParse, MsgErrorNotFound, MsgRetry, MsgCalendarExport,
}

// CountPlaceholder is substituted for {{.Count}} by Messages so the browser
// can fill in live counts.
const CountPlaceholder = "{count}"

var locales = []string{"active.pl.toml", "active.en.toml"}

// Translator is a thin wrapper around a go-i18n bundle.
type Translator struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
}

// NewTranslator loads the embedded message files. An unparsable
// defaultLocale falls back to Polish.
func NewTranslator(defaultLocale string) *Translator {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.Polish
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range locales {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			appLog.Error("i18n: failed to load message file", err, "file", file)
		}
	}

	return &Translator{
		bundle:          bundle,
		defaultLanguage: tag,
	}
}

// Localizer returns a localizer for the given preferences, most preferred
// first. Each entry may be a tag ("en") or an Accept-Language header value.
func (t *Translator) Localizer(prefs ...string) *i18n.Localizer {
	langs := make([]string, 0, len(prefs)+1)
	for _, p := range prefs {
		if p != "" {
			langs = append(langs, p)
		}
	}
	langs = append(langs, t.defaultLanguage.String())
	return i18n.NewLocalizer(t.bundle, langs...)
}

// T renders id for the given preferences. Unknown ids render as the id.
func (t *Translator) T(id string, data map[string]any, prefs ...string) string {
	return t.localize(t.Localizer(prefs...), id, data)
}

// Lang returns the language tag T would answer in for prefs.
func (t *Translator) Lang(prefs ...string) string {
	_, tag, err := t.Localizer(prefs...).LocalizeWithTag(&i18n.LocalizeConfig{MessageID: MsgTitle})
	if err != nil {
		return t.defaultLanguage.String()
	}
	base, _ := tag.Base()
	return base.String()
}

// Messages renders every UI string for prefs, leaving CountPlaceholder in
// the counted ones.
func (t *Translator) Messages(prefs ...string) map[string]string {
	loc := t.Localizer(prefs...)
	data := map[string]any{"Count": CountPlaceholder}

	out := make(map[string]string, len(AllMessages))
	for _, id := range AllMessages {
		out[id] = t.localize(loc, id, data)
	}
	return out
}

func (t *Translator) localize(loc *i18n.Localizer, id string, data map[string]any) string {
	if id == "" {
		return ""
	}
	msg, err := loc.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		appLog.Warn("i18n: localize failed", "id", id, "err", err.Error())
		return id
	}
	return msg
}

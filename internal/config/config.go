package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"eventmap/internal/feed"
	"eventmap/internal/geo"
	"eventmap/internal/geo/nominatim"
	"eventmap/internal/model"
)

const (
	DefaultListen   = "127.0.0.1:8080"
	DefaultTimezone = "Europe/Warsaw"
	DefaultLanguage = "pl"
	DefaultRefresh  = "*/15 * * * *"
	DefaultFeedURL  = "https://docs.google.com/spreadsheets/d/e/2PACX-1vRmp1P1Nn9S9s2n2kVPBw4_E4HJ80XdNKnhRO62o4OcxUCCw69-pJSQ8IMEChC4LTky5vE2oxso__XX/pub?gid=0&single=true&output=csv"

	DefaultFeedTimeout = 15 * time.Second
	DefaultMemoTTL     = 24 * time.Hour
	DefaultMemoSize    = 1024
)

// Environment variables that override the file. A .env file in the working
// directory is loaded first if present.
const (
	EnvListen            = "EVENTMAP_LISTEN"
	EnvFeedURL           = "EVENTMAP_FEED_URL"
	EnvTimezone          = "EVENTMAP_TIMEZONE"
	EnvLogLevel          = "EVENTMAP_LOG_LEVEL"
	EnvBasicAuthUsername = "EVENTMAP_BASIC_AUTH_USERNAME"
	EnvBasicAuthPassword = "EVENTMAP_BASIC_AUTH_PASSWORD"
	EnvNominatimURL      = "EVENTMAP_NOMINATIM_URL"
)

// FeedConfig describes the published spreadsheet.
type FeedConfig struct {
	URL     string        `yaml:"url" json:"url" validate:"required,url"`
	Columns feed.Columns  `yaml:"columns" json:"columns"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
}

// GeocodingConfig controls the location resolver and its HTTP client.
type GeocodingConfig struct {
	BaseURL      string `yaml:"base_url" json:"base_url" validate:"required,url"`
	UserAgent    string `yaml:"user_agent" json:"user_agent" validate:"required"`
	CountryCodes string `yaml:"country_codes" json:"country_codes"`
	CityToken    string `yaml:"city_token" json:"city_token"`
	CitySuffix   string `yaml:"city_suffix" json:"city_suffix"`

	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" validate:"min=1,max=10"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay" validate:"gte=0"`
	RateLimit   float64       `yaml:"rate_limit" json:"rate_limit" validate:"gt=0,lte=1"`

	// MemoTTL keeps successful lookups in memory; negative disables it.
	MemoTTL  time.Duration `yaml:"memo_ttl" json:"memo_ttl"`
	MemoSize int           `yaml:"memo_size" json:"memo_size" validate:"gte=0"`

	Default model.Coordinate   `yaml:"default" json:"default"`
	Known   []geo.KnownLocation `yaml:"known" json:"known" validate:"dive"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the widget and API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=json console"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the widget and API.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// Timezone interprets date strings that carry no zone.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required"`

	// Language is the UI language when the browser expresses no preference.
	Language string `yaml:"language" json:"language" validate:"oneof=pl en"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh" validate:"required"`

	Feed      FeedConfig      `yaml:"feed" json:"feed"`
	Geocoding GeocodingConfig `yaml:"geocoding" json:"geocoding"`
	Log       LogConfig       `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      DefaultListen,
		Timezone:    DefaultTimezone,
		Language:    DefaultLanguage,
		RefreshCron: DefaultRefresh,
		Feed: FeedConfig{
			URL:     DefaultFeedURL,
			Columns: feed.DefaultColumns,
			Timeout: DefaultFeedTimeout,
		},
		Geocoding: GeocodingConfig{
			BaseURL:      nominatim.DefaultBaseURL,
			UserAgent:    nominatim.DefaultUserAgent,
			CountryCodes: geo.DefaultCountry,
			CityToken:    geo.DefaultCityToken,
			CitySuffix:   geo.DefaultCitySuffix,
			MaxAttempts:  geo.DefaultMaxAttempts,
			RetryDelay:   geo.DefaultRetryDelay,
			RateLimit:    float64(nominatim.DefaultRateLimit),
			MemoTTL:      DefaultMemoTTL,
			MemoSize:     DefaultMemoSize,
			Default:      geo.DefaultCenter,
			Known:        geo.DefaultKnownLocations(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}

	if c.Feed.URL == "" {
		c.Feed.URL = d.Feed.URL
	}
	if c.Feed.Columns.Date == "" {
		c.Feed.Columns.Date = d.Feed.Columns.Date
	}
	if c.Feed.Columns.Email == "" {
		c.Feed.Columns.Email = d.Feed.Columns.Email
	}
	if c.Feed.Columns.Payload == "" {
		c.Feed.Columns.Payload = d.Feed.Columns.Payload
	}
	if c.Feed.Timeout <= 0 {
		c.Feed.Timeout = d.Feed.Timeout
	}

	g := &c.Geocoding
	if g.BaseURL == "" {
		g.BaseURL = d.Geocoding.BaseURL
	}
	if g.UserAgent == "" {
		g.UserAgent = d.Geocoding.UserAgent
	}
	if g.CountryCodes == "" {
		g.CountryCodes = d.Geocoding.CountryCodes
	}
	if g.CityToken == "" {
		g.CityToken = d.Geocoding.CityToken
	}
	if g.CitySuffix == "" {
		g.CitySuffix = d.Geocoding.CitySuffix
	}
	if g.MaxAttempts <= 0 {
		g.MaxAttempts = d.Geocoding.MaxAttempts
	}
	if g.RetryDelay <= 0 {
		g.RetryDelay = d.Geocoding.RetryDelay
	}
	if g.RateLimit <= 0 {
		g.RateLimit = d.Geocoding.RateLimit
	}
	if g.MemoTTL == 0 {
		g.MemoTTL = d.Geocoding.MemoTTL
	}
	if g.MemoSize <= 0 {
		g.MemoSize = d.Geocoding.MemoSize
	}
	if g.Default == (model.Coordinate{}) {
		g.Default = d.Geocoding.Default
	}
	if g.Known == nil {
		g.Known = d.Geocoding.Known
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	// An empty username or password disables basic auth.
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		c.BasicAuth = nil
	}
}

// ApplyEnv overrides fields from the process environment, loading a .env
// file from the working directory first if one exists.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load() // .env is optional

	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvFeedURL); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvNominatimURL); v != "" {
		c.Geocoding.BaseURL = v
	}

	user, pass := os.Getenv(EnvBasicAuthUsername), os.Getenv(EnvBasicAuthPassword)
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
}

// Validate checks field constraints and that Timezone names a known zone.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: invalid: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured time zone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML and unmarshal into Config
//
// Either way the result is normalized, environment overrides are applied
// and the config is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventmap-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

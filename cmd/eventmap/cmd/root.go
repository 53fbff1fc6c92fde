package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eventmap/internal/catalog"
	"eventmap/internal/config"
	"eventmap/internal/dates"
	"eventmap/internal/feed"
	"eventmap/internal/geo"
	"eventmap/internal/geo/nominatim"
	appLog "eventmap/internal/log"
)

// globalFlags holds flags shared by every subcommand.
type globalFlags struct {
	configPath string
	listen     string
	logLevel   string
	logFormat  string
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	serve := newServeCommand(g)
	root := &cobra.Command{
		Use:   "eventmap",
		Short: "Katowice event listing widget",
		Long: `eventmap ingests a published spreadsheet of event submissions, resolves
each event's location to map coordinates, classifies events as active or
archived and serves a list/map/detail widget for browsing them.`,
		SilenceUsage: true,
		// Run serve when no subcommand is given.
		RunE: serve.RunE,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "/etc/eventmap/config.yaml", "path to config file")
	pf.StringVar(&g.listen, "listen", "", "HTTP listen address (overrides config if set)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: json, console (overrides config)")

	root.AddCommand(serve)
	root.AddCommand(newFetchCommand(g))
	root.AddCommand(newSnapshotCommand(g))
	root.AddCommand(newVersionCommand())
	return root
}

// loadConfig loads the config file and applies flag overrides, then
// configures logging from the result.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", g.configPath, err)
	}
	if g.listen != "" {
		cfg.Listen = g.listen
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	appLog.Configure(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// newCatalog wires the ingestion stack shared by serve and fetch:
// feed fetcher, Nominatim-backed resolver and date parser.
func newCatalog(cfg *config.Config) *catalog.Service {
	loc := cfg.Location()
	gc := cfg.Geocoding

	client := nominatim.NewClient(gc.BaseURL,
		nominatim.WithUserAgent(gc.UserAgent),
		nominatim.WithRateLimit(gc.RateLimit),
	)

	memoTTL := gc.MemoTTL
	if memoTTL < 0 {
		memoTTL = 0
	}
	resolver := geo.NewResolver(client, geo.Config{
		Known:        gc.Known,
		Default:      gc.Default,
		CityToken:    gc.CityToken,
		CitySuffix:   gc.CitySuffix,
		CountryCodes: gc.CountryCodes,
		MaxAttempts:  gc.MaxAttempts,
		RetryDelay:   gc.RetryDelay,
		MemoTTL:      memoTTL,
		MemoSize:     gc.MemoSize,
	})

	parser := dates.NewParser(dates.WithLocation(loc))
	fetcher := feed.NewFetcher(cfg.Feed.URL, cfg.Feed.Timeout)
	builder := feed.NewBuilder(resolver, parser)

	return catalog.NewService(fetcher, builder, cfg.Feed.Columns)
}

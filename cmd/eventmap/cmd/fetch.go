package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"eventmap/internal/catalog"
	"eventmap/internal/ics"
	"eventmap/internal/model"
)

type fetchFlags struct {
	archived bool
	all      bool
	format   string
}

func newFetchCommand(g *globalFlags) *cobra.Command {
	f := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Ingest the feed once and print the events",
		Long: `Fetch the spreadsheet, resolve locations and classify dates exactly as
the server does, then print the resulting events to stdout as JSON or as an
iCalendar document.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			cat := newCatalog(cfg)
			if err := cat.Refresh(cmd.Context()); err != nil {
				return err
			}
			snap, err := cat.Snapshot()
			if err != nil {
				return err
			}

			events := snap.Events
			if !f.all {
				events = catalog.View(events, f.archived)
			}

			switch f.format {
			case "json":
				return writeEventsJSON(cmd.OutOrStdout(), events)
			case "ics":
				data, err := ics.Export(events, snap.LoadedAt, cfg.Location())
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			default:
				return fmt.Errorf("unknown format %q (want json or ics)", f.format)
			}
		},
	}

	cmd.Flags().BoolVar(&f.archived, "archived", false, "print archived events instead of active ones")
	cmd.Flags().BoolVar(&f.all, "all", false, "print active and archived events")
	cmd.Flags().StringVar(&f.format, "format", "json", "output format: json or ics")
	return cmd
}

func writeEventsJSON(w io.Writer, events []model.EventRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

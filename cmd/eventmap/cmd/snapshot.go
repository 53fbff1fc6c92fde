package cmd

import (
	"github.com/spf13/cobra"

	"eventmap/internal/capture"
)

func newSnapshotCommand(g *globalFlags) *cobra.Command {
	opts := capture.Options{}
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render a running widget to PNG with headless Chromium",
		Long: `Open the widget of a running server in headless Chromium, wait until it
has rendered its events (or an error) and save a screenshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if opts.URL == "" {
				opts.URL = "http://" + cfg.Listen + "/"
			}
			return capture.WidgetPNG(cmd.Context(), opts)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&opts.URL, "url", "", "widget URL (default: the configured listen address)")
	fl.StringVar(&opts.OutputPath, "out", "widget.png", "output PNG path")
	fl.IntVar(&opts.Width, "width", capture.DefaultWidth, "viewport width in pixels")
	fl.IntVar(&opts.Height, "height", capture.DefaultHeight, "viewport height in pixels")
	fl.DurationVar(&opts.Timeout, "timeout", capture.DefaultTimeout, "overall capture timeout")
	return cmd
}

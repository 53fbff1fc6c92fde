package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"eventmap/internal/catalog"
	"eventmap/internal/config"
	"eventmap/internal/i18n"
	appLog "eventmap/internal/log"
	"eventmap/internal/web"
)

func newServeCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the event widget and JSON API",
		Long: `Start the HTTP server. The feed is loaded once at startup and then
refreshed on the configured cron schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	cat := newCatalog(cfg)
	tr := i18n.NewTranslator(cfg.Language)
	srv := web.NewServer(cfg, cat, tr)

	sched := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := sched.AddFunc(cfg.RefreshCron, func() { refresh(ctx, cat) }); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", cfg.RefreshCron, err)
	}

	appLog.Info("eventmap starting",
		"listen", cfg.Listen,
		"refresh", cfg.RefreshCron,
		"timezone", cfg.Timezone,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		refresh(ctx, cat)
		sched.Start()
		<-ctx.Done()
		<-sched.Stop().Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	appLog.Info("eventmap stopped")
	return nil
}

// refresh reloads the catalog. Failures are logged by the catalog and the
// previous snapshot keeps being served.
func refresh(ctx context.Context, cat *catalog.Service) {
	if ctx.Err() != nil {
		return
	}
	_ = cat.Refresh(ctx)
}

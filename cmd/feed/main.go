package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"catalog/api/internal/config"
	"catalog/api/internal/gateway"
	"catalog/api/internal/loader"
	"catalog/api/internal/logger"
	"catalog/api/internal/sorting"
	"catalog/api/internal/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.LoadFeed()
	var rows int
	cmd := &cobra.Command{
		Use:           "feed",
		Short:         "Browse the catalog as an infinitely scrolling, sortable table",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, cfg, rows)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.CatalogURL, "url", cfg.CatalogURL, "catalog API base URL")
	flags.StringVar(&cfg.Resource, "resource", cfg.Resource, "resource path under the base URL")
	flags.IntVar(&cfg.PageSize, "limit", cfg.PageSize, fmt.Sprintf("rows per page (1..%d)", config.MaxPageSize))
	flags.StringVar(&cfg.SortField, "sort", cfg.SortField, "initial sort field")
	flags.StringVar(&cfg.SortOrder, "order", cfg.SortOrder, "initial sort order (asc|desc)")
	flags.DurationVar(&cfg.FetchTimeout, "timeout", cfg.FetchTimeout, "per-page fetch timeout")
	flags.IntVar(&rows, "rows", 10, "visible rows")
	return cmd
}

func run(cmd *cobra.Command, cfg config.FeedConfig, rows int) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("--limit: %w", err)
	}
	log := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Output: cmd.ErrOrStderr(),
		JSON:   cfg.LogJSON,
	})

	dir, err := sorting.ParseDirection(cfg.SortOrder)
	if err != nil {
		return err
	}
	gw := gateway.NewHTTP(gateway.HTTPConfig{
		BaseURL:  cfg.CatalogURL,
		Resource: cfg.Resource,
		Logger:   log,
	})
	ctrl, err := loader.New(loader.Config{
		Fields:      store.SortableFields,
		Limit:       cfg.PageSize,
		InitialSort: sorting.Spec{Field: cfg.SortField, Direction: dir},
		Logger:      log,
	}, gateway.WithDeadline(gw, cfg.FetchTimeout))
	if err != nil {
		return err
	}

	s := newSession(ctrl, cmd.OutOrStdout(), sessionOptions{
		VisibleRows: rows,
		Wait:        50 * time.Millisecond,
		Settle:      cfg.FetchTimeout + time.Second,
	})
	defer s.close()

	fmt.Fprintln(cmd.OutOrStdout(), helpText)
	s.start()
	return s.run(cmd.InOrStdin())
}

package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"salesetl/internal/config"
	"salesetl/internal/logging"
	"salesetl/internal/metrics"
	"salesetl/internal/metrics/datadog"
	"salesetl/internal/metrics/prompush"
	"salesetl/internal/multitable"
	"salesetl/internal/storage/sqlite"
)

type loadFlags struct {
	source               string
	deleteExisting       bool
	keepTables           bool
	tolerateSchemaErrors bool
	metricsBackend       string
	pushgatewayURL       string
}

func newLoadCmd(g *globals) *cobra.Command {
	f := &loadFlags{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the export into the normalized tables",
		Long: `Load reads the export and fills Region, Country, Customer,
ProductCategory, Product and OrderDetail in that order. Each table is
written in its own transaction; a failure leaves earlier tables committed.

Example:
  salesetl load --source data.tsv --dsn normalized.db --delete-existing
  salesetl load --storage postgres --dsn '${DATABASE_URL}' --metrics-backend pushgateway`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, g.cfg, f)
		},
	}

	cmd.Flags().StringVar(&f.source, "source", "", "path of the tab-delimited export")
	cmd.Flags().BoolVar(&f.deleteExisting, "delete-existing", false,
		"remove the SQLite database file before loading")
	cmd.Flags().BoolVar(&f.keepTables, "keep-tables", false,
		"do not drop existing tables before loading")
	cmd.Flags().BoolVar(&f.tolerateSchemaErrors, "tolerate-schema-errors", false,
		"log and continue when a table cannot be created")
	cmd.Flags().StringVar(&f.metricsBackend, "metrics-backend", "",
		"metrics backend (none, pushgateway, datadog)")
	cmd.Flags().StringVar(&f.pushgatewayURL, "pushgateway-url", "",
		"Pushgateway base URL")
	return cmd
}

func runLoad(cmd *cobra.Command, cfg *config.Config, f *loadFlags) error {
	// Override config with CLI flags
	if f.source != "" {
		cfg.Source.Path = f.source
	}
	if f.deleteExisting {
		cfg.Storage.DeleteExisting = true
	}
	if f.keepTables {
		cfg.Load.DropTables = false
	}
	if f.tolerateSchemaErrors {
		cfg.Load.TolerateSchemaErrors = true
	}
	if f.metricsBackend != "" {
		cfg.Metrics.Backend = f.metricsBackend
	}
	if f.pushgatewayURL != "" {
		cfg.Metrics.PushgatewayURL = f.pushgatewayURL
	}

	if err := cfg.ValidateLoad(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stop := setupMetrics(ctx, cfg.Metrics)
	defer stop()

	if cfg.Storage.DeleteExisting {
		if err := sqlite.RemoveDatabase(cfg.DSN()); err != nil {
			return err
		}
		logging.Info().Str("dsn", cfg.DSN()).Msg("Removed existing database")
	}

	logging.Info().
		Str("source", cfg.Source.Path).
		Str("storage", cfg.Storage.Kind).
		Bool("drop_tables", cfg.Load.DropTables).
		Msg("Starting load")

	runner := multitable.NewDefaultRunner(logging.Printer(zerolog.InfoLevel))
	summary, err := runner.Run(ctx, cfg.LoadConfig())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, spec := range multitable.Tables() {
		if n, ok := summary.Rows[spec.Name]; ok {
			fmt.Fprintf(out, "%-16s %d\n", spec.Name, n)
		}
	}
	fmt.Fprintf(out, "%-16s %d\n", "total", summary.Total())

	logging.Info().
		Int64("rows", summary.Total()).
		Dur("duration", summary.Duration).
		Msg("Load complete")
	return nil
}

// setupMetrics installs the configured metrics backend and returns the
// shutdown hook. A backend that fails to start leaves the nop backend in
// place.
func setupMetrics(ctx context.Context, mc config.MetricsConfig) func() {
	switch mc.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(mc.Job, mc.PushgatewayURL)
		if err != nil {
			logging.Warn().Err(err).Msg("metrics: failed to init prom push backend; using nop")
			return func() {}
		}
		logging.Info().Str("url", mc.PushgatewayURL).Str("job", mc.Job).Msg("metrics: pushgateway enabled")
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				logging.Warn().Err(err).Msg("metrics: flush error")
			}
			metrics.SetBackend(nil)
		}

	case "datadog":
		tags := datadog.ParseTagsCSV(mc.Tags)
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    mc.Job,
			Tags:       tags,
			FlushEvery: mc.FlushEvery,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("metrics: failed to init datadog backend; using nop")
			return func() {}
		}
		logging.Info().Str("job", mc.Job).Strs("tags", tags).Msg("metrics: datadog enabled")
		metrics.SetBackend(b)
		// Close stops the flush loop and submits what is left.
		return func() {
			if err := b.Close(); err != nil {
				logging.Warn().Err(err).Msg("metrics: datadog close/flush error")
			}
			metrics.SetBackend(nil)
		}

	default:
		logging.Debug().Str("backend", mc.Backend).Msg("metrics: disabled")
		return func() {}
	}
}

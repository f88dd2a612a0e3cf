package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"salesetl/internal/logging"
	"salesetl/internal/reports"
	"salesetl/internal/storage/sqlite"
)

func newReportCmd(g *globals) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "report <name> [args...]",
		Short: "Run one of the fixed reports against a SQLite store",
		Long: `Run a report from the catalogue and print it as tab-separated values.
Positional arguments after the name are bound as query parameters.

Example:
  salesetl report ex3
  salesetl report ex1 "Jane Doe"
  salesetl report --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("report name is required (see 'salesetl reports')")
			}
			if err := g.cfg.ValidateReport(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := sqlite.Open(ctx, g.cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if all {
				for _, r := range reports.All() {
					if len(r.Params) > 0 {
						logging.Debug().Str("report", r.Name).Msg("Skipping parameterized report")
						continue
					}
					res, err := reports.Run(ctx, db, r.Name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "# %s: %s\n", r.Name, r.Description)
					if err := reports.WriteTSV(out, res); err != nil {
						return err
					}
					fmt.Fprintln(out)
				}
				return nil
			}

			params := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				params = append(params, a)
			}
			res, err := reports.Run(ctx, db, args[0], params...)
			if err != nil {
				return err
			}
			logging.Debug().Str("report", res.Report).Int("rows", len(res.Rows)).Msg("Report complete")
			return reports.WriteTSV(out, res)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run every report that takes no arguments")
	return cmd
}

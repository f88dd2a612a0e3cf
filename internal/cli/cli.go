// Package cli implements the command-line interface for salesetl.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"salesetl/internal/config"
	"salesetl/internal/logging"
	"salesetl/internal/reports"
)

// Version is set at build time with -ldflags "-X salesetl/internal/cli.Version=...".
var Version = "dev"

// globals holds persistent flag values and the resolved config for one
// command tree.
type globals struct {
	cfgFile  string
	envFile  string
	logLevel string
	dsn      string
	storage  string

	cfg *config.Config
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "salesetl",
		Short: "Normalize a tab-delimited sales export into a relational store",
		Long: `salesetl reads a tab-delimited sales export where each line carries a
customer, their location and a semicolon-separated list of ordered items,
and normalizes it into six related tables: Region, Country, Customer,
ProductCategory, Product and OrderDetail.

The load runs against SQLite, PostgreSQL or SQL Server. The fixed
analytical reports (ex1..ex11) run against a SQLite store.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.init(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.cfgFile, "config", "",
		"config file (default: ./salesetl.yaml)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env",
		"dotenv file read before the config; missing is fine")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.dsn, "dsn", "",
		"storage DSN; ${VARS} are expanded")
	root.PersistentFlags().StringVar(&g.storage, "storage", "",
		"storage backend (sqlite, postgres, mssql)")

	root.AddCommand(
		newLoadCmd(g),
		newReportCmd(g),
		newReportsCmd(),
		newGenerateCmd(),
		newVerifyCmd(g),
		newVersionCmd(),
	)
	return root
}

func (g *globals) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(g.cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.dsn != "" {
		cfg.Storage.DSN = g.dsn
	}
	if g.storage != "" {
		cfg.Storage.Kind = g.storage
	}
	g.cfg = cfg

	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("salesetl " + Version)
		},
	}
}

func newReportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List available reports",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("Available reports:")
			cmd.Println()
			for _, r := range reports.All() {
				usage := r.Name
				for _, p := range r.Params {
					usage += fmt.Sprintf(" <%s>", p)
				}
				cmd.Printf("  %-24s - %s\n", usage, r.Description)
			}
			cmd.Println()
			cmd.Println("Use 'salesetl report <name> [args]' to run one.")
		},
	}
}

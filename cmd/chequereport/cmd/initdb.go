package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cheque-report-service/internal/period"
	"cheque-report-service/internal/sample"
	"cheque-report-service/internal/source"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

var (
	seedSample bool
	sampleOpts = sample.DefaultConfig()
)

var initDBFlags = map[string]string{
	"db-driver": "source.sql.driver",
	"db-dsn":    "source.sql.dsn",
	"as-of":     "report.as_of",
}

// initDBCmd represents the init-db command
var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the ledger tables in a local sqlite database",
	Long: `Init-db applies the schema migrations for the dpld and lnld ledger tables.
Migrations are tracked, so running it again is a no-op. With --sample the
tables are also filled with a generated dataset for the --as-of month.

Examples:
  chequereport init-db --db-dsn ledgers.db
  chequereport init-db --db-dsn ledgers.db --sample --as-of 2026-10-14`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), initDBFlags)
	},
	RunE: runInitDB,
}

func init() {
	rootCmd.AddCommand(initDBCmd)
	initDBCmd.Flags().String("db-driver", source.DriverSQLite, "database driver (only sqlite is migrated)")
	initDBCmd.Flags().String("db-dsn", "", "database file")
	initDBCmd.Flags().String("as-of", "", "month of the sample data (YYYY-MM-DD)")
	initDBCmd.Flags().BoolVar(&seedSample, "sample", false, "fill the tables with generated data")
	initDBCmd.Flags().IntVar(&sampleOpts.Rows, "rows", sampleOpts.Rows, "sample rows per disbursement snapshot")
	initDBCmd.Flags().Int64Var(&sampleOpts.Seed, "seed", sampleOpts.Seed, "random seed of the sample data")
}

func runInitDB(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	sqlConfig := settings.Source.SQL
	if sqlConfig.Driver != source.DriverSQLite {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "source.sql.driver", sqlConfig.Driver,
			fmt.Errorf("init-db migrates sqlite databases only")).
			WithSuggestion("Create the dpld and lnld tables with your database's own tooling")
	}

	ctx := contextOf(cmd)
	db, err := source.OpenSQL(ctx, sqlConfig)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := source.RunMigrations(db.DB()); err != nil {
		return err
	}
	log := logger.GetGlobalLogger().WithComponent("cli")
	log.WithField("dsn", sqlConfig.DSN).Info("Ledger schema is up to date")

	if !seedSample {
		return nil
	}

	asOf, err := settings.AsOf(time.Now())
	if err != nil {
		return err
	}
	gen, err := sample.NewGenerator(sampleOpts)
	if err != nil {
		return err
	}
	dataset := gen.Generate(period.Calculate(asOf))
	if err := dataset.Store(ctx, db); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded sample ledgers for %s into %s\n", dataset.Periods.Current.String(), sqlConfig.DSN)
	return nil
}

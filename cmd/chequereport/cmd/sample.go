package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cheque-report-service/internal/period"
	"cheque-report-service/internal/sample"
	"cheque-report-service/internal/source"
)

var csvSampleOpts = sample.DefaultConfig()

var sampleFlags = map[string]string{
	"output-dir":           "source.csv.dir",
	"disbursement-pattern": "source.csv.disbursement_pattern",
	"loan-ledger-pattern":  "source.csv.loan_ledger_pattern",
	"as-of":                "report.as_of",
}

// sampleCmd represents the generate-sample command
var sampleCmd = &cobra.Command{
	Use:   "generate-sample",
	Short: "Write generated ledger extracts as CSV",
	Long: `Generate-sample writes the three disbursement snapshots and the loan ledger
for the --as-of month, named the way the report command looks for them.
The same seed always produces the same files.

Examples:
  chequereport generate-sample --output-dir /tmp/extracts
  chequereport generate-sample --output-dir /tmp/extracts --rows 1000 --seed 7 --as-of 2026-10-14`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), sampleFlags)
	},
	RunE: runGenerateSample,
}

func init() {
	rootCmd.AddCommand(sampleCmd)
	sampleCmd.Flags().String("output-dir", ".", "directory the extracts are written to")
	sampleCmd.Flags().String("disbursement-pattern", "", "file name template of the disbursement snapshots")
	sampleCmd.Flags().String("loan-ledger-pattern", "", "file name template of the loan ledger")
	sampleCmd.Flags().String("as-of", "", "reporting month (YYYY-MM-DD), defaults to today")
	sampleCmd.Flags().IntVar(&csvSampleOpts.Rows, "rows", csvSampleOpts.Rows, "rows per disbursement snapshot")
	sampleCmd.Flags().Int64Var(&csvSampleOpts.Seed, "seed", csvSampleOpts.Seed, "random seed")
	sampleCmd.Flags().Float64Var(&csvSampleOpts.MatchRatio, "match-ratio", csvSampleOpts.MatchRatio, "share of cheques with a loan-ledger posting")
	sampleCmd.Flags().IntVar(&csvSampleOpts.NoiseRows, "noise", csvSampleOpts.NoiseRows, "loan-ledger rows without a cheque")
}

func runGenerateSample(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	asOf, err := settings.AsOf(time.Now())
	if err != nil {
		return err
	}

	csvConfig := settings.Source.CSV
	csvConfig.LoanLedgerPath = ""
	csvSource, err := source.NewCSVSource(csvConfig)
	if err != nil {
		return err
	}

	gen, err := sample.NewGenerator(csvSampleOpts)
	if err != nil {
		return err
	}

	paths, err := gen.Generate(period.Calculate(asOf)).WriteCSV(csvSource)
	if err != nil {
		return err
	}

	for _, path := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}

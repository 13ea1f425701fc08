// Package sample generates reproducible ledger extracts for demos and tests.
package sample

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cheque-report-service/internal/models"
	"cheque-report-service/internal/source"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// Config controls the size and shape of a generated dataset
type Config struct {
	// Rows is the number of disbursement rows per snapshot
	Rows int
	Seed int64

	// MatchRatio is the share of disbursement rows that get a loan-ledger posting
	MatchRatio float64

	// NoiseRows is the number of loan-ledger rows with no disbursement counterpart
	NoiseRows int

	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// DefaultConfig returns a small dataset configuration
func DefaultConfig() Config {
	return Config{
		Rows:       200,
		Seed:       1,
		MatchRatio: 0.6,
		NoiseRows:  20,
		MinAmount:  decimal.NewFromInt(100),
		MaxAmount:  decimal.NewFromInt(50000),
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Rows <= 0 {
		return fmt.Errorf("rows must be positive, got %d", c.Rows)
	}
	if c.MatchRatio < 0 || c.MatchRatio > 1 {
		return fmt.Errorf("match ratio must be between 0 and 1, got %v", c.MatchRatio)
	}
	if c.NoiseRows < 0 {
		return fmt.Errorf("noise rows cannot be negative, got %d", c.NoiseRows)
	}
	if !c.MinAmount.LessThan(c.MaxAmount) {
		return fmt.Errorf("min amount %s must be below max amount %s", c.MinAmount, c.MaxAmount)
	}
	return nil
}

// Dataset is one generated set of report inputs
type Dataset struct {
	Periods    models.ReportingPeriods
	Snapshots  map[models.SnapshotKind][]*models.DisbursementRecord
	LoanLedger []*models.LoanLedgerRecord
}

// Generator produces datasets from a seeded random source
type Generator struct {
	config Config
	rng    *rand.Rand
	logger logger.Logger
}

var (
	transactionCodes = []int{310, 310, 310, 750, 752, 753, 754, 760, 760, 999}
	feePlans         = []string{"", "", "QR", "LF", "VA", "IP", "PA", "MC", "99", "ZZ"}
	branches         = []string{"KL01", "PG02", "JB03", "KK04", "KC05"}
	outlierCenters   = []int{2999, 4000, 4043, 4048, 5100}
)

// NewGenerator creates a generator for config
func NewGenerator(config Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "sample", config.Rows, err)
	}
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		logger: logger.GetGlobalLogger().WithComponent("sample_generator"),
	}, nil
}

// Generate builds the three snapshots and a loan ledger for periods
func (g *Generator) Generate(periods models.ReportingPeriods) *Dataset {
	ds := &Dataset{
		Periods:   periods,
		Snapshots: make(map[models.SnapshotKind][]*models.DisbursementRecord, len(models.SnapshotKinds)),
	}

	account := 0
	cheque := 0
	for _, kind := range models.SnapshotKinds {
		p := periods.ForSnapshot(kind)
		records := make([]*models.DisbursementRecord, 0, g.config.Rows)

		for i := 0; i < g.config.Rows; i++ {
			account++
			cheque++
			record := models.NewDisbursementRecord(
				fmt.Sprintf("%010d", 3000000000+account),
				g.dayIn(p),
				g.amount(),
				kind,
			)
			record.Attributes = map[string]string{
				"chqno":  fmt.Sprintf("%06d", cheque),
				"branch": branches[g.rng.Intn(len(branches))],
			}
			records = append(records, record)

			if g.rng.Float64() < g.config.MatchRatio {
				ds.LoanLedger = append(ds.LoanLedger, g.posting(record))
			}
		}
		ds.Snapshots[kind] = records
	}

	for i := 0; i < g.config.NoiseRows; i++ {
		account++
		ds.LoanLedger = append(ds.LoanLedger, &models.LoanLedgerRecord{
			AcctNo:   fmt.Sprintf("%010d", 3000000000+account),
			TranDt:   g.dayIn(periods.Current),
			TranAmt:  g.amount(),
			TranCode: transactionCodes[g.rng.Intn(len(transactionCodes))],
			CostCtr:  g.costCenter(),
		})
	}

	g.logger.WithFields(logger.Fields{
		"period":       periods.Current.String(),
		"snapshot_row": g.config.Rows,
		"loan_rows":    len(ds.LoanLedger),
		"seed":         g.config.Seed,
	}).Info("Sample dataset generated")

	return ds
}

func (g *Generator) dayIn(p models.Period) time.Time {
	days := p.Start.AddDate(0, 1, -1).Day()
	return p.Start.AddDate(0, 0, g.rng.Intn(days))
}

func (g *Generator) amount() decimal.Decimal {
	minCents := g.config.MinAmount.Shift(2).IntPart()
	maxCents := g.config.MaxAmount.Shift(2).IntPart()
	return decimal.New(minCents+g.rng.Int63n(maxCents-minCents), -2)
}

func (g *Generator) costCenter() int {
	if g.rng.Float64() < 0.1 {
		return outlierCenters[g.rng.Intn(len(outlierCenters))]
	}
	return 3000 + g.rng.Intn(1000)
}

// posting creates the loan-ledger row that pays out disbursement record
func (g *Generator) posting(record *models.DisbursementRecord) *models.LoanLedgerRecord {
	code := transactionCodes[g.rng.Intn(len(transactionCodes))]
	feePlan := ""
	if code == 760 {
		feePlan = feePlans[g.rng.Intn(len(feePlans))]
	}
	return &models.LoanLedgerRecord{
		AcctNo:   record.AccountNumber,
		TranDt:   record.TransactionDate,
		TranAmt:  record.TransactionAmount,
		TranCode: code,
		FeePlan:  feePlan,
		CostCtr:  g.costCenter(),
	}
}

// Source returns the dataset as an in-memory data source
func (ds *Dataset) Source() *source.MemorySource {
	src := source.NewMemorySource()
	for _, kind := range models.SnapshotKinds {
		src.SetDisbursements(ds.Periods.ForSnapshot(kind), kind, ds.Snapshots[kind])
	}
	return src.SetLoanLedger(ds.Periods.Current, ds.LoanLedger)
}

// WriteCSV writes the four extracts to the paths csvSource would read them from
func (ds *Dataset) WriteCSV(csvSource *source.CSVSource) ([]string, error) {
	var paths []string

	for _, kind := range models.SnapshotKinds {
		path, err := csvSource.DisbursementPath(ds.Periods.ForSnapshot(kind), kind)
		if err != nil {
			return paths, err
		}
		if err := writeCSV(path, disbursementRows(ds.Snapshots[kind])); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	path, err := csvSource.LoanLedgerPath(ds.Periods.Current)
	if err != nil {
		return paths, err
	}
	if err := writeCSV(path, loanLedgerRows(ds.LoanLedger)); err != nil {
		return paths, err
	}
	return append(paths, path), nil
}

// Store loads the dataset into the dpld and lnld tables
func (ds *Dataset) Store(ctx context.Context, sqlSource *source.SQLSource) error {
	for _, kind := range models.SnapshotKinds {
		if err := sqlSource.StoreDisbursements(ctx, ds.Periods.ForSnapshot(kind), ds.Snapshots[kind]); err != nil {
			return err
		}
	}
	return sqlSource.StoreLoanLedger(ctx, ds.Periods.Current, ds.LoanLedger)
}

func disbursementRows(records []*models.DisbursementRecord) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{"acctno", "trandt", "tranamt", "chqno", "branch"})
	for _, r := range records {
		rows = append(rows, []string{
			r.AccountNumber,
			r.TransactionDate.Format(models.DateLayout),
			r.TransactionAmount.StringFixed(2),
			r.Attributes["chqno"],
			r.Attributes["branch"],
		})
	}
	return rows
}

// loanLedgerRows writes dates in the DDMONYYYY form of the mainframe extract
func loanLedgerRows(records []*models.LoanLedgerRecord) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{"ACCTNO", "TRANDT", "TRANAMT", "TRANCODE", "FEEPLAN", "COSTCTR"})
	for _, r := range records {
		rows = append(rows, []string{
			r.AcctNo,
			strings.ToUpper(r.TranDt.Format("02Jan2006")),
			r.TranAmt.StringFixed(2),
			strconv.Itoa(r.TranCode),
			r.FeePlan,
			strconv.Itoa(r.CostCtr),
		})
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.FileError(errors.CodeDirectoryError, filepath.Dir(path), err)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

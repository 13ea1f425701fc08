package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"cheque-report-service/internal/models"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// SQLConfig selects the database and the ledger tables
type SQLConfig struct {
	Driver            string `mapstructure:"driver"`
	DSN               string `mapstructure:"dsn"`
	DisbursementTable string `mapstructure:"disbursement_table"`
	LoanLedgerTable   string `mapstructure:"loan_ledger_table"`
}

// DefaultSQLConfig returns a sqlite configuration with the standard table names
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Driver:            DriverSQLite,
		DSN:               "cheque-report.db",
		DisbursementTable: "dpld",
		LoanLedgerTable:   "lnld",
	}
}

// Validate checks the driver and table names
func (c *SQLConfig) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "source.sql.driver", c.Driver,
			fmt.Errorf("must be %s or %s", DriverPostgres, DriverSQLite))
	}
	if strings.TrimSpace(c.DSN) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "source.sql.dsn", c.DSN, nil)
	}
	if !identifierPattern.MatchString(c.DisbursementTable) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "source.sql.disbursement_table", c.DisbursementTable, nil)
	}
	if !identifierPattern.MatchString(c.LoanLedgerTable) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "source.sql.loan_ledger_table", c.LoanLedgerTable, nil)
	}
	return nil
}

// SQLSource reads ledger snapshots from dpld and lnld tables partitioned by reptmon/reptyear
type SQLSource struct {
	db     *sql.DB
	config SQLConfig
	logger logger.Logger
}

// OpenSQL opens the configured database and verifies the connection
func OpenSQL(ctx context.Context, config SQLConfig) (*SQLSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, errors.SourceError(errors.CodeConnectionFailed, config.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.SourceError(errors.CodeConnectionFailed, config.Driver, err)
	}

	return NewSQLSource(db, config), nil
}

// NewSQLSource wraps an open database handle
func NewSQLSource(db *sql.DB, config SQLConfig) *SQLSource {
	return &SQLSource{
		db:     db,
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("sql_source"),
	}
}

// DB exposes the underlying handle for migrations and loading
func (s *SQLSource) DB() *sql.DB {
	return s.db
}

// Close closes the database handle
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for postgres
func (s *SQLSource) rebind(query string) string {
	if s.config.Driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Disbursements implements DataSource
func (s *SQLSource) Disbursements(ctx context.Context, period models.Period, kind models.SnapshotKind) ([]*models.DisbursementRecord, error) {
	dataset := datasetName("disbursement ledger", period, kind)
	query := s.rebind(fmt.Sprintf(
		"SELECT acctno, trandt, tranamt, chqno, branch FROM %s WHERE reptmon = ? AND reptyear = ? ORDER BY id",
		s.config.DisbursementTable))

	rows, err := s.db.QueryContext(ctx, query, period.Month, period.Year)
	if err != nil {
		return nil, errors.SourceError(errors.CodeQueryFailed, dataset, err)
	}
	defer rows.Close()

	var records []*models.DisbursementRecord
	for rows.Next() {
		var (
			acct, date    string
			amount        decimal.Decimal
			chqNo, branch sql.NullString
		)
		if err := rows.Scan(&acct, &date, &amount, &chqNo, &branch); err != nil {
			return nil, errors.SourceError(errors.CodeQueryFailed, dataset, err)
		}

		trandt, err := models.ParseDateWithFormats(date)
		if err != nil {
			return nil, errors.SourceError(errors.CodeQueryFailed, dataset, err).WithContext("trandt", date)
		}

		record := models.NewDisbursementRecord(acct, trandt, amount, kind)
		if chqNo.Valid || branch.Valid {
			record.Attributes = make(map[string]string, 2)
			if chqNo.Valid {
				record.Attributes["chqno"] = chqNo.String
			}
			if branch.Valid {
				record.Attributes["branch"] = branch.String
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.SourceError(errors.CodeQueryFailed, dataset, err)
	}

	log := s.logger.WithFields(logger.Fields{
		"snapshot": kind,
		"period":   period.String(),
		"rows":     len(records),
	})
	if len(records) == 0 {
		// An empty month is a valid snapshot, as with a header-only extract
		log.Warn("Disbursement snapshot has no rows")
		return records, nil
	}
	log.Info("Loaded disbursement snapshot")

	return records, nil
}

// LoanLedger implements DataSource
func (s *SQLSource) LoanLedger(ctx context.Context, period models.Period) ([]*models.LoanLedgerRecord, error) {
	dataset := datasetName("loan ledger", period, "")
	query := s.rebind(fmt.Sprintf(
		"SELECT acctno, trandt, tranamt, trancode, feeplan, costctr FROM %s WHERE reptmon = ? AND reptyear = ? ORDER BY id",
		s.config.LoanLedgerTable))

	rows, err := s.db.QueryContext(ctx, query, period.Month, period.Year)
	if err != nil {
		return nil, errors.SourceError(errors.CodeQueryFailed, dataset, err)
	}
	defer rows.Close()

	var records []*models.LoanLedgerRecord
	for rows.Next() {
		var (
			record  models.LoanLedgerRecord
			date    string
			feePlan sql.NullString
		)
		if err := rows.Scan(&record.AcctNo, &date, &record.TranAmt, &record.TranCode, &feePlan, &record.CostCtr); err != nil {
			return nil, errors.SourceError(errors.CodeQueryFailed, dataset, err)
		}

		record.TranDt, err = models.ParseDateWithFormats(date)
		if err != nil {
			return nil, errors.SourceError(errors.CodeQueryFailed, dataset, err).WithContext("TRANDT", date)
		}
		if feePlan.Valid {
			record.FeePlan = feePlan.String
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.SourceError(errors.CodeQueryFailed, dataset, err)
	}

	log := s.logger.WithFields(logger.Fields{
		"period": period.String(),
		"rows":   len(records),
	})
	if len(records) == 0 {
		log.Warn("Loan ledger has no rows")
		return records, nil
	}
	log.Info("Loaded loan ledger")

	return records, nil
}

// StoreDisbursements inserts a disbursement snapshot under period
func (s *SQLSource) StoreDisbursements(ctx context.Context, period models.Period, records []*models.DisbursementRecord) error {
	query := s.rebind(fmt.Sprintf(
		"INSERT INTO %s (reptmon, reptyear, acctno, trandt, tranamt, chqno, branch) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.config.DisbursementTable))

	return s.inTx(ctx, datasetName("disbursement ledger", period, ""), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			_, err := stmt.ExecContext(ctx, period.Month, period.Year, r.AccountNumber,
				r.TransactionDate.Format(models.DateLayout), r.TransactionAmount.String(),
				nullable(r.Attributes["chqno"]), nullable(r.Attributes["branch"]))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// StoreLoanLedger inserts loan-ledger postings under period
func (s *SQLSource) StoreLoanLedger(ctx context.Context, period models.Period, records []*models.LoanLedgerRecord) error {
	query := s.rebind(fmt.Sprintf(
		"INSERT INTO %s (reptmon, reptyear, acctno, trandt, tranamt, trancode, feeplan, costctr) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		s.config.LoanLedgerTable))

	return s.inTx(ctx, datasetName("loan ledger", period, ""), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			_, err := stmt.ExecContext(ctx, period.Month, period.Year, r.AcctNo,
				r.TranDt.Format(models.DateLayout), r.TranAmt.String(), r.TranCode,
				nullable(r.FeePlan), r.CostCtr)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLSource) inTx(ctx context.Context, dataset string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.SourceError(errors.CodeConnectionFailed, dataset, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return errors.SourceError(errors.CodeQueryFailed, dataset, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.SourceError(errors.CodeQueryFailed, dataset, err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"cheque-report-service/internal/models"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// LoanLedgerParser handles parsing of loan-ledger transaction files
type LoanLedgerParser struct {
	*BaseParser
	config *LoanLedgerConfig
	logger logger.Logger
}

// NewLoanLedgerParser creates a new LoanLedgerParser with the given configuration
func NewLoanLedgerParser(config *LoanLedgerConfig) (*LoanLedgerParser, error) {
	if config == nil {
		config = DefaultLoanLedgerConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "loan_ledger_parser_config", config, err).
			WithSuggestion("Check the loan ledger column settings")
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter
	// Fee plan codes are matched verbatim; the other fields are trimmed on read
	parseConfig.TrimLeadingSpace = false

	return &LoanLedgerParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("loan_ledger_parser"),
	}, nil
}

// ParseFile parses a loan-ledger extract from disk
func (lp *LoanLedgerParser) ParseFile(ctx context.Context, filePath string) ([]*models.LoanLedgerRecord, *ParseStats, error) {
	file, reader, err := lp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return lp.parse(ctx, reader, filePath)
}

// Parse parses a loan-ledger extract from r; name identifies the input in errors and logs
func (lp *LoanLedgerParser) Parse(ctx context.Context, r io.Reader, name string) ([]*models.LoanLedgerRecord, *ParseStats, error) {
	return lp.parse(ctx, lp.NewReader(r), name)
}

func (lp *LoanLedgerParser) parse(ctx context.Context, reader *csv.Reader, name string) ([]*models.LoanLedgerRecord, *ParseStats, error) {
	lp.logger.WithField("source", name).Debug("Starting loan ledger parsing")

	pc := NewParseContext(ctx, name)
	stats := NewParseStats(name)

	// FEEPLAN is optional: an extract without it has no fee plan on any row
	if err := lp.ReadHeaders(reader, pc, lp.requiredHeaders()); err != nil {
		return nil, stats, err
	}

	records := make([]*models.LoanLedgerRecord, 0)
	for {
		row, err := lp.ReadRecord(reader, pc)
		if err == io.EOF {
			break
		}
		if err != nil {
			if rowErr, ok := err.(*ParseError); ok {
				stats.AddError(rowErr)
				continue
			}
			return nil, stats, err
		}

		stats.RecordsParsed++

		record, rowErr := lp.parseRecord(row, pc)
		if rowErr != nil {
			stats.AddError(rowErr)
			continue
		}

		records = append(records, record)
		stats.RecordsValid++
	}

	stats.TotalLines = pc.Line
	logCompletion(lp.logger, stats)

	return records, stats, nil
}

func (lp *LoanLedgerParser) requiredHeaders() []string {
	return []string{
		lp.config.ColumnName(FieldAccount),
		lp.config.ColumnName(FieldDate),
		lp.config.ColumnName(FieldAmount),
		lp.config.ColumnName(FieldCode),
		lp.config.ColumnName(FieldCostCenter),
	}
}

func (lp *LoanLedgerParser) parseRecord(row []string, pc *ParseContext) (*models.LoanLedgerRecord, *ParseError) {
	accountCol := lp.config.ColumnName(FieldAccount)
	dateCol := lp.config.ColumnName(FieldDate)
	amountCol := lp.config.ColumnName(FieldAmount)
	codeCol := lp.config.ColumnName(FieldCode)
	costCol := lp.config.ColumnName(FieldCostCenter)

	account, _ := lp.FieldValue(row, pc, accountCol)
	if isMissing(account) {
		return nil, rowError(pc, errors.CodeMissingField, accountCol, account, "account number is required", nil)
	}

	dateStr, _ := lp.FieldValue(row, pc, dateCol)
	date, err := models.ParseDateWithFormats(dateStr)
	if err != nil {
		return nil, rowError(pc, errors.CodeInvalidDate, dateCol, dateStr, "invalid transaction date", err)
	}

	amountStr, _ := lp.FieldValue(row, pc, amountCol)
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, rowError(pc, errors.CodeInvalidAmount, amountCol, amountStr, "invalid transaction amount", err)
	}

	codeStr, _ := lp.FieldValue(row, pc, codeCol)
	code, err := parseIntegerField(codeStr)
	if err != nil {
		return nil, rowError(pc, errors.CodeInvalidData, codeCol, codeStr, "invalid transaction code", err)
	}

	costStr, _ := lp.FieldValue(row, pc, costCol)
	cost, err := parseIntegerField(costStr)
	if err != nil {
		return nil, rowError(pc, errors.CodeInvalidData, costCol, costStr, "invalid cost center", err)
	}

	feePlan, _ := lp.RawFieldValue(row, pc, lp.config.ColumnName(FieldFeePlan))
	if absentFeePlans[feePlan] {
		feePlan = ""
	}

	return &models.LoanLedgerRecord{
		AcctNo:   models.NormalizeAccountNumber(account),
		TranDt:   date,
		TranAmt:  amount,
		TranCode: code,
		FeePlan:  feePlan,
		CostCtr:  cost,
	}, nil
}

// parseIntegerField accepts integer codes written with a zero fraction, as float exports do
func parseIntegerField(s string) (int, error) {
	if isMissing(s) {
		return 0, fmt.Errorf("value is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer '%s': %w", s, err)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("value '%s' is not a whole number", s)
	}
	return int(d.IntPart()), nil
}

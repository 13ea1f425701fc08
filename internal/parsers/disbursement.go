package parsers

import (
	"context"
	"encoding/csv"
	"io"

	"cheque-report-service/internal/models"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// DisbursementParser handles parsing of disbursement-ledger snapshot files
type DisbursementParser struct {
	*BaseParser
	config *DisbursementConfig
	logger logger.Logger
}

// NewDisbursementParser creates a new DisbursementParser with the given configuration
func NewDisbursementParser(config *DisbursementConfig) (*DisbursementParser, error) {
	if config == nil {
		config = DefaultDisbursementConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "disbursement_parser_config", config, err).
			WithSuggestion("Check the disbursement column settings")
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	return &DisbursementParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("disbursement_parser"),
	}, nil
}

// ParseFile parses one snapshot file, tagging every row with the snapshot kind
func (dp *DisbursementParser) ParseFile(ctx context.Context, filePath string, kind models.SnapshotKind) ([]*models.DisbursementRecord, *ParseStats, error) {
	file, reader, err := dp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return dp.parse(ctx, reader, filePath, kind)
}

// Parse parses a snapshot from r; name identifies the input in errors and logs
func (dp *DisbursementParser) Parse(ctx context.Context, r io.Reader, name string, kind models.SnapshotKind) ([]*models.DisbursementRecord, *ParseStats, error) {
	return dp.parse(ctx, dp.NewReader(r), name, kind)
}

func (dp *DisbursementParser) parse(ctx context.Context, reader *csv.Reader, name string, kind models.SnapshotKind) ([]*models.DisbursementRecord, *ParseStats, error) {
	dp.logger.WithFields(logger.Fields{
		"source":   name,
		"snapshot": kind,
	}).Debug("Starting disbursement parsing")

	pc := NewParseContext(ctx, name)
	stats := NewParseStats(name)

	if err := dp.ReadHeaders(reader, pc, dp.requiredHeaders()); err != nil {
		return nil, stats, err
	}
	keyColumns := dp.keyColumnIndexes(pc)

	records := make([]*models.DisbursementRecord, 0)
	for {
		row, err := dp.ReadRecord(reader, pc)
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

		record, rowErr := dp.parseRecord(row, pc, kind, keyColumns)
		if rowErr != nil {
			stats.AddError(rowErr)
			continue
		}

		records = append(records, record)
		stats.RecordsValid++
	}

	stats.TotalLines = pc.Line
	logCompletion(dp.logger, stats)

	return records, stats, nil
}

func (dp *DisbursementParser) requiredHeaders() []string {
	return []string{
		dp.config.ColumnName(FieldAccount),
		dp.config.ColumnName(FieldDate),
		dp.config.ColumnName(FieldAmount),
	}
}

func (dp *DisbursementParser) keyColumnIndexes(pc *ParseContext) map[int]bool {
	keys := make(map[int]bool, 3)
	for _, name := range dp.requiredHeaders() {
		keys[pc.ColumnIndex(name)] = true
	}
	return keys
}

func (dp *DisbursementParser) parseRecord(row []string, pc *ParseContext, kind models.SnapshotKind, keyColumns map[int]bool) (*models.DisbursementRecord, *ParseError) {
	accountCol := dp.config.ColumnName(FieldAccount)
	dateCol := dp.config.ColumnName(FieldDate)
	amountCol := dp.config.ColumnName(FieldAmount)

	account, _ := dp.FieldValue(row, pc, accountCol)
	if isMissing(account) {
		return nil, rowError(pc, errors.CodeMissingField, accountCol, account, "account number is required", nil)
	}

	dateStr, _ := dp.FieldValue(row, pc, dateCol)
	date, err := models.ParseDateWithFormats(dateStr)
	if err != nil {
		return nil, rowError(pc, errors.CodeInvalidDate, dateCol, dateStr, "invalid transaction date", err)
	}

	amountStr, _ := dp.FieldValue(row, pc, amountCol)
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, rowError(pc, errors.CodeInvalidAmount, amountCol, amountStr, "invalid transaction amount", err)
	}

	record := models.NewDisbursementRecord(account, date, amount, kind)
	for i, value := range row {
		if keyColumns[i] || i >= len(pc.Headers) {
			continue
		}
		if record.Attributes == nil {
			record.Attributes = make(map[string]string)
		}
		record.Attributes[pc.Headers[i]] = value
	}

	return record, nil
}

// rowError builds the skipped-row error with the typed cause attached
func rowError(pc *ParseContext, code errors.ErrorCode, field, value, message string, cause error) *ParseError {
	return &ParseError{
		Line:    pc.Line,
		Field:   field,
		Value:   value,
		Message: message,
		Err:     errors.ParseError(code, pc.Source, pc.Line, field, value, cause),
	}
}

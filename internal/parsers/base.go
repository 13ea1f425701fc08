// Package parsers reads ledger extracts from CSV files.
//
// Two parsers share one BaseParser:
//   - DisbursementParser: disbursement-ledger (DPLD) snapshots
//   - LoanLedgerParser: loan-ledger (LNLD) transaction postings
//
// Header lookup is case-insensitive and honours column aliases, so both
// the upper-case SAS extract names (ACCTNO, TRANDT, ...) and lower-case
// exports are accepted. A missing required header or unreadable file is
// fatal; a row that fails to parse is recorded in ParseStats and skipped.
//
// Example usage:
//
//	parser, err := NewLoanLedgerParser(DefaultLoanLedgerConfig())
//	rows, stats, err := parser.ParseFile(ctx, "LNLD102026.csv")
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// ParseError represents a row-level failure that caused the row to be skipped
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s='%s'): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s='%s'): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     64 * 1024,
		ValidateEncoding: true,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}

	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("base_parser"),
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source    string
	Line      int
	Headers   []string
	HeaderMap map[string]int
	ctx       context.Context
}

// NewParseContext creates a new parsing context for the named source
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// Err returns the context error once the parse has been cancelled
func (pc *ParseContext) Err() error {
	return pc.ctx.Err()
}

// ColumnIndex returns the index of a column by name, or -1 if not found.
// Lookup falls back to a case-insensitive match.
func (pc *ParseContext) ColumnIndex(name string) int {
	if index, ok := pc.HeaderMap[name]; ok {
		return index
	}
	for header, index := range pc.HeaderMap {
		if strings.EqualFold(header, name) {
			return index
		}
	}
	return -1
}

// OpenFile opens a CSV file and returns a configured csv.Reader
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		case os.IsPermission(err):
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		default:
			return nil, nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
		}
	}

	return file, bp.NewReader(file), nil
}

// NewReader wraps r in a csv.Reader configured from the parser settings
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader
}

// ReadHeaders reads the header row and checks that every required column is present
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, pc *ParseContext, required []string) error {
	if !bp.config.HasHeader {
		pc.Headers = append([]string(nil), required...)
		bp.buildHeaderMap(pc)
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
				WithContext("source", pc.Source).
				WithSuggestion("Ensure the file contains a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, pc.Source, 1, "headers", "", err).
			WithSuggestion("Check the file format and ensure it's a valid CSV")
	}

	pc.Line++
	pc.Headers = make([]string, len(headers))
	for i, h := range headers {
		// Strip a UTF-8 byte order mark left by spreadsheet exports
		pc.Headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	bp.buildHeaderMap(pc)

	var missing []string
	for _, name := range required {
		if pc.ColumnIndex(name) == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"source":            pc.Source,
			"missing_headers":   missing,
			"available_headers": pc.Headers,
		}).Error("Required headers are missing")

		return errors.ParseError(errors.CodeMissingColumn, pc.Source, pc.Line, strings.Join(missing, ", "), "", nil).
			WithSuggestion(fmt.Sprintf("Ensure the CSV file contains these headers: %s", strings.Join(missing, ", ")))
	}

	return nil
}

func (bp *BaseParser) buildHeaderMap(pc *ParseContext) {
	pc.HeaderMap = make(map[string]int, len(pc.Headers))
	for i, header := range pc.Headers {
		pc.HeaderMap[header] = i
	}
}

// ReadRecord returns the next non-empty record. io.EOF marks the end of input.
// Malformed rows come back as *ParseError so callers can skip them.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, pc *ParseContext) ([]string, error) {
	for {
		if err := pc.Err(); err != nil {
			return nil, errors.InternalError(errors.CodeCancelled, "csv parsing", err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil, err
		}
		pc.Line++
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				return nil, &ParseError{Line: pc.Line, Field: "record", Message: "malformed csv row", Err: err}
			}
			return nil, errors.FileError(errors.CodeFileCorrupted, pc.Source, err)
		}

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		for i, field := range record {
			if bp.config.ValidateEncoding && !utf8.ValidString(field) {
				return nil, &ParseError{Line: pc.Line, Field: bp.headerName(pc, i), Message: "invalid UTF-8 encoding"}
			}
			if bp.config.MaxFieldSize > 0 && len(field) > bp.config.MaxFieldSize {
				return nil, &ParseError{
					Line:    pc.Line,
					Field:   bp.headerName(pc, i),
					Value:   field[:32] + "...",
					Message: fmt.Sprintf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize),
				}
			}
		}

		return record, nil
	}
}

func (bp *BaseParser) headerName(pc *ParseContext, index int) string {
	if index < len(pc.Headers) {
		return pc.Headers[index]
	}
	return fmt.Sprintf("field_%d", index)
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// FieldValue returns the trimmed value of the named column.
// A column that is absent from the header or the row yields an empty string and false.
func (bp *BaseParser) FieldValue(record []string, pc *ParseContext, name string) (string, bool) {
	index := pc.ColumnIndex(name)
	if index == -1 || index >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[index]), true
}

// RawFieldValue is FieldValue without trimming
func (bp *BaseParser) RawFieldValue(record []string, pc *ParseContext, name string) (string, bool) {
	index := pc.ColumnIndex(name)
	if index == -1 || index >= len(record) {
		return "", false
	}
	return record[index], true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source        string
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string) *ParseStats {
	return &ParseStats{Source: source}
}

// AddError records a skipped row
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// SampleErrors returns up to maxSamples error messages for logging
func (ps *ParseStats) SampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

// logCompletion writes the end-of-file summary line shared by both parsers
func logCompletion(log logger.Logger, stats *ParseStats) {
	log.WithFields(logger.Fields{
		"source":         stats.Source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Parsing completed")

	if stats.HasErrors() {
		log.WithField("sample_errors", stats.SampleErrors(3)).Warn("Skipped rows during parsing")
	}
}

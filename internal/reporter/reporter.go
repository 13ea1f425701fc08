// Package reporter renders EIBQEPC1 results and delivers them to sinks.
//
// Supported output formats:
//   - Console: the header block and three tables aligned for a terminal or print file
//   - JSON: the same tables as structured data
//   - CSV: one section per table for spreadsheet use
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"cheque-report-service/internal/aggregator"
	"cheque-report-service/internal/reconciler"
	"cheque-report-service/pkg/errors"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// Extension returns the file extension for the format
func (f OutputFormat) Extension() string {
	if f == FormatConsole {
		return "txt"
	}
	return string(f)
}

// ParseOutputFormat parses an output format name
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format '%s': must be console, json or csv", s)
	}
	return f, nil
}

// Column headings of the printed tables
const (
	ColumnNumberOfCheques = "NUMBER_OF_CHEQUES"
	ColumnValueOfCheques  = "VALUE_OF_CHEQUES_RM000"
	ColumnCount           = "COUNT"
	ColumnDescription     = "TRNXDESC"
	ColumnUnit            = "UNIT"
	ColumnSum             = "SUM"
)

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// ValuePrecision is the number of decimals printed for RM'000 values; negative prints the exact value
	ValuePrecision int `json:"value_precision" mapstructure:"value_precision"`

	IncludeAllGroups       bool `json:"include_all_groups" mapstructure:"include_all_groups"`
	IncludeProcessingStats bool `json:"include_processing_stats" mapstructure:"include_processing_stats"`

	// Console formatting options
	UseColors bool `json:"use_colors" mapstructure:"use_colors"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"-"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:         FormatConsole,
		ValuePrecision: 2,
		UseColors:      true,
		CSVDelimiter:   ',',
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.ValuePrecision > 8 {
		return fmt.Errorf("value precision must be at most 8, got %d", c.ValuePrecision)
	}
	if c.CSVDelimiter == '\n' || c.CSVDelimiter == '"' {
		return fmt.Errorf("invalid csv delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates EIBQEPC1 reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output", config.Format, err).
			WithSuggestion("Check the report configuration values")
	}

	return &ReportGenerator{config: config}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// GenerateReport renders result to writer in the configured format
func (rg *ReportGenerator) GenerateReport(result *reconciler.ReportResult, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("Provide a generated report result")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}

	var err error
	switch rg.config.Format {
	case FormatConsole:
		err = rg.generateConsoleReport(result, writer)
	case FormatJSON:
		err = rg.generateJSONReport(result, writer)
	case FormatCSV:
		err = rg.generateCSVReport(result, writer)
	default:
		err = fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
	return wrapGenerationError(err, rg.config.Format, writer)
}

// formatValue renders an RM'000 amount at the configured precision
func (rg *ReportGenerator) formatValue(d decimal.Decimal) string {
	if rg.config.ValuePrecision < 0 {
		return d.String()
	}
	return d.StringFixed(int32(rg.config.ValuePrecision))
}

// TopTitle returns the caption of a ranked table
func TopTitle(n int, byValue bool) string {
	if byValue {
		return fmt.Sprintf("TOP %d PAYMENTS BY VALUE OF CHEQUES", n)
	}
	return fmt.Sprintf("TOP %d PAYMENTS BY NUMBER OF CHEQUES", n)
}

func topN(result *reconciler.ReportResult) int {
	if result.TopN > 0 {
		return result.TopN
	}
	return aggregator.DefaultTopN
}

// generateConsoleReport prints the header block followed by the three tables
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.ReportResult, writer io.Writer) error {
	title := rg.titlePrinter()
	n := topN(result)

	for i, line := range result.Header.Lines() {
		if i == 0 {
			title(writer, line)
			continue
		}
		fmt.Fprintln(writer, line)
	}
	fmt.Fprintln(writer)

	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", ColumnNumberOfCheques, ColumnValueOfCheques)
	fmt.Fprintf(tw, "%d\t%s\n", result.Summary.NumberOfCheques, rg.formatValue(result.Summary.ValueOfChequesRM000))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(writer)
	title(writer, TopTitle(n, false))
	if err := rg.printRankedTable(result.TopByCount, writer); err != nil {
		return err
	}

	fmt.Fprintln(writer)
	title(writer, TopTitle(n, true))
	if err := rg.printRankedTable(result.TopByValue, writer); err != nil {
		return err
	}

	if rg.config.IncludeAllGroups {
		fmt.Fprintln(writer)
		title(writer, "ALL PAYMENT TYPES")
		if err := rg.printGroupTable(result.AllGroups, writer); err != nil {
			return err
		}
	}

	if rg.config.IncludeProcessingStats && result.ProcessingStats != nil {
		fmt.Fprintln(writer)
		title(writer, "PROCESSING STATISTICS")
		return rg.printProcessingStats(result, writer)
	}

	return nil
}

func (rg *ReportGenerator) titlePrinter() func(io.Writer, string) {
	if !rg.config.UseColors {
		return func(w io.Writer, s string) { fmt.Fprintln(w, s) }
	}
	c := color.New(color.Bold, color.FgCyan)
	return func(w io.Writer, s string) { c.Fprintln(w, s) }
}

func (rg *ReportGenerator) printRankedTable(rows []aggregator.RankedGroup, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ColumnCount, ColumnDescription, ColumnUnit, ColumnSum)
	for _, row := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", row.Rank, row.Label(), row.Unit, rg.formatValue(row.Sum))
	}
	return tw.Flush()
}

func (rg *ReportGenerator) printGroupTable(groups []*aggregator.Group, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", ColumnDescription, ColumnUnit, ColumnSum)
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", g.Label(), g.Unit, rg.formatValue(g.Sum))
	}
	return tw.Flush()
}

func (rg *ReportGenerator) printProcessingStats(result *reconciler.ReportResult, writer io.Writer) error {
	stats := result.ProcessingStats

	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run ID:\t%s\n", result.RunID)
	fmt.Fprintf(tw, "Generated:\t%s\n", result.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Disbursement rows:\t%d\n", stats.CombinedRows)
	fmt.Fprintf(tw, "Loan ledger rows:\t%d\n", stats.LoanLedgerRows)
	fmt.Fprintf(tw, "Out of cost-center range:\t%d\n", stats.Normalize.OutOfRange)
	fmt.Fprintf(tw, "Excluded cost centers:\t%d\n", stats.Normalize.Excluded)
	fmt.Fprintf(tw, "Unmatched loan rows:\t%d\n", stats.Join.UnmatchedLoanRows)
	fmt.Fprintf(tw, "Joined rows:\t%d\n", stats.Join.OutputRows)
	fmt.Fprintf(tw, "Unclassified rows:\t%d\n", stats.Unclassified)
	for _, timing := range stats.Stages {
		fmt.Fprintf(tw, "Stage %s:\t%d rows in %s\n", timing.Stage, timing.Rows, timing.Duration)
	}
	return tw.Flush()
}

// TableRow is one row of a ranked table in JSON output
type TableRow struct {
	Count       int             `json:"count"`
	Description *string         `json:"trnxdesc"`
	Unit        int             `json:"unit"`
	Sum         decimal.Decimal `json:"sum"`
}

// JSONReport is the document written in JSON format
type JSONReport struct {
	RunID           string                      `json:"run_id"`
	Header          reconciler.ReportHeader     `json:"header"`
	Period          string                      `json:"period"`
	Summary         aggregator.Summary          `json:"summary"`
	TopByCount      []TableRow                  `json:"top_by_count"`
	TopByValue      []TableRow                  `json:"top_by_value"`
	AllGroups       []TableRow                  `json:"all_groups,omitempty"`
	ProcessingStats *reconciler.ProcessingStats `json:"processing_stats,omitempty"`
	GeneratedAt     time.Time                   `json:"generated_at"`
}

func rankedRows(rows []aggregator.RankedGroup) []TableRow {
	out := make([]TableRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, TableRow{
			Count:       row.Rank,
			Description: description(row.Group),
			Unit:        row.Unit,
			Sum:         row.Sum,
		})
	}
	return out
}

func description(g *aggregator.Group) *string {
	if !g.Description.Classified {
		return nil
	}
	label := g.Description.Label
	return &label
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.ReportResult, writer io.Writer) error {
	doc := JSONReport{
		RunID:       result.RunID.String(),
		Header:      result.Header,
		Period:      result.Periods.Current.String(),
		Summary:     result.Summary,
		TopByCount:  rankedRows(result.TopByCount),
		TopByValue:  rankedRows(result.TopByValue),
		GeneratedAt: result.GeneratedAt,
	}
	if rg.config.IncludeAllGroups {
		doc.AllGroups = make([]TableRow, 0, len(result.AllGroups))
		for i, g := range result.AllGroups {
			doc.AllGroups = append(doc.AllGroups, TableRow{Count: i + 1, Description: description(g), Unit: g.Unit, Sum: g.Sum})
		}
	}
	if rg.config.IncludeProcessingStats {
		doc.ProcessingStats = result.ProcessingStats
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// generateCSVReport writes one section per table with exact decimal values
func (rg *ReportGenerator) generateCSVReport(result *reconciler.ReportResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	n := topN(result)
	rows := [][]string{
		{"REPORT ID", result.Header.ReportID},
		{"ORGANIZATION", result.Header.Organization},
		{"TITLE", result.Header.Title},
		{},
		{ColumnNumberOfCheques, ColumnValueOfCheques},
		{strconv.Itoa(result.Summary.NumberOfCheques), result.Summary.ValueOfChequesRM000.String()},
		{},
		{TopTitle(n, false)},
	}
	rows = append(rows, rankedCSV(result.TopByCount)...)
	rows = append(rows, []string{}, []string{TopTitle(n, true)})
	rows = append(rows, rankedCSV(result.TopByValue)...)

	for _, record := range rows {
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func rankedCSV(rows []aggregator.RankedGroup) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, []string{ColumnCount, ColumnDescription, ColumnUnit, ColumnSum})
	for _, row := range rows {
		out = append(out, []string{
			strconv.Itoa(row.Rank),
			row.Label(),
			strconv.Itoa(row.Unit),
			row.Sum.String(),
		})
	}
	return out
}

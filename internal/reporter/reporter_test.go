package reporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	goerrors "errors"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"

	"cheque-report-service/internal/models"
	"cheque-report-service/internal/period"
	"cheque-report-service/internal/reconciler"
	"cheque-report-service/internal/source"
	"cheque-report-service/pkg/errors"
)

var asOf = time.Date(2026, time.October, 14, 8, 0, 0, 0, time.UTC)

func createTestResult(t *testing.T) *reconciler.ReportResult {
	t.Helper()

	periods := period.Calculate(asOf)
	d := func(acct string, day int, amount string, kind models.SnapshotKind) *models.DisbursementRecord {
		return models.NewDisbursementRecord(acct, time.Date(2026, 10, day, 0, 0, 0, 0, time.UTC), decimal.RequireFromString(amount), kind)
	}
	l := func(acct string, day int, amount string, code int, feePlan string) *models.LoanLedgerRecord {
		return &models.LoanLedgerRecord{
			AcctNo:   acct,
			TranDt:   time.Date(2026, 10, day, 0, 0, 0, 0, time.UTC),
			TranAmt:  decimal.RequireFromString(amount),
			TranCode: code,
			FeePlan:  feePlan,
			CostCtr:  3100,
		}
	}

	src := source.NewMemorySource().
		SetDisbursements(periods.Current, models.SnapshotCurrent, []*models.DisbursementRecord{
			d("A1", 1, "12000", models.SnapshotCurrent),
			d("A2", 2, "1500.50", models.SnapshotCurrent),
			d("A3", 3, "800", models.SnapshotCurrent),
		}).
		SetDisbursements(periods.Previous, models.SnapshotPrevious, nil).
		SetDisbursements(periods.PrePrevious, models.SnapshotPrePrevious, nil).
		SetLoanLedger(periods.Current, []*models.LoanLedgerRecord{
			l("A1", 1, "12000", 310, ""),
			l("A2", 2, "1500.50", 760, "QR"),
			l("A3", 3, "800", 999, ""),
		})

	service, err := reconciler.NewReportService(src, nil, nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	result, err := service.WithClock(period.FixedClock{Time: asOf}).Generate(context.Background(), reconciler.NewReportRequest(asOf))
	if err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}
	return result
}

func newGenerator(t *testing.T, format OutputFormat) *ReportGenerator {
	t.Helper()
	config := DefaultReportConfig()
	config.Format = format
	config.UseColors = false
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	return generator
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{name: "default config", config: nil},
		{name: "valid config", config: DefaultReportConfig()},
		{name: "invalid format", config: &ReportConfig{Format: "pdf"}, expectError: true},
		{name: "precision too large", config: &ReportConfig{Format: FormatConsole, ValuePrecision: 12}, expectError: true},
		{name: "quote delimiter", config: &ReportConfig{Format: FormatCSV, CSVDelimiter: '"'}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input string
		want  OutputFormat
		valid bool
	}{
		{"console", FormatConsole, true},
		{"JSON", FormatJSON, true},
		{" csv ", FormatCSV, true},
		{"xlsx", "", false},
	}

	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.input)
		if tt.valid != (err == nil) {
			t.Errorf("ParseOutputFormat(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGenerateConsoleReport(t *testing.T) {
	result := createTestResult(t)

	var buf bytes.Buffer
	if err := newGenerator(t, FormatConsole).GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	lines := strings.Split(output, "\n")
	wantHeader := []string{
		"REPORT ID : EIBQEPC1",
		"PUBLIC BANK BERHAD",
		"CHEQUES ISSUED BY THE BANK AS AT 01/10/2026",
	}
	for i, want := range wantHeader {
		if lines[i] != want {
			t.Errorf("header line %d = %q, want %q", i, lines[i], want)
		}
	}

	for _, want := range []string{
		"NUMBER_OF_CHEQUES  VALUE_OF_CHEQUES_RM000",
		"TOP 5 PAYMENTS BY NUMBER OF CHEQUES",
		"TOP 5 PAYMENTS BY VALUE OF CHEQUES",
		"COUNT  TRNXDESC",
		"LOAN DISBURSEMENT",
		"QUIT RENT",
		"UNCLASSIFIED",
		"14.30",
		"12.00",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected console output to contain %q\n%s", want, output)
		}
	}

	if strings.Contains(output, "PROCESSING STATISTICS") {
		t.Error("processing statistics should be omitted by default")
	}
}

func TestGenerateConsoleReportWithStats(t *testing.T) {
	result := createTestResult(t)

	config := DefaultReportConfig()
	config.UseColors = false
	config.IncludeProcessingStats = true
	config.IncludeAllGroups = true
	config.ValuePrecision = -1
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	for _, want := range []string{"PROCESSING STATISTICS", "ALL PAYMENT TYPES", "Joined rows:", "14.3005", "Stage join:"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected console output to contain %q\n%s", want, output)
		}
	}
}

func TestGenerateJSONReport(t *testing.T) {
	result := createTestResult(t)

	var buf bytes.Buffer
	if err := newGenerator(t, FormatJSON).GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc JSONReport
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}

	if doc.Summary.NumberOfCheques != result.Summary.NumberOfCheques {
		t.Errorf("expected %d cheques, got %d", result.Summary.NumberOfCheques, doc.Summary.NumberOfCheques)
	}
	if !doc.Summary.ValueOfChequesRM000.Equal(result.Summary.ValueOfChequesRM000) {
		t.Errorf("expected value %s, got %s", result.Summary.ValueOfChequesRM000, doc.Summary.ValueOfChequesRM000)
	}
	if len(doc.TopByCount) != len(result.TopByCount) {
		t.Fatalf("expected %d rows, got %d", len(result.TopByCount), len(doc.TopByCount))
	}
	if doc.Header.ReportID != "EIBQEPC1" || doc.Period != "2026-10" {
		t.Errorf("unexpected header %+v period %s", doc.Header, doc.Period)
	}

	var unclassified int
	for _, row := range doc.TopByValue {
		if row.Description == nil {
			unclassified++
		}
	}
	if unclassified != 1 {
		t.Errorf("expected one unclassified row with null trnxdesc, got %d", unclassified)
	}
	if doc.ProcessingStats != nil || doc.AllGroups != nil {
		t.Error("optional sections should be omitted by default")
	}
}

func TestGenerateCSVReport(t *testing.T) {
	result := createTestResult(t)

	var buf bytes.Buffer
	if err := newGenerator(t, FormatCSV).GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reader := csv.NewReader(&buf)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV output: %v", err)
	}

	if records[0][0] != "REPORT ID" || records[0][1] != "EIBQEPC1" {
		t.Errorf("unexpected first record %v", records[0])
	}

	var summary []string
	for i, record := range records {
		if record[0] == ColumnNumberOfCheques {
			summary = records[i+1]
		}
	}
	if len(summary) != 2 || summary[0] != "3" || summary[1] != "14.3005" {
		t.Errorf("unexpected summary record %v", summary)
	}

	tables := 0
	for _, record := range records {
		if strings.HasPrefix(record[0], "TOP 5 PAYMENTS") {
			tables++
		}
	}
	if tables != 2 {
		t.Errorf("expected 2 ranked tables, got %d", tables)
	}
}

func TestGenerateReportNilInputs(t *testing.T) {
	generator := newGenerator(t, FormatConsole)

	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
	if err := generator.GenerateReport(createTestResult(t), nil); err == nil {
		t.Error("expected error for nil writer")
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, goerrors.New("write /out/report.txt: no space left on device")
}

func TestGenerateReportWriteFailure(t *testing.T) {
	err := newGenerator(t, FormatCSV).GenerateReport(createTestResult(t), failingWriter{})
	if err == nil {
		t.Fatal("expected write error")
	}

	reportErr, ok := errors.AsReportError(err)
	if !ok {
		t.Fatalf("expected ReportError, got %T", err)
	}
	if reportErr.Code != errors.CodeRenderFailed {
		t.Errorf("expected render_failed, got %s", reportErr.Code)
	}
	if !strings.Contains(reportErr.Suggestion, "disk space") {
		t.Errorf("expected disk space suggestion, got %q", reportErr.Suggestion)
	}
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink("console", newGenerator(t, FormatConsole), &buf)

	if sink.Name() != "console" {
		t.Errorf("unexpected name %s", sink.Name())
	}
	if err := sink.Deliver(context.Background(), createTestResult(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "REPORT ID : EIBQEPC1") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	result := createTestResult(t)

	sink := NewFileSink(newGenerator(t, FormatJSON), dir)
	if err := sink.Deliver(context.Background(), result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(dir, "EIBQEPC1_102026.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected report file: %v", err)
	}
	if !json.Valid(data) {
		t.Error("expected valid JSON in report file")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the report file, got %d entries", len(entries))
	}
}

func TestFileSinkExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cheques.txt")
	sink := NewFileSink(newGenerator(t, FormatConsole), path)

	if err := sink.Deliver(context.Background(), createTestResult(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected report at %s: %v", path, err)
	}
}

func testSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "reports",
		Password: "secret",
		From:     "reports@example.com",
		To:       []string{"finance@example.com", "audit@example.com"},
	}
}

func TestSMTPConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *SMTPConfig)
		valid  bool
	}{
		{name: "valid", mutate: func(c *SMTPConfig) {}, valid: true},
		{name: "missing host", mutate: func(c *SMTPConfig) { c.Host = "" }},
		{name: "bad port", mutate: func(c *SMTPConfig) { c.Port = 0 }},
		{name: "missing from", mutate: func(c *SMTPConfig) { c.From = "" }},
		{name: "no recipients", mutate: func(c *SMTPConfig) { c.To = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testSMTPConfig()
			tt.mutate(&config)
			if err := config.Validate(); (err == nil) != tt.valid {
				t.Errorf("Validate() error = %v, valid = %v", err, tt.valid)
			}
		})
	}
}

func TestEmailSink(t *testing.T) {
	sink, err := NewEmailSink(testSMTPConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sent *email.Email
	var sentAddr string
	var sentAuth smtp.Auth
	sink.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		sent, sentAddr, sentAuth = e, addr, auth
		return nil
	}

	if err := sink.Deliver(context.Background(), createTestResult(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sentAddr != "smtp.example.com:587" {
		t.Errorf("unexpected address %s", sentAddr)
	}
	if sentAuth == nil {
		t.Error("expected plain auth when a username is configured")
	}
	if sent.Subject != "EIBQEPC1 CHEQUES ISSUED BY THE BANK AS AT 01/10/2026" {
		t.Errorf("unexpected subject %q", sent.Subject)
	}
	if len(sent.To) != 2 {
		t.Errorf("expected 2 recipients, got %v", sent.To)
	}
	if !strings.HasPrefix(string(sent.Text), "REPORT ID : EIBQEPC1") {
		t.Errorf("unexpected body %q", sent.Text)
	}
	if len(sent.Attachments) != 1 || sent.Attachments[0].Filename != "EIBQEPC1_102026.csv" {
		t.Fatalf("unexpected attachments %+v", sent.Attachments)
	}
	if !bytes.Contains(sent.Attachments[0].Content, []byte("TOP 5 PAYMENTS BY VALUE OF CHEQUES")) {
		t.Error("expected CSV report in attachment")
	}
}

func TestEmailSinkSendFailure(t *testing.T) {
	sink, err := NewEmailSink(testSMTPConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		return goerrors.New("connection refused")
	}

	err = sink.Deliver(context.Background(), createTestResult(t))
	reportErr, ok := errors.AsReportError(err)
	if !ok {
		t.Fatalf("expected ReportError, got %v", err)
	}
	if reportErr.Code != errors.CodeDeliveryFailed {
		t.Errorf("expected delivery_failed, got %s", reportErr.Code)
	}
}

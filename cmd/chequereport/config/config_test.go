package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"cheque-report-service/internal/aggregator"
	"cheque-report-service/internal/reporter"
	"cheque-report-service/internal/source"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	settings, err := Load(newViper())
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}

	if settings.Report.Format != "console" {
		t.Errorf("expected console format, got %s", settings.Report.Format)
	}
	if settings.Ranking.Top != aggregator.DefaultTopN {
		t.Errorf("expected top %d, got %d", aggregator.DefaultTopN, settings.Ranking.Top)
	}
	if settings.Filter.Min != 3000 || settings.Filter.Max != 3999 {
		t.Errorf("unexpected filter range %d-%d", settings.Filter.Min, settings.Filter.Max)
	}
	if len(settings.Filter.Excluded) != 2 {
		t.Errorf("expected two excluded cost centers, got %v", settings.Filter.Excluded)
	}
	if settings.Source.Kind != "csv" {
		t.Errorf("expected csv source, got %s", settings.Source.Kind)
	}
	if settings.Source.CSV.DisbursementPattern != source.DefaultDisbursementPattern {
		t.Errorf("unexpected disbursement pattern %s", settings.Source.CSV.DisbursementPattern)
	}
	if settings.Report.Header.ReportID != "EIBQEPC1" {
		t.Errorf("unexpected report id %s", settings.Report.Header.ReportID)
	}
	if settings.SMTP.Enabled() {
		t.Error("email delivery should be disabled by default")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CHEQUEREPORT_RANKING_TOP", "3")
	t.Setenv("CHEQUEREPORT_RANKING_TIE_BREAK", "description")
	t.Setenv("CHEQUEREPORT_SOURCE_CSV_DIR", "/data/extracts")
	t.Setenv("CHEQUEREPORT_SMTP_HOST", "smtp.example.com")
	t.Setenv("CHEQUEREPORT_SMTP_FROM", "reports@example.com")
	t.Setenv("CHEQUEREPORT_SMTP_TO", "ops@example.com, audit@example.com")

	v := newViper()
	BindEnv(v)

	settings, err := Load(v)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if settings.Ranking.Top != 3 {
		t.Errorf("expected top 3, got %d", settings.Ranking.Top)
	}
	if settings.Source.CSV.Dir != "/data/extracts" {
		t.Errorf("expected env dir, got %s", settings.Source.CSV.Dir)
	}
	if len(settings.SMTP.To) != 2 || settings.SMTP.To[1] != "audit@example.com" {
		t.Errorf("expected two recipients, got %v", settings.SMTP.To)
	}

	config, err := settings.ReconcilerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.TieBreak != aggregator.TieBreakDescription {
		t.Errorf("expected description tie-break, got %s", config.TieBreak)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chequereport.yaml")
	content := `
report:
  format: json
  value_precision: -1
filter:
  min: 3100
  max: 3200
  excluded: [3150]
source:
  kind: sql
  sql:
    driver: sqlite
    dsn: /tmp/ledgers.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	settings, err := Load(v)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if settings.Filter.Min != 3100 || len(settings.Filter.Excluded) != 1 || settings.Filter.Excluded[0] != 3150 {
		t.Errorf("unexpected filter %+v", settings.Filter)
	}
	if settings.Source.SQL.DSN != "/tmp/ledgers.db" {
		t.Errorf("unexpected dsn %s", settings.Source.SQL.DSN)
	}
	if settings.Source.SQL.DisbursementTable != "dpld" {
		t.Errorf("expected default table name, got %s", settings.Source.SQL.DisbursementTable)
	}

	reportConfig, err := settings.ReportConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reportConfig.Format != reporter.FormatJSON || reportConfig.ValuePrecision != -1 {
		t.Errorf("unexpected report config %+v", reportConfig)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		set  func(v *viper.Viper)
	}{
		{"format", "report.format", func(v *viper.Viper) { v.Set("report.format", "xml") }},
		{"top", "ranking.top", func(v *viper.Viper) { v.Set("ranking.top", 0) }},
		{"tie break", "ranking.tie_break", func(v *viper.Viper) { v.Set("ranking.tie_break", "random") }},
		{"source kind", "source.kind", func(v *viper.Viper) { v.Set("source.kind", "bigquery") }},
		{"as of", "report.as_of", func(v *viper.Viper) { v.Set("report.as_of", "14/10/2026") }},
		{"filter range", "filter", func(v *viper.Viper) { v.Set("filter.min", 5000) }},
		{"smtp", "smtp", func(v *viper.Viper) { v.Set("smtp.to", []string{"ops@example.com"}) }},
		{"log level", "log.level", func(v *viper.Viper) { v.Set("log.level", "trace") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			tt.set(v)

			_, err := Load(v)
			if err == nil {
				t.Fatalf("expected error for %s", tt.key)
			}
		})
	}
}

func TestValidateSQLSource(t *testing.T) {
	v := newViper()
	v.Set("source.kind", "sql")
	v.Set("source.sql.loan_ledger_table", "lnld; drop table dpld")

	_, err := Load(v)
	if err == nil {
		t.Fatal("expected invalid table name to be rejected")
	}
	if reportErr, ok := errors.AsReportError(err); !ok || reportErr.Category != errors.CategoryConfiguration {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestAsOf(t *testing.T) {
	now := time.Date(2026, time.October, 14, 8, 0, 0, 0, time.UTC)

	settings := &Settings{}
	got, err := settings.AsOf(now)
	if err != nil || !got.Equal(now) {
		t.Errorf("expected now, got %s (%v)", got, err)
	}

	settings.Report.AsOf = "2026-03-31"
	got, err = settings.AsOf(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Month() != time.March || got.Day() != 31 {
		t.Errorf("unexpected as-of %s", got)
	}
}

func TestLoggerConfig(t *testing.T) {
	settings := &Settings{Log: LogSettings{Level: "DEBUG", Format: "json", File: "/var/log/chequereport.log"}}
	config := settings.LoggerConfig()

	if config.Level != logger.DebugLevel {
		t.Errorf("expected debug level, got %s", config.Level)
	}
	if config.Format != logger.JSONFormat {
		t.Errorf("expected json format, got %s", config.Format)
	}
	if config.Output != logger.FileOutput || config.File != "/var/log/chequereport.log" {
		t.Errorf("expected file output, got %s %s", config.Output, config.File)
	}
}

func TestColorsDisabledForFileOutput(t *testing.T) {
	v := newViper()
	v.Set("report.output_file", "out/")
	settings, err := Load(v)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	config, err := settings.ReportConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.UseColors {
		t.Error("colors should be disabled when writing to a file")
	}
}

func TestOpenSource(t *testing.T) {
	settings, err := Load(newViper())
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	src, closeFn, err := settings.OpenSource(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if _, ok := src.(*source.CSVSource); !ok {
		t.Errorf("expected CSV source, got %T", src)
	}

	settings.Source.Kind = "sql"
	settings.Source.SQL.DSN = filepath.Join(t.TempDir(), "ledgers.db")
	src, closeSQL, err := settings.OpenSource(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeSQL()
	if _, ok := src.(*source.SQLSource); !ok {
		t.Errorf("expected SQL source, got %T", src)
	}
}

func TestSinks(t *testing.T) {
	v := newViper()
	v.Set("smtp.host", "smtp.example.com")
	v.Set("smtp.from", "reports@example.com")
	v.Set("smtp.to", []string{"ops@example.com"})
	settings, err := Load(v)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	sinks, err := settings.Sinks(&bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sinks) != 2 {
		t.Fatalf("expected stdout and email sinks, got %d", len(sinks))
	}
	if sinks[0].Name() != "stdout" {
		t.Errorf("expected stdout sink first, got %s", sinks[0].Name())
	}
	if !strings.HasPrefix(sinks[1].Name(), "email") {
		t.Errorf("expected email sink, got %s", sinks[1].Name())
	}
}

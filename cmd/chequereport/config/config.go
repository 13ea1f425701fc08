// Package config maps viper settings onto the report service configuration.
package config

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cheque-report-service/internal/aggregator"
	"cheque-report-service/internal/period"
	"cheque-report-service/internal/reconciler"
	"cheque-report-service/internal/reporter"
	"cheque-report-service/internal/scheduler"
	"cheque-report-service/internal/source"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// EnvPrefix is prepended to every environment override, e.g. CHEQUEREPORT_SOURCE_KIND
const EnvPrefix = "CHEQUEREPORT"

// ReportSettings controls rendering and delivery
type ReportSettings struct {
	Format                 string                  `mapstructure:"format"`
	OutputFile             string                  `mapstructure:"output_file"`
	AsOf                   string                  `mapstructure:"as_of"`
	ValuePrecision         int                     `mapstructure:"value_precision"`
	IncludeAllGroups       bool                    `mapstructure:"include_all_groups"`
	IncludeProcessingStats bool                    `mapstructure:"include_processing_stats"`
	Colors                 bool                    `mapstructure:"colors"`
	Header                 reconciler.HeaderConfig `mapstructure:"header"`
}

// RankingSettings controls the top-N tables
type RankingSettings struct {
	Top      int    `mapstructure:"top"`
	TieBreak string `mapstructure:"tie_break"`
}

// SourceSettings selects and configures the ledger data source
type SourceSettings struct {
	Kind string           `mapstructure:"kind"`
	CSV  source.CSVConfig `mapstructure:"csv"`
	SQL  source.SQLConfig `mapstructure:"sql"`
}

// LogSettings configures pkg/logger
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Settings is the full application configuration
type Settings struct {
	Report   ReportSettings              `mapstructure:"report"`
	Filter   reconciler.CostCenterFilter `mapstructure:"filter"`
	Ranking  RankingSettings             `mapstructure:"ranking"`
	Source   SourceSettings              `mapstructure:"source"`
	SMTP     reporter.SMTPConfig         `mapstructure:"smtp"`
	Schedule scheduler.Config            `mapstructure:"schedule"`
	Log      LogSettings                 `mapstructure:"log"`
}

// SetDefaults registers every key so env overrides are visible to Unmarshal
func SetDefaults(v *viper.Viper) {
	filter := reconciler.DefaultCostCenterFilter()
	sqlConfig := source.DefaultSQLConfig()
	schedule := scheduler.DefaultConfig()

	v.SetDefault("report.format", string(reporter.FormatConsole))
	v.SetDefault("report.output_file", "")
	v.SetDefault("report.as_of", "")
	v.SetDefault("report.value_precision", 2)
	v.SetDefault("report.include_all_groups", false)
	v.SetDefault("report.include_processing_stats", false)
	v.SetDefault("report.colors", true)
	v.SetDefault("report.header.report_id", reconciler.DefaultReportID)
	v.SetDefault("report.header.organization", reconciler.DefaultOrganization)

	v.SetDefault("filter.min", filter.Min)
	v.SetDefault("filter.max", filter.Max)
	v.SetDefault("filter.excluded", filter.Excluded)

	v.SetDefault("ranking.top", aggregator.DefaultTopN)
	v.SetDefault("ranking.tie_break", string(aggregator.TieBreakEncounter))

	v.SetDefault("source.kind", string(source.KindCSV))
	v.SetDefault("source.csv.dir", ".")
	v.SetDefault("source.csv.disbursement_pattern", source.DefaultDisbursementPattern)
	v.SetDefault("source.csv.loan_ledger_pattern", source.DefaultLoanLedgerPattern)
	v.SetDefault("source.csv.loan_ledger_path", "")
	v.SetDefault("source.sql.driver", sqlConfig.Driver)
	v.SetDefault("source.sql.dsn", sqlConfig.DSN)
	v.SetDefault("source.sql.disbursement_table", sqlConfig.DisbursementTable)
	v.SetDefault("source.sql.loan_ledger_table", sqlConfig.LoanLedgerTable)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.to", []string{})

	v.SetDefault("schedule.cron", schedule.Spec)
	v.SetDefault("schedule.timezone", schedule.TimeZone)

	v.SetDefault("log.level", string(logger.InfoLevel))
	v.SetDefault("log.format", string(logger.TextFormat))
	v.SetDefault("log.file", "")
}

// BindEnv enables CHEQUEREPORT_* overrides for dotted keys
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the settings held by v
func Load(v *viper.Viper) (*Settings, error) {
	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err)
	}
	// Comma-separated env values arrive as a single element
	settings.SMTP.To = splitList(settings.SMTP.To)

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks every section without opening any connection
func (s *Settings) Validate() error {
	if _, err := s.ReconcilerConfig(); err != nil {
		return err
	}
	if _, err := s.ReportConfig(); err != nil {
		return err
	}
	if _, err := source.ParseKind(s.Source.Kind); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "source.kind", s.Source.Kind, err)
	}
	if s.Source.Kind == string(source.KindSQL) {
		if err := s.Source.SQL.Validate(); err != nil {
			return err
		}
	}
	if s.SMTP.Enabled() {
		if err := s.SMTP.Validate(); err != nil {
			return err
		}
	}
	if _, err := s.AsOf(time.Now()); err != nil {
		return err
	}
	return s.LoggerConfig().Validate()
}

// ReconcilerConfig builds the report service configuration
func (s *Settings) ReconcilerConfig() (*reconciler.Config, error) {
	tieBreak, err := aggregator.ParseTieBreak(s.Ranking.TieBreak)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "ranking.tie_break", s.Ranking.TieBreak, err)
	}

	config := reconciler.DefaultConfig()
	config.Filter = s.Filter
	config.TopN = s.Ranking.Top
	config.TieBreak = tieBreak
	config.Header = s.Report.Header

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ReportConfig builds the renderer configuration for the primary output
func (s *Settings) ReportConfig() (*reporter.ReportConfig, error) {
	format, err := reporter.ParseOutputFormat(s.Report.Format)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report.format", s.Report.Format, err)
	}

	config := reporter.DefaultReportConfig()
	config.Format = format
	config.ValuePrecision = s.Report.ValuePrecision
	config.IncludeAllGroups = s.Report.IncludeAllGroups
	config.IncludeProcessingStats = s.Report.IncludeProcessingStats
	config.UseColors = s.Report.Colors && s.Report.OutputFile == ""

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoggerConfig builds the logger configuration
func (s *Settings) LoggerConfig() *logger.Config {
	config := logger.DefaultConfig()
	if s.Log.Level != "" {
		config.Level = logger.Level(strings.ToLower(s.Log.Level))
	}
	if s.Log.Format != "" {
		config.Format = logger.Format(strings.ToLower(s.Log.Format))
	}
	if s.Log.File != "" {
		config.Output = logger.FileOutput
		config.File = s.Log.File
	}
	return config
}

// AsOf returns the configured run date, or now when none is set
func (s *Settings) AsOf(now time.Time) (time.Time, error) {
	asOf, err := period.ParseAsOf(s.Report.AsOf, now.Location())
	if err != nil {
		return time.Time{}, errors.ConfigurationError(errors.CodeInvalidConfig, "report.as_of", s.Report.AsOf, err).
			WithSuggestion("Use the YYYY-MM-DD format, e.g. 2026-10-14")
	}
	if asOf.IsZero() {
		return now, nil
	}
	return asOf, nil
}

// OpenSource builds the configured data source. The returned close function
// is never nil.
func (s *Settings) OpenSource(ctx context.Context) (source.DataSource, func() error, error) {
	noop := func() error { return nil }

	kind, err := source.ParseKind(s.Source.Kind)
	if err != nil {
		return nil, noop, errors.ConfigurationError(errors.CodeInvalidConfig, "source.kind", s.Source.Kind, err)
	}

	switch kind {
	case source.KindSQL:
		src, err := source.OpenSQL(ctx, s.Source.SQL)
		if err != nil {
			return nil, noop, err
		}
		return src, src.Close, nil
	default:
		src, err := source.NewCSVSource(s.Source.CSV)
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil
	}
}

// Sinks builds the delivery targets: the primary output plus email when recipients are set
func (s *Settings) Sinks(stdout io.Writer) ([]reconciler.Sink, error) {
	reportConfig, err := s.ReportConfig()
	if err != nil {
		return nil, err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return nil, err
	}

	var sinks []reconciler.Sink
	if s.Report.OutputFile != "" {
		sinks = append(sinks, reporter.NewFileSink(generator, s.Report.OutputFile))
	} else {
		sinks = append(sinks, reporter.NewWriterSink("stdout", generator, stdout))
	}

	if s.SMTP.Enabled() {
		emailSink, err := reporter.NewEmailSink(s.SMTP)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, emailSink)
	}
	return sinks, nil
}

// String describes the effective source for verbose output
func (s *Settings) String() string {
	switch s.Source.Kind {
	case string(source.KindSQL):
		return fmt.Sprintf("source=sql driver=%s table=%s/%s", s.Source.SQL.Driver,
			s.Source.SQL.DisbursementTable, s.Source.SQL.LoanLedgerTable)
	default:
		return fmt.Sprintf("source=csv dir=%s", s.Source.CSV.Dir)
	}
}

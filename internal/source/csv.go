package source

import (
	"bytes"
	"context"
	"path/filepath"
	"text/template"

	"cheque-report-service/internal/models"
	"cheque-report-service/internal/parsers"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// Default snapshot file name patterns, relative to CSVConfig.Dir
const (
	DefaultDisbursementPattern = "DPLD{{.MonthPadded}}{{.Year}}.csv"
	DefaultLoanLedgerPattern   = "LNLD{{.MonthPadded}}{{.Year}}.csv"
)

// CSVConfig locates the snapshot files of each period
type CSVConfig struct {
	Dir                 string `mapstructure:"dir"`
	DisbursementPattern string `mapstructure:"disbursement_pattern"`
	LoanLedgerPattern   string `mapstructure:"loan_ledger_pattern"`

	// Paths overrides the pattern for individual snapshot kinds
	Paths          map[models.SnapshotKind]string `mapstructure:"-"`
	LoanLedgerPath string                         `mapstructure:"loan_ledger_path"`

	Disbursement *parsers.DisbursementConfig `mapstructure:"-"`
	LoanLedger   *parsers.LoanLedgerConfig   `mapstructure:"-"`
}

// CSVSource reads ledger snapshots from CSV files
type CSVSource struct {
	config             CSVConfig
	disbursementTmpl   *template.Template
	loanLedgerTmpl     *template.Template
	disbursementParser *parsers.DisbursementParser
	loanLedgerParser   *parsers.LoanLedgerParser
	logger             logger.Logger
}

// NewCSVSource validates the path patterns and builds the parsers
func NewCSVSource(config CSVConfig) (*CSVSource, error) {
	if config.DisbursementPattern == "" {
		config.DisbursementPattern = DefaultDisbursementPattern
	}
	if config.LoanLedgerPattern == "" {
		config.LoanLedgerPattern = DefaultLoanLedgerPattern
	}

	disbursementTmpl, err := template.New("disbursement").Option("missingkey=error").Parse(config.DisbursementPattern)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "source.csv.disbursement_pattern", config.DisbursementPattern, err)
	}
	loanLedgerTmpl, err := template.New("loan_ledger").Option("missingkey=error").Parse(config.LoanLedgerPattern)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "source.csv.loan_ledger_pattern", config.LoanLedgerPattern, err)
	}

	disbursementParser, err := parsers.NewDisbursementParser(config.Disbursement)
	if err != nil {
		return nil, err
	}
	loanLedgerParser, err := parsers.NewLoanLedgerParser(config.LoanLedger)
	if err != nil {
		return nil, err
	}

	return &CSVSource{
		config:             config,
		disbursementTmpl:   disbursementTmpl,
		loanLedgerTmpl:     loanLedgerTmpl,
		disbursementParser: disbursementParser,
		loanLedgerParser:   loanLedgerParser,
		logger:             logger.GetGlobalLogger().WithComponent("csv_source"),
	}, nil
}

// DisbursementPath resolves the file holding a disbursement snapshot
func (s *CSVSource) DisbursementPath(period models.Period, kind models.SnapshotKind) (string, error) {
	if path, ok := s.config.Paths[kind]; ok && path != "" {
		return path, nil
	}
	return s.render(s.disbursementTmpl, period.TemplateData(kind))
}

// LoanLedgerPath resolves the file holding the loan ledger
func (s *CSVSource) LoanLedgerPath(period models.Period) (string, error) {
	if s.config.LoanLedgerPath != "" {
		return s.config.LoanLedgerPath, nil
	}
	return s.render(s.loanLedgerTmpl, period.TemplateData(models.SnapshotCurrent))
}

func (s *CSVSource) render(tmpl *template.Template, data models.PeriodTemplateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.ConfigurationError(errors.CodeInvalidConfig, "source.csv."+tmpl.Name()+"_pattern", tmpl.Name(), err)
	}

	path := buf.String()
	if s.config.Dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(s.config.Dir, path)
	}
	return path, nil
}

// Disbursements implements DataSource
func (s *CSVSource) Disbursements(ctx context.Context, period models.Period, kind models.SnapshotKind) ([]*models.DisbursementRecord, error) {
	path, err := s.DisbursementPath(period, kind)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"snapshot": kind,
		"period":   period.String(),
		"path":     path,
	}).Info("Loading disbursement snapshot")

	records, _, err := s.disbursementParser.ParseFile(ctx, path, kind)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LoanLedger implements DataSource
func (s *CSVSource) LoanLedger(ctx context.Context, period models.Period) ([]*models.LoanLedgerRecord, error) {
	path, err := s.LoanLedgerPath(period)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"period": period.String(),
		"path":   path,
	}).Info("Loading loan ledger")

	records, _, err := s.loanLedgerParser.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Package reconciler runs the EIBQEPC1 cheque-issuance pipeline.
//
// A run loads the three disbursement snapshots and the loan ledger from a
// source.DataSource, combines the snapshots, normalizes the ledger, joins
// the two on (account, date, amount), classifies each match and aggregates
// the summary and top tables.
//
// Example usage:
//
//	service, err := reconciler.NewReportService(src, reconciler.DefaultConfig(), nil)
//	request := reconciler.NewReportRequest(time.Now())
//	result, err := service.Generate(ctx, request)
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cheque-report-service/internal/aggregator"
	"cheque-report-service/internal/matcher"
	"cheque-report-service/internal/models"
	"cheque-report-service/internal/period"
	"cheque-report-service/internal/source"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// Report header defaults
const (
	DefaultReportID     = "EIBQEPC1"
	DefaultOrganization = "PUBLIC BANK BERHAD"
	TitlePrefix         = "CHEQUES ISSUED BY THE BANK AS AT "
)

// HeaderConfig overrides the literal header lines
type HeaderConfig struct {
	ReportID     string `json:"report_id" mapstructure:"report_id"`
	Organization string `json:"organization" mapstructure:"organization"`
}

// ReportHeader is the three-line block printed above the tables
type ReportHeader struct {
	ReportID     string `json:"report_id"`
	Organization string `json:"organization"`
	Title        string `json:"title"`
}

// NewReportHeader builds the header for the reporting period
func NewReportHeader(config HeaderConfig, current models.Period) ReportHeader {
	reportID := config.ReportID
	if reportID == "" {
		reportID = DefaultReportID
	}
	organization := config.Organization
	if organization == "" {
		organization = DefaultOrganization
	}

	return ReportHeader{
		ReportID:     reportID,
		Organization: organization,
		Title:        TitlePrefix + current.DisplayDate,
	}
}

// Lines returns the header as printed
func (h ReportHeader) Lines() []string {
	return []string{
		"REPORT ID : " + h.ReportID,
		h.Organization,
		h.Title,
	}
}

// Config holds the options of the report pipeline
type Config struct {
	Filter   CostCenterFilter    `json:"filter" mapstructure:"filter"`
	TopN     int                 `json:"top_n" mapstructure:"top_n"`
	TieBreak aggregator.TieBreak `json:"tie_break" mapstructure:"tie_break"`
	Header   HeaderConfig        `json:"header" mapstructure:"header"`

	// IncludeTransactions keeps the joined rows in the result
	IncludeTransactions bool `json:"include_transactions" mapstructure:"include_transactions"`
}

// DefaultConfig returns the production report configuration
func DefaultConfig() *Config {
	return &Config{
		Filter:   DefaultCostCenterFilter(),
		TopN:     aggregator.DefaultTopN,
		TieBreak: aggregator.TieBreakEncounter,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Filter.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "filter", c.Filter.String(), err)
	}
	if c.TopN <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ranking.top", c.TopN,
			fmt.Errorf("top must be positive, got %d", c.TopN))
	}
	if _, err := aggregator.ParseTieBreak(string(c.TieBreak)); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ranking.tie_break", c.TieBreak, err)
	}
	return nil
}

// ReportRequest names the periods a run covers
type ReportRequest struct {
	AsOf    time.Time               `json:"as_of"`
	Periods models.ReportingPeriods `json:"periods"`
}

// NewReportRequest derives the three reporting periods from the run date
func NewReportRequest(asOf time.Time) *ReportRequest {
	return &ReportRequest{
		AsOf:    asOf,
		Periods: period.Calculate(asOf),
	}
}

// Validate checks that the periods are set and consecutive
func (r *ReportRequest) Validate() error {
	if r.Periods.Current.Start.IsZero() {
		return errors.ValidationError(errors.CodeMissingField, "periods.current", "", nil)
	}
	want := period.Calculate(r.Periods.Current.Start)
	if want.Previous.Label() != r.Periods.Previous.Label() || want.PrePrevious.Label() != r.Periods.PrePrevious.Label() {
		return errors.ValidationError(errors.CodeInvalidData, "periods", r.Periods.Current.Label(),
			fmt.Errorf("previous and pre-previous periods must precede %s", r.Periods.Current.String()))
	}
	return nil
}

// ReportResult contains the complete output of one run
type ReportResult struct {
	RunID      uuid.UUID                `json:"run_id"`
	Header     ReportHeader             `json:"header"`
	Periods    models.ReportingPeriods  `json:"periods"`
	Summary    aggregator.Summary       `json:"summary"`
	TopByCount []aggregator.RankedGroup `json:"top_by_count"`
	TopByValue []aggregator.RankedGroup `json:"top_by_value"`
	AllGroups  []*aggregator.Group      `json:"all_groups"`
	TopN       int                      `json:"top_n"`

	Transactions    []*models.Transaction `json:"transactions,omitempty"`
	ProcessingStats *ProcessingStats      `json:"processing_stats"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

// ProcessingStats counts the rows flowing through each stage
type ProcessingStats struct {
	SnapshotRows   map[models.SnapshotKind]int `json:"snapshot_rows"`
	CombinedRows   int                         `json:"combined_rows"`
	LoanLedgerRows int                         `json:"loan_ledger_rows"`
	Normalize      NormalizeStats              `json:"normalize"`
	Join           matcher.JoinStats           `json:"join"`
	Unclassified   int                         `json:"unclassified"`
	Groups         int                         `json:"groups"`

	Stages        []logger.StageTiming `json:"stages"`
	TotalDuration time.Duration        `json:"total_duration"`
}

// ReportService orchestrates the complete report pipeline
type ReportService struct {
	source     source.DataSource
	config     *Config
	normalizer *LedgerNormalizer
	joiner     *matcher.Joiner
	ranker     *aggregator.Ranker
	clock      period.Clock
	logger     logger.Logger
}

// NewReportService creates a new report service reading from src
func NewReportService(src source.DataSource, config *Config, log logger.Logger) (*ReportService, error) {
	if src == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "source", nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &ReportService{
		source:     src,
		config:     config,
		normalizer: NewLedgerNormalizer(config.Filter, log),
		joiner:     matcher.NewJoiner(log),
		ranker:     aggregator.NewRanker(config.TopN, config.TieBreak),
		clock:      period.SystemClock{},
		logger:     log.WithComponent("report_service"),
	}, nil
}

// WithClock sets the clock used to stamp GeneratedAt
func (rs *ReportService) WithClock(clock period.Clock) *ReportService {
	rs.clock = clock
	return rs
}

// GetConfiguration returns the current configuration
func (rs *ReportService) GetConfiguration() *Config {
	return rs.config
}

// Generate runs every stage for the request. Source failures abort the run;
// the core stages drop or bucket rows instead of failing.
func (rs *ReportService) Generate(ctx context.Context, request *ReportRequest) (*ReportResult, error) {
	if request == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "request", "", nil)
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	log := rs.logger.WithFields(logger.Fields{
		"run_id": runID.String(),
		"period": request.Periods.Current.String(),
	})
	tracker := logger.NewStageTracker("cheque_report", log)

	stats := &ProcessingStats{SnapshotRows: make(map[models.SnapshotKind]int, len(models.SnapshotKinds))}

	datasets, err := rs.load(ctx, tracker, request.Periods, stats)
	if err != nil {
		tracker.Fail(err)
		return nil, err
	}

	transactions, err := rs.process(ctx, tracker, datasets, stats)
	if err != nil {
		tracker.Fail(err)
		return nil, err
	}

	result, err := rs.aggregate(ctx, tracker, transactions, stats)
	if err != nil {
		tracker.Fail(err)
		return nil, err
	}

	stats.TotalDuration = tracker.Complete()
	stats.Stages = tracker.Timings()

	result.RunID = runID
	result.Header = NewReportHeader(rs.config.Header, request.Periods.Current)
	result.Periods = request.Periods
	result.TopN = rs.config.TopN
	result.ProcessingStats = stats
	result.GeneratedAt = rs.clock.Now()
	if rs.config.IncludeTransactions {
		result.Transactions = transactions
	}

	log.WithFields(logger.Fields{
		"number_of_cheques": result.Summary.NumberOfCheques,
		"value_rm000":       result.Summary.ValueOfChequesRM000.String(),
		"groups":            stats.Groups,
		"unclassified":      stats.Unclassified,
	}).Info("Report generated")

	return result, nil
}

// Stage names recorded in ProcessingStats.Stages
const (
	StageLoad      = "load"
	StageCombine   = "combine"
	StageNormalize = "normalize"
	StageJoin      = "join"
	StageClassify  = "classify"
	StageAggregate = "aggregate"
)

// StageNames lists the pipeline stages in execution order
func StageNames() []string {
	return []string{StageLoad, StageCombine, StageNormalize, StageJoin, StageClassify, StageAggregate}
}

// String returns a one-line summary of the stats
func (ps *ProcessingStats) String() string {
	parts := make([]string, 0, len(models.SnapshotKinds))
	for _, kind := range models.SnapshotKinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, ps.SnapshotRows[kind]))
	}
	return fmt.Sprintf("snapshots[%s] combined=%d ledger=%d kept=%d joined=%d unclassified=%d groups=%d",
		strings.Join(parts, " "), ps.CombinedRows, ps.LoanLedgerRows, ps.Normalize.Kept,
		ps.Join.OutputRows, ps.Unclassified, ps.Groups)
}

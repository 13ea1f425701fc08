package reconciler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cheque-report-service/internal/aggregator"
	"cheque-report-service/internal/models"
	"cheque-report-service/internal/period"
	"cheque-report-service/internal/source"
	"cheque-report-service/pkg/errors"
)

var asOf = time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func disb(acct string, date time.Time, amount string, kind models.SnapshotKind) *models.DisbursementRecord {
	return models.NewDisbursementRecord(acct, date, decimal.RequireFromString(amount), kind)
}

func loan(acct string, date time.Time, amount string, code int, feePlan string, costCenter int) *models.LoanLedgerRecord {
	return &models.LoanLedgerRecord{
		AcctNo:   acct,
		TranDt:   date,
		TranAmt:  decimal.RequireFromString(amount),
		TranCode: code,
		FeePlan:  feePlan,
		CostCtr:  costCenter,
	}
}

// fixtureSource holds one month of ledgers exercising every branch of the pipeline
func fixtureSource() *source.MemorySource {
	periods := period.Calculate(asOf)

	return source.NewMemorySource().
		SetDisbursements(periods.Current, models.SnapshotCurrent, []*models.DisbursementRecord{
			disb("A1", day(2026, 10, 3), "1500.00", models.SnapshotCurrent),
			disb("A2", day(2026, 10, 5), "250.50", models.SnapshotCurrent),
		}).
		SetDisbursements(periods.Previous, models.SnapshotPrevious, []*models.DisbursementRecord{
			disb("A3", day(2026, 9, 10), "1000", models.SnapshotPrevious),
			disb("A4", day(2026, 9, 11), "200", models.SnapshotPrevious),
			disb("A5", day(2026, 9, 12), "990.10", models.SnapshotPrevious),
		}).
		SetDisbursements(periods.PrePrevious, models.SnapshotPrePrevious, []*models.DisbursementRecord{
			disb("A6", day(2026, 8, 20), "5000", models.SnapshotPrePrevious),
		}).
		SetLoanLedger(periods.Current, []*models.LoanLedgerRecord{
			loan("A1", day(2026, 10, 3), "1500", 310, "", 3100),
			loan("A2", day(2026, 10, 5), "250.5", 760, "QR", 3200),
			loan("A3", day(2026, 9, 10), "1000.00", 760, "", 3300),
			loan("A4", day(2026, 9, 11), "200", 760, "ZZ", 3400),
			loan("A5", day(2026, 9, 12), "990.1", 999, "", 3500),
			loan("A6", day(2026, 8, 20), "5000", 310, "QR", 3999),
			loan("A1", day(2026, 10, 3), "1500", 310, "", 2999),
			loan("A6", day(2026, 8, 20), "5000", 752, "", 4000),
			loan("A9", day(2026, 10, 1), "10", 310, "", 3500),
			loan("A2", day(2026, 10, 5), "250.50", 753, "", 3600),
		})
}

func newTestService(t *testing.T, src source.DataSource, config *Config) *ReportService {
	t.Helper()
	service, err := NewReportService(src, config, nil)
	require.NoError(t, err)
	return service.WithClock(period.FixedClock{Time: asOf})
}

func labels(rows []aggregator.RankedGroup) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Label())
	}
	return out
}

func TestGenerate(t *testing.T) {
	service := newTestService(t, fixtureSource(), nil)

	result, err := service.Generate(context.Background(), NewReportRequest(asOf))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.RunID)
	assert.Equal(t, asOf, result.GeneratedAt)
	assert.Equal(t, []string{
		"REPORT ID : EIBQEPC1",
		"PUBLIC BANK BERHAD",
		"CHEQUES ISSUED BY THE BANK AS AT 01/10/2026",
	}, result.Header.Lines())

	assert.Equal(t, 7, result.Summary.NumberOfCheques)
	assert.True(t, decimal.RequireFromString("9.1911").Equal(result.Summary.ValueOfChequesRM000),
		"got %s", result.Summary.ValueOfChequesRM000)

	assert.Equal(t, []string{
		"LOAN DISBURSEMENT",
		"UNCLASSIFIED",
		"QUIT RENT",
		"MANUAL FEE ASSESSMENT FOR PAYMENT TO 3RD PARTY",
		"DEBITING FOR LEGAL FEE",
	}, labels(result.TopByCount))

	assert.Equal(t, []string{
		"LOAN DISBURSEMENT",
		"UNCLASSIFIED",
		"MANUAL FEE ASSESSMENT FOR PAYMENT TO 3RD PARTY",
		"QUIT RENT",
		"DEBITING FOR LEGAL FEE",
	}, labels(result.TopByValue))

	for i, row := range result.TopByCount {
		assert.Equal(t, i+1, row.Rank)
	}

	stats := result.ProcessingStats
	assert.Equal(t, 2, stats.SnapshotRows[models.SnapshotCurrent])
	assert.Equal(t, 3, stats.SnapshotRows[models.SnapshotPrevious])
	assert.Equal(t, 1, stats.SnapshotRows[models.SnapshotPrePrevious])
	assert.Equal(t, 6, stats.CombinedRows)
	assert.Equal(t, 10, stats.LoanLedgerRows)
	assert.Equal(t, NormalizeStats{Input: 10, OutOfRange: 2, Excluded: 0, Kept: 8}, stats.Normalize)
	assert.Equal(t, 7, stats.Join.OutputRows)
	assert.Equal(t, 1, stats.Join.UnmatchedLoanRows)
	assert.Equal(t, 2, stats.Unclassified)
	assert.Equal(t, 5, stats.Groups)

	var stages []string
	for _, timing := range stats.Stages {
		stages = append(stages, timing.Stage)
	}
	assert.Equal(t, StageNames(), stages)
	assert.Nil(t, result.Transactions)
}

func TestGenerateSummaryMatchesJoinOutput(t *testing.T) {
	config := DefaultConfig()
	config.IncludeTransactions = true
	service := newTestService(t, fixtureSource(), config)

	result, err := service.Generate(context.Background(), NewReportRequest(asOf))
	require.NoError(t, err)

	assert.Equal(t, len(result.Transactions), result.Summary.NumberOfCheques)

	sum := decimal.Zero
	for _, tx := range result.Transactions {
		sum = sum.Add(tx.AmountThousands)
	}
	assert.True(t, sum.Equal(result.Summary.ValueOfChequesRM000))

	units := 0
	for _, g := range result.AllGroups {
		units += g.Unit
	}
	assert.Equal(t, result.Summary.NumberOfCheques, units)
}

func TestGenerateFilterAndJoinExclusion(t *testing.T) {
	config := DefaultConfig()
	config.IncludeTransactions = true
	service := newTestService(t, fixtureSource(), config)

	result, err := service.Generate(context.Background(), NewReportRequest(asOf))
	require.NoError(t, err)

	for _, tx := range result.Transactions {
		assert.NotEqual(t, 2999, tx.CostCenter)
		assert.NotEqual(t, 4000, tx.CostCenter)
		assert.NotEqual(t, "A9", tx.AccountNumber)
	}
}

func TestGenerateTopLimit(t *testing.T) {
	config := DefaultConfig()
	config.TopN = 3
	service := newTestService(t, fixtureSource(), config)

	result, err := service.Generate(context.Background(), NewReportRequest(asOf))
	require.NoError(t, err)

	assert.Len(t, result.TopByCount, 3)
	assert.Len(t, result.TopByValue, 3)
	assert.Len(t, result.AllGroups, 5)
}

func TestGenerateDescriptionTieBreak(t *testing.T) {
	config := DefaultConfig()
	config.TieBreak = aggregator.TieBreakDescription
	service := newTestService(t, fixtureSource(), config)

	result, err := service.Generate(context.Background(), NewReportRequest(asOf))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"LOAN DISBURSEMENT",
		"UNCLASSIFIED",
		"MANUAL FEE ASSESSMENT FOR PAYMENT TO 3RD PARTY",
		"DEBITING FOR LEGAL FEE",
		"QUIT RENT",
	}, labels(result.TopByValue))
}

func TestGenerateIdempotent(t *testing.T) {
	service := newTestService(t, fixtureSource(), nil)

	render := func() string {
		result, err := service.Generate(context.Background(), NewReportRequest(asOf))
		require.NoError(t, err)

		result.RunID = uuid.Nil
		result.ProcessingStats.Stages = nil
		result.ProcessingStats.TotalDuration = 0

		data, err := json.Marshal(result)
		require.NoError(t, err)
		return string(data)
	}

	assert.Equal(t, render(), render())
}

func TestGenerateEmptyLedger(t *testing.T) {
	periods := period.Calculate(asOf)
	src := source.NewMemorySource().
		SetDisbursements(periods.Current, models.SnapshotCurrent, nil).
		SetDisbursements(periods.Previous, models.SnapshotPrevious, nil).
		SetDisbursements(periods.PrePrevious, models.SnapshotPrePrevious, nil).
		SetLoanLedger(periods.Current, nil)

	result, err := newTestService(t, src, nil).Generate(context.Background(), NewReportRequest(asOf))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Summary.NumberOfCheques)
	assert.True(t, result.Summary.ValueOfChequesRM000.IsZero())
	assert.Empty(t, result.TopByCount)
	assert.Empty(t, result.TopByValue)
}

func TestGenerateSourceFailure(t *testing.T) {
	periods := period.Calculate(asOf)
	src := source.NewMemorySource().
		SetDisbursements(periods.Current, models.SnapshotCurrent, nil)

	_, err := newTestService(t, src, nil).Generate(context.Background(), NewReportRequest(asOf))
	require.Error(t, err)

	reportErr, ok := errors.AsReportError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategorySource, reportErr.Category)
	assert.Equal(t, errors.CodeSnapshotMissing, reportErr.Code)
	assert.Equal(t, 6, reportErr.GetExitCode())
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(t, fixtureSource(), nil).Generate(ctx, NewReportRequest(asOf))
	require.Error(t, err)

	reportErr, ok := errors.AsReportError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeCancelled, reportErr.Code)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, valid: true},
		{name: "zero top", mutate: func(c *Config) { c.TopN = 0 }},
		{name: "bad tie break", mutate: func(c *Config) { c.TieBreak = "random" }},
		{name: "inverted range", mutate: func(c *Config) { c.Filter.Min = 4000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			reportErr, ok := errors.AsReportError(err)
			require.True(t, ok)
			assert.Equal(t, errors.CategoryConfiguration, reportErr.Category)
		})
	}
}

func TestNewReportServiceRequiresSource(t *testing.T) {
	_, err := NewReportService(nil, nil, nil)
	assert.Error(t, err)
}

func TestReportRequestValidate(t *testing.T) {
	request := NewReportRequest(asOf)
	assert.NoError(t, request.Validate())

	request.Periods.Previous = request.Periods.PrePrevious
	assert.Error(t, request.Validate())

	assert.Error(t, (&ReportRequest{}).Validate())
}

func TestNewReportHeader(t *testing.T) {
	current := models.NewPeriod(day(2026, 1, 31))

	header := NewReportHeader(HeaderConfig{}, current)
	assert.Equal(t, "EIBQEPC1", header.ReportID)
	assert.Equal(t, "PUBLIC BANK BERHAD", header.Organization)
	assert.Equal(t, "CHEQUES ISSUED BY THE BANK AS AT 01/01/2026", header.Title)

	header = NewReportHeader(HeaderConfig{ReportID: "EIBQEPC2", Organization: "TEST BANK"}, current)
	assert.Equal(t, "REPORT ID : EIBQEPC2", header.Lines()[0])
	assert.Equal(t, "TEST BANK", header.Lines()[1])
}

package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cheque-report-service/internal/models"
)

var sep5 = time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC)

func disb(acct string, date time.Time, amount string, kind models.SnapshotKind) *models.DisbursementRecord {
	return models.NewDisbursementRecord(acct, date, decimal.RequireFromString(amount), kind)
}

func loan(acct string, date time.Time, amount string, code int) *models.LoanTransaction {
	return &models.LoanTransaction{
		AccountNumber:     acct,
		TransactionDate:   date,
		TransactionAmount: decimal.RequireFromString(amount),
		TransactionCode:   code,
		CostCenter:        3500,
	}
}

func TestJoin_InnerJoin(t *testing.T) {
	ledger := []*models.DisbursementRecord{
		disb("1001", sep5, "100.00", models.SnapshotCurrent),
		disb("1002", sep5, "200.00", models.SnapshotPrevious),
		disb("9999", sep5, "300.00", models.SnapshotPrePrevious),
	}
	loans := []*models.LoanTransaction{
		loan("1002", sep5, "200", 310),
		loan("1001", sep5, "100.0", 750),
		loan("1003", sep5, "100", 310),
	}

	joined, stats := NewJoiner(nil).Join(loans, ledger)

	require.Len(t, joined, 2)
	assert.Equal(t, "1002", joined[0].AccountNumber, "loan order is preserved")
	assert.Equal(t, "1001", joined[1].AccountNumber)
	assert.Same(t, ledger[1], joined[0].Disbursement)
	assert.Equal(t, 750, joined[1].TransactionCode, "loan-side fields are kept")

	assert.Equal(t, JoinStats{
		LoanRows:          3,
		LedgerRows:        3,
		DistinctKeys:      3,
		MatchedLoanRows:   2,
		UnmatchedLoanRows: 1,
		OutputRows:        2,
	}, stats)
}

func TestJoin_KeyFieldsMustAllMatch(t *testing.T) {
	ledger := []*models.DisbursementRecord{disb("1001", sep5, "100", models.SnapshotCurrent)}

	tests := []struct {
		name string
		loan *models.LoanTransaction
	}{
		{"different account", loan("1002", sep5, "100", 310)},
		{"different date", loan("1001", sep5.AddDate(0, 0, 1), "100", 310)},
		{"different amount", loan("1001", sep5, "100.01", 310)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Join([]*models.LoanTransaction{tt.loan}, ledger))
		})
	}
}

func TestJoin_CrossProductOnDuplicateKeys(t *testing.T) {
	ledger := []*models.DisbursementRecord{disb("1001", sep5, "500", models.SnapshotCurrent)}
	loans := []*models.LoanTransaction{
		loan("1001", sep5, "500", 310),
		loan("1001", sep5, "500", 760),
	}

	joined := Join(loans, ledger)
	require.Len(t, joined, 2)
	assert.Equal(t, 310, joined[0].TransactionCode)
	assert.Equal(t, 760, joined[1].TransactionCode)

	// Duplicates on both sides multiply
	ledger = append(ledger, disb("1001", sep5, "500.00", models.SnapshotPrevious))
	joined = Join(loans, ledger)
	require.Len(t, joined, 4)
	assert.Equal(t, models.SnapshotCurrent, joined[0].Disbursement.Snapshot)
	assert.Equal(t, models.SnapshotPrevious, joined[1].Disbursement.Snapshot)
}

func TestJoin_EmptyInputs(t *testing.T) {
	assert.Empty(t, Join(nil, nil))
	assert.Empty(t, Join([]*models.LoanTransaction{loan("1", sep5, "1", 310)}, nil))
	assert.Empty(t, Join(nil, []*models.DisbursementRecord{disb("1", sep5, "1", models.SnapshotCurrent)}))
}

func TestJoin_DerivesThousands(t *testing.T) {
	ledger := []*models.DisbursementRecord{disb("1001", sep5, "2500", models.SnapshotCurrent)}
	joined := Join([]*models.LoanTransaction{loan("1001", sep5, "2500", 310)}, ledger)

	require.Len(t, joined, 1)
	assert.True(t, joined[0].AmountThousands.Equal(decimal.RequireFromString("2.5")))
}

func TestDisbursementIndex(t *testing.T) {
	records := []*models.DisbursementRecord{
		disb("1001", sep5, "100", models.SnapshotCurrent),
		disb("1001", sep5, "100.00", models.SnapshotPrevious),
		disb("1001", sep5.AddDate(0, 0, 3), "50", models.SnapshotPrevious),
		disb("2002", sep5.AddDate(0, 0, -10), "75", models.SnapshotPrePrevious),
	}
	index := NewDisbursementIndex(records)

	key := models.NewJoinKey("1001", sep5, decimal.NewFromInt(100))
	matches := index.GetByKey(key)
	require.Len(t, matches, 2)
	assert.Same(t, records[0], matches[0])
	assert.Same(t, records[1], matches[1])

	assert.Len(t, index.GetByAccount(" 1001 "), 3)
	assert.Len(t, index.GetByDateRange(sep5, sep5.AddDate(0, 0, 3)), 3)
	assert.Empty(t, index.GetByKey(models.NewJoinKey("3003", sep5, decimal.NewFromInt(1))))

	stats := index.GetIndexStats()
	assert.Equal(t, 4, stats.TotalRecords)
	assert.Equal(t, 3, stats.UniqueKeys)
	assert.Equal(t, 2, stats.UniqueAccounts)
	assert.Equal(t, 1, stats.DuplicateKeys)
	assert.Equal(t, 2, stats.RecordsBySnapshot[models.SnapshotPrevious])
}

// Package source supplies the four ledger datasets of a report run.
package source

import (
	"context"
	"fmt"

	"cheque-report-service/internal/models"
	"cheque-report-service/pkg/errors"
)

// DataSource loads disbursement snapshots and the loan ledger for a period
type DataSource interface {
	// Disbursements returns the disbursement-ledger snapshot of the given kind for period
	Disbursements(ctx context.Context, period models.Period, kind models.SnapshotKind) ([]*models.DisbursementRecord, error)

	// LoanLedger returns the loan-ledger postings for period
	LoanLedger(ctx context.Context, period models.Period) ([]*models.LoanLedgerRecord, error)
}

// Kind names a DataSource implementation in configuration
type Kind string

const (
	KindCSV Kind = "csv"
	KindSQL Kind = "sql"
)

// ParseKind parses a data source kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCSV, KindSQL:
		return Kind(s), nil
	case "":
		return KindCSV, nil
	default:
		return "", fmt.Errorf("unknown data source '%s': must be csv or sql", s)
	}
}

// MemorySource serves datasets held in memory, keyed by period label
type MemorySource struct {
	disbursements map[string][]*models.DisbursementRecord
	loans         map[string][]*models.LoanLedgerRecord
}

// NewMemorySource creates an empty MemorySource
func NewMemorySource() *MemorySource {
	return &MemorySource{
		disbursements: make(map[string][]*models.DisbursementRecord),
		loans:         make(map[string][]*models.LoanLedgerRecord),
	}
}

func snapshotKey(period models.Period, kind models.SnapshotKind) string {
	return period.Label() + "/" + kind.String()
}

// SetDisbursements stores the snapshot of the given kind for period
func (m *MemorySource) SetDisbursements(period models.Period, kind models.SnapshotKind, records []*models.DisbursementRecord) *MemorySource {
	m.disbursements[snapshotKey(period, kind)] = records
	return m
}

// SetLoanLedger stores the loan ledger for period
func (m *MemorySource) SetLoanLedger(period models.Period, records []*models.LoanLedgerRecord) *MemorySource {
	m.loans[period.Label()] = records
	return m
}

// Disbursements implements DataSource
func (m *MemorySource) Disbursements(ctx context.Context, period models.Period, kind models.SnapshotKind) ([]*models.DisbursementRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "disbursement load", err)
	}
	records, ok := m.disbursements[snapshotKey(period, kind)]
	if !ok {
		return nil, errors.SourceError(errors.CodeSnapshotMissing, datasetName("disbursement ledger", period, kind), nil)
	}
	return records, nil
}

// LoanLedger implements DataSource
func (m *MemorySource) LoanLedger(ctx context.Context, period models.Period) ([]*models.LoanLedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "loan ledger load", err)
	}
	records, ok := m.loans[period.Label()]
	if !ok {
		return nil, errors.SourceError(errors.CodeSnapshotMissing, datasetName("loan ledger", period, ""), nil)
	}
	return records, nil
}

func datasetName(name string, period models.Period, kind models.SnapshotKind) string {
	if kind == "" {
		return fmt.Sprintf("%s %02d/%d", name, period.Month, period.Year)
	}
	return fmt.Sprintf("%s %02d/%d (%s)", name, period.Month, period.Year, kind)
}

package reconciler

import (
	"fmt"
	"sort"

	"cheque-report-service/internal/models"
	"cheque-report-service/pkg/logger"
)

// CombineSnapshots concatenates the three disbursement snapshots in order:
// current, then previous, then pre-previous. Rows are neither deduplicated nor reordered.
func CombineSnapshots(current, previous, prePrevious []*models.DisbursementRecord) []*models.DisbursementRecord {
	combined := make([]*models.DisbursementRecord, 0, len(current)+len(previous)+len(prePrevious))
	combined = append(combined, current...)
	combined = append(combined, previous...)
	combined = append(combined, prePrevious...)
	return combined
}

// CostCenterFilter scopes loan-ledger rows to the cheque-issuing business units.
// A row is kept when Min <= cost center <= Max and the cost center is not in Excluded.
type CostCenterFilter struct {
	Min      int   `json:"min" mapstructure:"min"`
	Max      int   `json:"max" mapstructure:"max"`
	Excluded []int `json:"excluded" mapstructure:"excluded"`
}

// DefaultCostCenterFilter returns the teller cost-center range 3000-3999 without 4043 and 4048
func DefaultCostCenterFilter() CostCenterFilter {
	return CostCenterFilter{
		Min:      3000,
		Max:      3999,
		Excluded: []int{4043, 4048},
	}
}

// Validate checks that the range is well formed
func (f CostCenterFilter) Validate() error {
	if f.Min > f.Max {
		return fmt.Errorf("cost center minimum %d is greater than maximum %d", f.Min, f.Max)
	}
	return nil
}

// InRange reports whether the cost center passes the range check
func (f CostCenterFilter) InRange(costCenter int) bool {
	return costCenter >= f.Min && costCenter <= f.Max
}

// IsExcluded reports whether the cost center is on the exclusion list
func (f CostCenterFilter) IsExcluded(costCenter int) bool {
	for _, excluded := range f.Excluded {
		if costCenter == excluded {
			return true
		}
	}
	return false
}

// String returns a string representation of the filter
func (f CostCenterFilter) String() string {
	excluded := append([]int(nil), f.Excluded...)
	sort.Ints(excluded)
	return fmt.Sprintf("[%d,%d] excluding %v", f.Min, f.Max, excluded)
}

// NormalizeStats counts what the ledger normalizer kept and dropped
type NormalizeStats struct {
	Input      int `json:"input"`
	OutOfRange int `json:"out_of_range"`
	Excluded   int `json:"excluded"`
	Kept       int `json:"kept"`
}

// LedgerNormalizer renames loan-ledger rows to the join field names and applies the cost-center scope
type LedgerNormalizer struct {
	filter CostCenterFilter
	logger logger.Logger
}

// NewLedgerNormalizer creates a normalizer with the given cost-center filter
func NewLedgerNormalizer(filter CostCenterFilter, log logger.Logger) *LedgerNormalizer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &LedgerNormalizer{
		filter: filter,
		logger: log.WithComponent("ledger_normalizer"),
	}
}

// Normalize renames every row, then runs the range check followed by the exclusion check.
// Both checks always run even though the default exclusions lie outside the default range.
func (ln *LedgerNormalizer) Normalize(rows []*models.LoanLedgerRecord) ([]*models.LoanTransaction, NormalizeStats) {
	stats := NormalizeStats{Input: len(rows)}

	renamed := make([]*models.LoanTransaction, 0, len(rows))
	for _, row := range rows {
		renamed = append(renamed, models.NewLoanTransaction(row))
	}

	inRange := make([]*models.LoanTransaction, 0, len(renamed))
	for _, lt := range renamed {
		if !ln.filter.InRange(lt.CostCenter) {
			stats.OutOfRange++
			ln.logDropped(lt, "out_of_range")
			continue
		}
		inRange = append(inRange, lt)
	}

	kept := make([]*models.LoanTransaction, 0, len(inRange))
	for _, lt := range inRange {
		if ln.filter.IsExcluded(lt.CostCenter) {
			stats.Excluded++
			ln.logDropped(lt, "excluded")
			continue
		}
		kept = append(kept, lt)
	}
	stats.Kept = len(kept)

	ln.logger.WithFields(logger.Fields{
		"input":        stats.Input,
		"out_of_range": stats.OutOfRange,
		"excluded":     stats.Excluded,
		"kept":         stats.Kept,
		"filter":       ln.filter.String(),
	}).Info("Loan ledger normalized")

	return kept, stats
}

func (ln *LedgerNormalizer) logDropped(lt *models.LoanTransaction, reason string) {
	ln.logger.WithFields(logger.Fields{
		"account":     lt.AccountNumber,
		"cost_center": lt.CostCenter,
		"reason":      reason,
	}).Debug("Dropped loan ledger row")
}

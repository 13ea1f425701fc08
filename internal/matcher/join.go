// Package matcher joins normalized loan-ledger rows against the combined disbursement ledger.
package matcher

import (
	"cheque-report-service/internal/models"
	"cheque-report-service/pkg/logger"
)

// JoinStats summarizes one join run
type JoinStats struct {
	LoanRows          int `json:"loan_rows"`
	LedgerRows        int `json:"ledger_rows"`
	DistinctKeys      int `json:"distinct_keys"`
	MatchedLoanRows   int `json:"matched_loan_rows"`
	UnmatchedLoanRows int `json:"unmatched_loan_rows"`
	OutputRows        int `json:"output_rows"`
}

// Joiner performs the inner equi-join on (account number, transaction date, transaction amount)
type Joiner struct {
	logger logger.Logger
}

// NewJoiner creates a new Joiner
func NewJoiner(log logger.Logger) *Joiner {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Joiner{logger: log.WithComponent("joiner")}
}

// Join emits, for each loan row in order, one transaction per matching ledger row in ledger order.
// Duplicate keys on either side produce the full cross product; unmatched rows are dropped.
func (j *Joiner) Join(loans []*models.LoanTransaction, ledger []*models.DisbursementRecord) ([]*models.Transaction, JoinStats) {
	index := NewDisbursementIndex(ledger)

	stats := JoinStats{
		LoanRows:     len(loans),
		LedgerRows:   len(ledger),
		DistinctKeys: len(index.KeyIndex),
	}

	joined := make([]*models.Transaction, 0, len(loans))
	for _, loan := range loans {
		matches := index.GetByKey(loan.Key())
		if len(matches) == 0 {
			stats.UnmatchedLoanRows++
			j.logger.WithFields(logger.Fields{
				"key": loan.Key().String(),
			}).Debug("No disbursement match for loan row")
			continue
		}

		stats.MatchedLoanRows++
		for _, disbursement := range matches {
			joined = append(joined, models.NewTransaction(loan, disbursement))
		}
	}
	stats.OutputRows = len(joined)

	j.logger.WithFields(logger.Fields{
		"loan_rows":      stats.LoanRows,
		"ledger_rows":    stats.LedgerRows,
		"matched_rows":   stats.MatchedLoanRows,
		"unmatched_rows": stats.UnmatchedLoanRows,
		"output_rows":    stats.OutputRows,
	}).Info("Join completed")

	return joined, stats
}

// Join runs the inner equi-join with the global logger
func Join(loans []*models.LoanTransaction, ledger []*models.DisbursementRecord) []*models.Transaction {
	joined, _ := NewJoiner(nil).Join(loans, ledger)
	return joined
}

// Package classifier resolves transaction descriptions from the transaction code
// and, for manual fee assessments, the fee plan code.
package classifier

import (
	"cheque-report-service/internal/models"
)

// ManualFeeAssessmentCode is the transaction code whose description comes from the fee plan
const ManualFeeAssessmentCode = 760

// UnclassifiedLabel names the group of transactions without a description in rendered reports
const UnclassifiedLabel = "UNCLASSIFIED"

var transactionCodes = map[int]string{
	310: "LOAN DISBURSEMENT",
	750: "PRINCIPAL INCREASE (PROGRESSIVE LOAN RELEASE)",
	752: "DEBITING FOR INSURANCE PREMIUM",
	753: "DEBITING FOR LEGAL FEE",
	754: "DEBITING FOR OTHER PAYMENTS",
	760: "MANUAL FEE ASSESSMENT FOR PAYMENT TO 3RD PARTY",
}

var feePlanCodes = map[string]string{
	"QR": "QUIT RENT",
	"LF": "LEGAL FEE & DISBURSEMENT",
	"VA": "VALUATION FEE",
	"IP": "INSURANCE PREMIUM",
	"PA": "PROFESSIONAL/OTHERS",
	"AC": "ADVERTISEMENT FEE",
	"MC": "MAINTENANCE CHARGES",
	"RE": "REPOSSESSION CHARGES",
	"RI": "REPAIR CHARGES",
	"SC": "STORAGE CHARGES",
	"SF": "SEARCH FEE",
	"TC": "TOWING CHARGES",
	"99": "MISCELLANEOUS EXPENSES",
}

// TransactionCode looks up a transaction code description
func TransactionCode(code int) (string, bool) {
	label, ok := transactionCodes[code]
	return label, ok
}

// FeePlanCode looks up a fee plan description. Codes are matched exactly.
func FeePlanCode(code string) (string, bool) {
	label, ok := feePlanCodes[code]
	return label, ok
}

// TransactionCodes returns a copy of the transaction code table
func TransactionCodes() map[int]string {
	out := make(map[int]string, len(transactionCodes))
	for k, v := range transactionCodes {
		out[k] = v
	}
	return out
}

// FeePlanCodes returns a copy of the fee plan table
func FeePlanCodes() map[string]string {
	out := make(map[string]string, len(feePlanCodes))
	for k, v := range feePlanCodes {
		out[k] = v
	}
	return out
}

// Resolve returns the description for a transaction in two steps.
// The transaction code lookup gives the default. For code 760 with a fee plan present,
// the fee plan lookup replaces it, even when the fee plan is unknown.
func Resolve(code int, feePlan string) models.Classification {
	result := lookupCode(code)
	if code == ManualFeeAssessmentCode && feePlan != "" {
		result = lookupFeePlan(feePlan)
	}
	return result
}

func lookupCode(code int) models.Classification {
	if label, ok := TransactionCode(code); ok {
		return models.Classified(label)
	}
	return models.Unclassified()
}

func lookupFeePlan(feePlan string) models.Classification {
	if label, ok := FeePlanCode(feePlan); ok {
		return models.Classified(label)
	}
	return models.Unclassified()
}

// Classify sets the description of every transaction and returns how many stayed unclassified
func Classify(transactions []*models.Transaction) int {
	unclassified := 0
	for _, tx := range transactions {
		tx.Description = Resolve(tx.TransactionCode, tx.FeePlanCode)
		if !tx.Description.Classified {
			unclassified++
		}
	}
	return unclassified
}

// Label returns the display label of a classification
func Label(c models.Classification) string {
	if !c.Classified {
		return UnclassifiedLabel
	}
	return c.Label
}

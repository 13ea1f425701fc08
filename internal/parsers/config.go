package parsers

import (
	"fmt"
	"strings"
)

// Standard field names that column aliases are keyed by
const (
	FieldAccount    = "account_number"
	FieldDate       = "transaction_date"
	FieldAmount     = "transaction_amount"
	FieldCode       = "transaction_code"
	FieldFeePlan    = "fee_plan_code"
	FieldCostCenter = "cost_center"
)

// DisbursementConfig holds configuration for parsing disbursement-ledger snapshots
type DisbursementConfig struct {
	AccountColumn string            `json:"account_column" mapstructure:"account_column"`
	DateColumn    string            `json:"date_column" mapstructure:"date_column"`
	AmountColumn  string            `json:"amount_column" mapstructure:"amount_column"`
	HasHeader     bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter     rune              `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultDisbursementConfig returns the column layout of the DPLD extracts
func DefaultDisbursementConfig() *DisbursementConfig {
	return &DisbursementConfig{
		AccountColumn: "acctno",
		DateColumn:    "trandt",
		AmountColumn:  "tranamt",
		HasHeader:     true,
		Delimiter:     ',',
		ColumnAliases: make(map[string]string),
	}
}

// Validate checks if the disbursement parser configuration is valid
func (c *DisbursementConfig) Validate() error {
	if strings.TrimSpace(c.AccountColumn) == "" {
		return fmt.Errorf("account column cannot be empty")
	}
	if strings.TrimSpace(c.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	return nil
}

// ColumnName returns the actual column name, checking aliases first
func (c *DisbursementConfig) ColumnName(field string) string {
	if alias, ok := c.ColumnAliases[field]; ok {
		return alias
	}

	switch field {
	case FieldAccount:
		return c.AccountColumn
	case FieldDate:
		return c.DateColumn
	case FieldAmount:
		return c.AmountColumn
	default:
		return field
	}
}

// LoanLedgerConfig holds configuration for parsing loan-ledger extracts
type LoanLedgerConfig struct {
	AccountColumn    string            `json:"account_column" mapstructure:"account_column"`
	DateColumn       string            `json:"date_column" mapstructure:"date_column"`
	AmountColumn     string            `json:"amount_column" mapstructure:"amount_column"`
	CodeColumn       string            `json:"code_column" mapstructure:"code_column"`
	FeePlanColumn    string            `json:"fee_plan_column" mapstructure:"fee_plan_column"`
	CostCenterColumn string            `json:"cost_center_column" mapstructure:"cost_center_column"`
	HasHeader        bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter        rune              `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases    map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultLoanLedgerConfig returns the column layout of the LNLD extracts
func DefaultLoanLedgerConfig() *LoanLedgerConfig {
	return &LoanLedgerConfig{
		AccountColumn:    "ACCTNO",
		DateColumn:       "TRANDT",
		AmountColumn:     "TRANAMT",
		CodeColumn:       "TRANCODE",
		FeePlanColumn:    "FEEPLAN",
		CostCenterColumn: "COSTCTR",
		HasHeader:        true,
		Delimiter:        ',',
		ColumnAliases:    make(map[string]string),
	}
}

// Validate checks if the loan-ledger parser configuration is valid
func (c *LoanLedgerConfig) Validate() error {
	required := map[string]string{
		"account":     c.AccountColumn,
		"date":        c.DateColumn,
		"amount":      c.AmountColumn,
		"code":        c.CodeColumn,
		"cost center": c.CostCenterColumn,
	}
	for _, name := range []string{"account", "date", "amount", "code", "cost center"} {
		if strings.TrimSpace(required[name]) == "" {
			return fmt.Errorf("%s column cannot be empty", name)
		}
	}
	return nil
}

// ColumnName returns the actual column name, checking aliases first
func (c *LoanLedgerConfig) ColumnName(field string) string {
	if alias, ok := c.ColumnAliases[field]; ok {
		return alias
	}

	switch field {
	case FieldAccount:
		return c.AccountColumn
	case FieldDate:
		return c.DateColumn
	case FieldAmount:
		return c.AmountColumn
	case FieldCode:
		return c.CodeColumn
	case FieldFeePlan:
		return c.FeePlanColumn
	case FieldCostCenter:
		return c.CostCenterColumn
	default:
		return field
	}
}

// missingValues are the placeholders ledger extracts use for an empty cell
var missingValues = map[string]bool{
	"":     true,
	".":    true,
	"nan":  true,
	"null": true,
}

// absentFeePlans are the cell values a dataframe export writes for NA. They
// match exactly: a dotted or padded fee plan is a real code that no table knows.
var absentFeePlans = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"<NA>": true,
	"#N/A": true,
	"NaN":  true,
	"nan":  true,
	"-NaN": true,
	"-nan": true,
	"NULL": true,
	"null": true,
	"None": true,
}

// isMissing reports whether a cell value stands for an absent value
func isMissing(value string) bool {
	return missingValues[strings.ToLower(strings.TrimSpace(value))]
}

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar date layout used in keys and serialized output
const DateLayout = "2006-01-02"

// SnapshotKind identifies which monthly disbursement-ledger snapshot a row came from
type SnapshotKind string

const (
	// SnapshotCurrent is the snapshot for the reporting month
	SnapshotCurrent SnapshotKind = "current"
	// SnapshotPrevious is the snapshot for the month before the reporting month
	SnapshotPrevious SnapshotKind = "previous"
	// SnapshotPrePrevious is the snapshot for two months before the reporting month
	SnapshotPrePrevious SnapshotKind = "pre_previous"
)

// SnapshotKinds lists the snapshot kinds in combination order
var SnapshotKinds = []SnapshotKind{SnapshotCurrent, SnapshotPrevious, SnapshotPrePrevious}

// String returns the string representation of SnapshotKind
func (k SnapshotKind) String() string {
	return string(k)
}

// IsValid checks if the snapshot kind is one of the known kinds
func (k SnapshotKind) IsValid() bool {
	for _, known := range SnapshotKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseSnapshotKind parses a snapshot kind from a string
func ParseSnapshotKind(s string) (SnapshotKind, error) {
	k := SnapshotKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("invalid snapshot kind '%s': must be current, previous or pre_previous", s)
	}
	return k, nil
}

// DisbursementRecord represents one row of a disbursement-ledger (DPLD) snapshot
type DisbursementRecord struct {
	AccountNumber     string            `json:"acctno" csv:"acctno"`
	TransactionDate   time.Time         `json:"trandt" csv:"trandt"`
	TransactionAmount decimal.Decimal   `json:"tranamt" csv:"tranamt"`
	Snapshot          SnapshotKind      `json:"snapshot" csv:"-"`
	Attributes        map[string]string `json:"attributes,omitempty" csv:"-"`
}

// NewDisbursementRecord creates a new DisbursementRecord instance
func NewDisbursementRecord(account string, date time.Time, amount decimal.Decimal, kind SnapshotKind) *DisbursementRecord {
	return &DisbursementRecord{
		AccountNumber:     NormalizeAccountNumber(account),
		TransactionDate:   TruncateToDate(date),
		TransactionAmount: amount,
		Snapshot:          kind,
	}
}

// Key returns the composite join key of the record
func (d *DisbursementRecord) Key() JoinKey {
	return NewJoinKey(d.AccountNumber, d.TransactionDate, d.TransactionAmount)
}

// Validate performs basic validation on the DisbursementRecord
func (d *DisbursementRecord) Validate() error {
	if d.AccountNumber == "" {
		return fmt.Errorf("disbursement account number cannot be empty")
	}
	if d.TransactionDate.IsZero() {
		return fmt.Errorf("disbursement transaction date cannot be zero")
	}
	if d.Snapshot != "" && !d.Snapshot.IsValid() {
		return fmt.Errorf("invalid snapshot kind: %s", d.Snapshot)
	}
	return nil
}

// String returns a string representation of the DisbursementRecord
func (d *DisbursementRecord) String() string {
	return fmt.Sprintf("Disbursement{Acct: %s, Date: %s, Amount: %s, Snapshot: %s}",
		d.AccountNumber, d.TransactionDate.Format(DateLayout), d.TransactionAmount.String(), d.Snapshot)
}

// MarshalJSON implements custom JSON marshaling for DisbursementRecord
func (d *DisbursementRecord) MarshalJSON() ([]byte, error) {
	type Alias DisbursementRecord
	return json.Marshal(&struct {
		TransactionDate   string `json:"trandt"`
		TransactionAmount string `json:"tranamt"`
		*Alias
	}{
		TransactionDate:   d.TransactionDate.Format(DateLayout),
		TransactionAmount: d.TransactionAmount.String(),
		Alias:             (*Alias)(d),
	})
}

// LoanLedgerRecord is the loan-ledger (LNLD) row as supplied by the data source.
// Field names mirror the source columns; values are already typed.
type LoanLedgerRecord struct {
	AcctNo   string          `json:"ACCTNO" csv:"ACCTNO"`
	TranDt   time.Time       `json:"TRANDT" csv:"TRANDT"`
	TranAmt  decimal.Decimal `json:"TRANAMT" csv:"TRANAMT"`
	TranCode int             `json:"TRANCODE" csv:"TRANCODE"`
	FeePlan  string          `json:"FEEPLAN,omitempty" csv:"FEEPLAN"`
	CostCtr  int             `json:"COSTCTR" csv:"COSTCTR"`
}

// Validate performs basic validation on the LoanLedgerRecord
func (l *LoanLedgerRecord) Validate() error {
	if strings.TrimSpace(l.AcctNo) == "" {
		return fmt.Errorf("loan ledger account number cannot be empty")
	}
	if l.TranDt.IsZero() {
		return fmt.Errorf("loan ledger transaction date cannot be zero")
	}
	return nil
}

// String returns a string representation of the LoanLedgerRecord
func (l *LoanLedgerRecord) String() string {
	return fmt.Sprintf("LoanLedger{ACCTNO: %s, TRANDT: %s, TRANAMT: %s, TRANCODE: %d, FEEPLAN: %q, COSTCTR: %d}",
		l.AcctNo, l.TranDt.Format(DateLayout), l.TranAmt.String(), l.TranCode, l.FeePlan, l.CostCtr)
}

// LoanTransaction is a loan-ledger row renamed to the canonical join field names
type LoanTransaction struct {
	AccountNumber     string          `json:"account_number"`
	TransactionDate   time.Time       `json:"transaction_date"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	TransactionCode   int             `json:"transaction_code"`
	FeePlanCode       string          `json:"fee_plan_code,omitempty"`
	CostCenter        int             `json:"-"`
}

// NewLoanTransaction renames a raw loan-ledger record into its canonical form
func NewLoanTransaction(raw *LoanLedgerRecord) *LoanTransaction {
	return &LoanTransaction{
		AccountNumber:     NormalizeAccountNumber(raw.AcctNo),
		TransactionDate:   TruncateToDate(raw.TranDt),
		TransactionAmount: raw.TranAmt,
		TransactionCode:   raw.TranCode,
		FeePlanCode:       raw.FeePlan,
		CostCenter:        raw.CostCtr,
	}
}

// Key returns the composite join key of the loan transaction
func (lt *LoanTransaction) Key() JoinKey {
	return NewJoinKey(lt.AccountNumber, lt.TransactionDate, lt.TransactionAmount)
}

// HasFeePlan reports whether a fee plan code is present
func (lt *LoanTransaction) HasFeePlan() bool {
	return lt.FeePlanCode != ""
}

// JoinKey is the composite key shared by both ledgers
type JoinKey struct {
	AccountNumber     string
	TransactionDate   time.Time
	TransactionAmount decimal.Decimal
}

// NewJoinKey builds a JoinKey, dropping the time of day from the date
func NewJoinKey(account string, date time.Time, amount decimal.Decimal) JoinKey {
	return JoinKey{
		AccountNumber:     NormalizeAccountNumber(account),
		TransactionDate:   TruncateToDate(date),
		TransactionAmount: amount,
	}
}

// String returns the canonical map-key form "acct|YYYY-MM-DD|amount".
// decimal.String trims trailing zeros so 100.50 and 100.5 produce the same key.
func (k JoinKey) String() string {
	return k.AccountNumber + "|" + k.TransactionDate.Format(DateLayout) + "|" + k.TransactionAmount.String()
}

// Equals compares two join keys field by field
func (k JoinKey) Equals(other JoinKey) bool {
	return k.AccountNumber == other.AccountNumber &&
		k.TransactionDate.Format(DateLayout) == other.TransactionDate.Format(DateLayout) &&
		k.TransactionAmount.Equal(other.TransactionAmount)
}

// Classification is the resolved description of a transaction.
// Classified is false when no lookup table produced a label.
type Classification struct {
	Label      string `json:"label,omitempty"`
	Classified bool   `json:"classified"`
}

// Classified returns a classification carrying the given label
func Classified(label string) Classification {
	return Classification{Label: label, Classified: true}
}

// Unclassified returns the absent classification
func Unclassified() Classification {
	return Classification{}
}

// Transaction is a joined loan-ledger row, the unit of analysis for reporting
type Transaction struct {
	LoanTransaction
	Disbursement    *DisbursementRecord `json:"disbursement,omitempty"`
	AmountThousands decimal.Decimal     `json:"amount_thousands"`
	Description     Classification      `json:"description"`
}

// NewTransaction joins a loan transaction with a matching disbursement row
func NewTransaction(loan *LoanTransaction, disbursement *DisbursementRecord) *Transaction {
	return &Transaction{
		LoanTransaction: *loan,
		Disbursement:    disbursement,
		AmountThousands: ToThousands(loan.TransactionAmount),
	}
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{Acct: %s, Date: %s, Amount: %s, Code: %d, FeePlan: %q, Desc: %q}",
		t.AccountNumber, t.TransactionDate.Format(DateLayout), t.TransactionAmount.String(),
		t.TransactionCode, t.FeePlanCode, t.Description.Label)
}

// MarshalJSON implements custom JSON marshaling for Transaction
func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		AccountNumber     string              `json:"account_number"`
		TransactionDate   string              `json:"transaction_date"`
		TransactionAmount string              `json:"transaction_amount"`
		TransactionCode   int                 `json:"transaction_code"`
		FeePlanCode       string              `json:"fee_plan_code,omitempty"`
		AmountThousands   string              `json:"amount_thousands"`
		Description       *string             `json:"description"`
		Disbursement      *DisbursementRecord `json:"disbursement,omitempty"`
	}{
		AccountNumber:     t.AccountNumber,
		TransactionDate:   t.TransactionDate.Format(DateLayout),
		TransactionAmount: t.TransactionAmount.String(),
		TransactionCode:   t.TransactionCode,
		FeePlanCode:       t.FeePlanCode,
		AmountThousands:   t.AmountThousands.String(),
		Description:       descriptionPtr(t.Description),
		Disbursement:      t.Disbursement,
	})
}

func descriptionPtr(c Classification) *string {
	if !c.Classified {
		return nil
	}
	label := c.Label
	return &label
}

// ToThousands converts an amount to thousands by an exact decimal shift
func ToThousands(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(-3)
}

// TruncateToDate drops the time of day, keeping the calendar date in its location
func TruncateToDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NormalizeAccountNumber trims surrounding whitespace from an account number
func NormalizeAccountNumber(account string) string {
	return strings.TrimSpace(account)
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Strip currency prefixes and thousand separators
	s = strings.TrimPrefix(strings.TrimPrefix(s, "RM"), "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// dateFormats are tried in order; the SAS DATE9 layout covers ledger extracts
var dateFormats = []string{
	DateLayout,
	"02/01/2006",
	"20060102",
	"02Jan2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDateWithFormats parses a calendar date using the layouts found in ledger extracts
func ParseDateWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	// time.Parse matches month names case-insensitively, so 01OCT2026 passes the DATE9 layout
	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return TruncateToDate(t), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

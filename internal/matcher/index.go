package matcher

import (
	"time"

	"cheque-report-service/internal/models"
)

// DisbursementIndex indexes the combined disbursement ledger by composite join key.
// Rows sharing a key keep their ledger order.
type DisbursementIndex struct {
	// KeyIndex maps JoinKey.String() to the rows with that key
	KeyIndex map[string][]*models.DisbursementRecord

	// AccountIndex maps account numbers to their rows, for diagnostics
	AccountIndex map[string][]*models.DisbursementRecord

	// AllRecords holds all indexed rows in insertion order
	AllRecords []*models.DisbursementRecord
}

// NewDisbursementIndex creates a new index from the combined ledger
func NewDisbursementIndex(records []*models.DisbursementRecord) *DisbursementIndex {
	index := &DisbursementIndex{
		KeyIndex:     make(map[string][]*models.DisbursementRecord),
		AccountIndex: make(map[string][]*models.DisbursementRecord),
		AllRecords:   make([]*models.DisbursementRecord, 0, len(records)),
	}

	for _, record := range records {
		index.Add(record)
	}
	return index
}

// Add appends a row to the index
func (di *DisbursementIndex) Add(record *models.DisbursementRecord) {
	key := record.Key().String()
	di.KeyIndex[key] = append(di.KeyIndex[key], record)
	di.AccountIndex[record.AccountNumber] = append(di.AccountIndex[record.AccountNumber], record)
	di.AllRecords = append(di.AllRecords, record)
}

// GetByKey returns the rows matching the key, in ledger order
func (di *DisbursementIndex) GetByKey(key models.JoinKey) []*models.DisbursementRecord {
	return di.KeyIndex[key.String()]
}

// GetByAccount returns every row for an account number
func (di *DisbursementIndex) GetByAccount(account string) []*models.DisbursementRecord {
	return di.AccountIndex[models.NormalizeAccountNumber(account)]
}

// GetByDateRange returns rows whose transaction date falls within [start, end]
func (di *DisbursementIndex) GetByDateRange(start, end time.Time) []*models.DisbursementRecord {
	start = models.TruncateToDate(start)
	end = models.TruncateToDate(end)

	var result []*models.DisbursementRecord
	for _, record := range di.AllRecords {
		d := record.TransactionDate
		if !d.Before(start) && !d.After(end) {
			result = append(result, record)
		}
	}
	return result
}

// GetIndexStats returns statistics about the index
func (di *DisbursementIndex) GetIndexStats() IndexStats {
	stats := IndexStats{
		TotalRecords:      len(di.AllRecords),
		UniqueKeys:        len(di.KeyIndex),
		UniqueAccounts:    len(di.AccountIndex),
		RecordsBySnapshot: make(map[models.SnapshotKind]int),
	}
	for _, rows := range di.KeyIndex {
		if len(rows) > 1 {
			stats.DuplicateKeys++
		}
	}
	for _, record := range di.AllRecords {
		stats.RecordsBySnapshot[record.Snapshot]++
	}
	return stats
}

// IndexStats contains statistics about index contents
type IndexStats struct {
	TotalRecords      int                         `json:"total_records"`
	UniqueKeys        int                         `json:"unique_keys"`
	UniqueAccounts    int                         `json:"unique_accounts"`
	DuplicateKeys     int                         `json:"duplicate_keys"`
	RecordsBySnapshot map[models.SnapshotKind]int `json:"records_by_snapshot"`
}

package reconciler

import (
	"context"

	"cheque-report-service/internal/aggregator"
	"cheque-report-service/internal/classifier"
	"cheque-report-service/internal/models"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// datasets holds the four inputs of a run
type datasets struct {
	snapshots  map[models.SnapshotKind][]*models.DisbursementRecord
	loanLedger []*models.LoanLedgerRecord
}

// checkContext reports cancellation between stages
func checkContext(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, stage, err)
	}
	return nil
}

// load fetches the three disbursement snapshots and the loan ledger
func (rs *ReportService) load(
	ctx context.Context,
	tracker *logger.StageTracker,
	periods models.ReportingPeriods,
	stats *ProcessingStats,
) (*datasets, error) {

	tracker.Begin(StageLoad)
	if err := checkContext(ctx, StageLoad); err != nil {
		return nil, err
	}

	data := &datasets{snapshots: make(map[models.SnapshotKind][]*models.DisbursementRecord, len(models.SnapshotKinds))}
	rows := 0

	for _, kind := range models.SnapshotKinds {
		records, err := rs.source.Disbursements(ctx, periods.ForSnapshot(kind), kind)
		if err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategorySource, errors.CodeQueryFailed,
				"failed to load "+kind.String()+" disbursement snapshot")
		}
		data.snapshots[kind] = records
		stats.SnapshotRows[kind] = len(records)
		rows += len(records)
	}

	loans, err := rs.source.LoanLedger(ctx, periods.Current)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategorySource, errors.CodeQueryFailed,
			"failed to load loan ledger")
	}
	data.loanLedger = loans
	stats.LoanLedgerRows = len(loans)
	rows += len(loans)

	tracker.Done(rows)
	return data, nil
}

// process combines, normalizes, joins and classifies
func (rs *ReportService) process(
	ctx context.Context,
	tracker *logger.StageTracker,
	data *datasets,
	stats *ProcessingStats,
) ([]*models.Transaction, error) {

	tracker.Begin(StageCombine)
	if err := checkContext(ctx, StageCombine); err != nil {
		return nil, err
	}
	combined := CombineSnapshots(
		data.snapshots[models.SnapshotCurrent],
		data.snapshots[models.SnapshotPrevious],
		data.snapshots[models.SnapshotPrePrevious],
	)
	stats.CombinedRows = len(combined)
	tracker.Done(len(combined))

	tracker.Begin(StageNormalize)
	if err := checkContext(ctx, StageNormalize); err != nil {
		return nil, err
	}
	loans, normalizeStats := rs.normalizer.Normalize(data.loanLedger)
	stats.Normalize = normalizeStats
	tracker.Done(len(loans))

	tracker.Begin(StageJoin)
	if err := checkContext(ctx, StageJoin); err != nil {
		return nil, err
	}
	transactions, joinStats := rs.joiner.Join(loans, combined)
	stats.Join = joinStats
	tracker.Done(len(transactions))

	tracker.Begin(StageClassify)
	if err := checkContext(ctx, StageClassify); err != nil {
		return nil, err
	}
	stats.Unclassified = classifier.Classify(transactions)
	tracker.Done(len(transactions))

	return transactions, nil
}

// aggregate builds the summary and both top tables
func (rs *ReportService) aggregate(
	ctx context.Context,
	tracker *logger.StageTracker,
	transactions []*models.Transaction,
	stats *ProcessingStats,
) (*ReportResult, error) {

	tracker.Begin(StageAggregate)
	if err := checkContext(ctx, StageAggregate); err != nil {
		return nil, err
	}

	groups := aggregator.GroupByDescription(transactions)
	stats.Groups = len(groups)

	result := &ReportResult{
		Summary:    aggregator.Summarize(transactions),
		TopByCount: rs.ranker.ByCount(groups),
		TopByValue: rs.ranker.ByValue(groups),
		AllGroups:  groups,
	}
	tracker.Done(len(groups))

	return result, nil
}

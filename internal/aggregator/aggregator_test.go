package aggregator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cheque-report-service/internal/classifier"
	"cheque-report-service/internal/models"
)

func tx(label string, thousands string) *models.Transaction {
	desc := models.Unclassified()
	if label != "" {
		desc = models.Classified(label)
	}
	return &models.Transaction{
		AmountThousands: decimal.RequireFromString(thousands),
		Description:     desc,
	}
}

func labels(rows []RankedGroup) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Label())
	}
	return out
}

func TestSummarize(t *testing.T) {
	txs := []*models.Transaction{tx("A", "1.5"), tx("B", "0.25"), tx("", "3")}

	s := Summarize(txs)

	assert.Equal(t, 3, s.NumberOfCheques)
	assert.True(t, s.ValueOfChequesRM000.Equal(decimal.RequireFromString("4.75")), "got %s", s.ValueOfChequesRM000)

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.NumberOfCheques)
	assert.True(t, empty.ValueOfChequesRM000.IsZero())
}

func TestGroupByDescription(t *testing.T) {
	txs := []*models.Transaction{
		tx("QUIT RENT", "1"),
		tx("", "2"),
		tx("LOAN DISBURSEMENT", "10"),
		tx("QUIT RENT", "0.5"),
		tx("", "1"),
	}

	groups := GroupByDescription(txs)

	require.Len(t, groups, 3)
	assert.Equal(t, "QUIT RENT", groups[0].Label())
	assert.Equal(t, classifier.UnclassifiedLabel, groups[1].Label())
	assert.Equal(t, "LOAN DISBURSEMENT", groups[2].Label())
	assert.Equal(t, 2, groups[0].Unit)
	assert.True(t, groups[0].Sum.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, 2, groups[1].Unit)

	total := 0
	for _, g := range groups {
		total += g.Unit
	}
	assert.Equal(t, Summarize(txs).NumberOfCheques, total)
}

func TestUnclassifiedDoesNotMergeWithLiteralLabel(t *testing.T) {
	groups := GroupByDescription([]*models.Transaction{tx("", "1"), tx(classifier.UnclassifiedLabel, "1")})
	assert.Len(t, groups, 2)
}

func TestTopByCount(t *testing.T) {
	txs := []*models.Transaction{
		tx("A", "1"),
		tx("B", "1"), tx("B", "1"),
		tx("C", "1"), tx("C", "1"), tx("C", "1"),
		tx("D", "1"), tx("D", "1"),
		tx("E", "100"),
		tx("F", "1"),
		tx("G", "1"), tx("G", "1"), tx("G", "1"), tx("G", "1"),
	}
	groups := GroupByDescription(txs)

	top := TopByCount(groups, 5)

	require.Len(t, top, 5)
	assert.Equal(t, []string{"G", "C", "B", "D", "A"}, labels(top))
	for i, row := range top {
		assert.Equal(t, i+1, row.Rank)
	}
	assert.Equal(t, 4, top[0].Unit)
}

func TestTopByValue(t *testing.T) {
	txs := []*models.Transaction{
		tx("A", "5"),
		tx("B", "20"),
		tx("C", "5"),
		tx("", "7.5"),
	}
	groups := GroupByDescription(txs)

	top := TopByValue(groups, 5)

	require.Len(t, top, 4, "fewer groups than n returns all")
	assert.Equal(t, []string{"B", classifier.UnclassifiedLabel, "A", "C"}, labels(top))
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, 4, top[3].Rank)
}

func TestRankingIsStableAndIndependent(t *testing.T) {
	txs := []*models.Transaction{
		tx("Z", "1"), tx("Z", "1"),
		tx("M", "9"),
		tx("A", "1"), tx("A", "1"),
	}
	groups := GroupByDescription(txs)

	byCount := TopByCount(groups, 5)
	byValue := TopByValue(groups, 5)

	assert.Equal(t, []string{"Z", "A", "M"}, labels(byCount), "ties keep encounter order")
	assert.Equal(t, []string{"M", "Z", "A"}, labels(byValue))
	assert.Equal(t, "Z", groups[0].Label(), "input order is not modified")
}

func TestTieBreakDescription(t *testing.T) {
	txs := []*models.Transaction{
		tx("Z", "1"), tx("Z", "1"),
		tx("M", "9"),
		tx("A", "1"), tx("A", "1"),
	}
	groups := GroupByDescription(txs)

	ranker := NewRanker(5, TieBreakDescription)
	assert.Equal(t, []string{"A", "Z", "M"}, labels(ranker.ByCount(groups)))
}

func TestTopNBoundary(t *testing.T) {
	var txs []*models.Transaction
	for _, l := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		txs = append(txs, tx(l, "1"))
	}
	groups := GroupByDescription(txs)

	assert.Len(t, TopByCount(groups, 5), 5)
	assert.Len(t, TopByValue(groups, 0), DefaultTopN)
	assert.Len(t, NewRanker(3, "").ByValue(groups), 3)
	assert.Empty(t, TopByCount(nil, 5))
}

func TestParseTieBreak(t *testing.T) {
	tests := []struct {
		input   string
		want    TieBreak
		wantErr bool
	}{
		{"", TieBreakEncounter, false},
		{"encounter", TieBreakEncounter, false},
		{" Description ", TieBreakDescription, false},
		{"random", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTieBreak(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Package aggregator computes the report tables from classified transactions.
package aggregator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"cheque-report-service/internal/classifier"
	"cheque-report-service/internal/models"
)

// DefaultTopN is the number of ranked rows kept in each top table
const DefaultTopN = 5

// TieBreak selects how groups with equal sort values are ordered
type TieBreak string

const (
	// TieBreakEncounter keeps the order in which groups were first seen
	TieBreakEncounter TieBreak = "encounter"
	// TieBreakDescription orders tied groups by display label
	TieBreakDescription TieBreak = "description"
)

// ParseTieBreak parses a tie-break policy name; empty means encounter order
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(s))) {
	case "", TieBreakEncounter:
		return TieBreakEncounter, nil
	case TieBreakDescription:
		return TieBreakDescription, nil
	default:
		return "", fmt.Errorf("invalid tie-break policy '%s': must be encounter or description", s)
	}
}

// Summary is the single-bucket total of all cheques
type Summary struct {
	NumberOfCheques     int             `json:"number_of_cheques"`
	ValueOfChequesRM000 decimal.Decimal `json:"value_of_cheques_rm000"`
}

// Summarize counts the transactions and sums their amounts in thousands
func Summarize(transactions []*models.Transaction) Summary {
	sum := decimal.Zero
	for _, tx := range transactions {
		sum = sum.Add(tx.AmountThousands)
	}
	return Summary{
		NumberOfCheques:     len(transactions),
		ValueOfChequesRM000: sum,
	}
}

// Group holds the count and value of the transactions sharing one description
type Group struct {
	Description models.Classification `json:"description"`
	Unit        int                   `json:"unit"`
	Sum         decimal.Decimal       `json:"sum"`
	order       int
}

// Label returns the display label of the group
func (g *Group) Label() string {
	return classifier.Label(g.Description)
}

type groupKey struct {
	classified bool
	label      string
}

// GroupByDescription groups transactions by description in first-encountered order.
// Unclassified transactions form their own group.
func GroupByDescription(transactions []*models.Transaction) []*Group {
	byKey := make(map[groupKey]*Group)
	groups := make([]*Group, 0)

	for _, tx := range transactions {
		key := groupKey{classified: tx.Description.Classified, label: tx.Description.Label}
		g, ok := byKey[key]
		if !ok {
			g = &Group{Description: tx.Description, Sum: decimal.Zero, order: len(groups)}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.Unit++
		g.Sum = g.Sum.Add(tx.AmountThousands)
	}

	return groups
}

// RankedGroup is one row of a top table; Rank starts at 1
type RankedGroup struct {
	Rank int `json:"count"`
	*Group
}

// Ranker orders groups and keeps the top N
type Ranker struct {
	TopN     int
	TieBreak TieBreak
}

// NewRanker creates a ranker; a non-positive topN falls back to DefaultTopN
func NewRanker(topN int, tieBreak TieBreak) *Ranker {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if tieBreak == "" {
		tieBreak = TieBreakEncounter
	}
	return &Ranker{TopN: topN, TieBreak: tieBreak}
}

// ByCount ranks groups by descending transaction count
func (r *Ranker) ByCount(groups []*Group) []RankedGroup {
	return r.rank(groups, func(a, b *Group) int {
		return b.Unit - a.Unit
	})
}

// ByValue ranks groups by descending value in thousands
func (r *Ranker) ByValue(groups []*Group) []RankedGroup {
	return r.rank(groups, func(a, b *Group) int {
		return b.Sum.Cmp(a.Sum)
	})
}

// rank sorts a copy of groups with cmp, breaks ties per policy and numbers the rows
func (r *Ranker) rank(groups []*Group, cmp func(a, b *Group) int) []RankedGroup {
	sorted := make([]*Group, len(groups))
	copy(sorted, groups)

	sort.SliceStable(sorted, func(i, j int) bool {
		if c := cmp(sorted[i], sorted[j]); c != 0 {
			return c < 0
		}
		if r.TieBreak == TieBreakDescription {
			return sorted[i].Label() < sorted[j].Label()
		}
		return sorted[i].order < sorted[j].order
	})

	n := r.TopN
	if n > len(sorted) {
		n = len(sorted)
	}

	ranked := make([]RankedGroup, 0, n)
	for i, g := range sorted[:n] {
		ranked = append(ranked, RankedGroup{Rank: i + 1, Group: g})
	}
	return ranked
}

// TopByCount returns the top n groups by count in encounter tie order
func TopByCount(groups []*Group, n int) []RankedGroup {
	return NewRanker(n, TieBreakEncounter).ByCount(groups)
}

// TopByValue returns the top n groups by value in encounter tie order
func TopByValue(groups []*Group, n int) []RankedGroup {
	return NewRanker(n, TieBreakEncounter).ByValue(groups)
}

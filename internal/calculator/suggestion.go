package calculator

import (
	"sort"

	"github.com/mmynk/posrecon/internal/models"
	"github.com/shopspring/decimal"
)

// Item is an ID with an amount, the input to combination search.
type Item struct {
	ID     string
	Amount decimal.Decimal
}

// ClosestAggregate returns the aggregate whose nett amount is nearest target
// while within tolerance of it, measured against the aggregate amount.
// Ties go to the lower ID. Returns nil when nothing qualifies.
func ClosestAggregate(target decimal.Decimal, aggs []*models.AggregatedTransaction, tolerance float64) *models.AggregatedTransaction {
	var (
		best     *models.AggregatedTransaction
		bestDiff decimal.Decimal
	)
	for _, agg := range aggs {
		diff := AmountDifference(target, agg.NettAmount)
		if PercentOf(diff, agg.NettAmount) > tolerance {
			continue
		}
		if best == nil || diff.LessThan(bestDiff) || (diff.Equal(bestDiff) && agg.ID < best.ID) {
			best, bestDiff = agg, diff
		}
	}
	return best
}

// GreedyCombination picks items nearest to target first and keeps each one
// whose addition leaves the running sum at or below target plus tolerance.
// At most max items are returned (no limit when max <= 0).
func GreedyCombination(target decimal.Decimal, items []Item, tolerance float64, max int) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		di := AmountDifference(sorted[i].Amount, target)
		dj := AmountDifference(sorted[j].Amount, target)
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return sorted[i].ID < sorted[j].ID
	})

	ceiling := target.Add(target.Abs().Mul(decimal.NewFromFloat(tolerance)))
	var (
		picked []Item
		sum    = decimal.Zero
	)
	for _, it := range sorted {
		if max > 0 && len(picked) >= max {
			break
		}
		next := sum.Add(it.Amount)
		if next.LessThanOrEqual(ceiling) {
			picked = append(picked, it)
			sum = next
		}
	}
	return picked
}

// SumItems totals the item amounts.
func SumItems(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Amount)
	}
	return sum
}

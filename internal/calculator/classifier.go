package calculator

import (
	"math"
	"strings"

	"github.com/mmynk/posrecon/internal/models"
	"github.com/shopspring/decimal"
)

// Fixed scores for the non-fuzzy tiers.
const (
	ScoreExactRef        = 100
	ScoreExactAmountDate = 95
	ScoreAmountOnly      = 50
)

// Classification is the outcome of comparing one statement with one aggregate.
type Classification struct {
	Criteria          models.MatchCriteria `json:"matchCriteria"`
	Score             float64              `json:"matchScore"`
	AmountDifference  decimal.Decimal      `json:"amountDifference"`
	PercentDifference float64              `json:"percentDifference"`
	DayDifference     int                  `json:"dateDifferenceDays"`
}

// Better reports whether c should be preferred over other: stronger criteria,
// then higher score, then smaller amount difference, then fewer days apart.
func (c *Classification) Better(other *Classification) bool {
	if other == nil {
		return true
	}
	if c.Criteria.Rank() != other.Criteria.Rank() {
		return c.Criteria.Outranks(other.Criteria)
	}
	if c.Score != other.Score {
		return c.Score > other.Score
	}
	if cmp := c.AmountDifference.Cmp(other.AmountDifference); cmp != 0 {
		return cmp < 0
	}
	return c.DayDifference < other.DayDifference
}

// Classify assigns the strongest satisfied criteria to the pair, or returns
// nil when none applies. Tiers are tried in rank order and the first hit wins.
func Classify(stmt *models.BankStatement, agg *models.AggregatedTransaction, c MatchingCriteria) *Classification {
	net := stmt.NetAmount()
	result := &Classification{
		AmountDifference:  AmountDifference(net, agg.NettAmount),
		PercentDifference: PercentDifference(net, agg.NettAmount),
		DayDifference:     DayDifference(stmt.TransactionDate, agg.TransactionDate),
	}

	switch {
	case referencesEqual(stmt.ReferenceNumber, agg.ReferenceNumber):
		result.Criteria = models.CriteriaExactRef
		result.Score = ScoreExactRef
	case AmountsEqual(net, agg.NettAmount, c.CurrencyScale) && result.DayDifference == 0:
		result.Criteria = models.CriteriaExactAmountDate
		result.Score = ScoreExactAmountDate
	case IsWithinAmountTolerance(net, agg.NettAmount, c.Tolerance()):
		if IsWithinDateBuffer(stmt.TransactionDate, agg.TransactionDate, c.DateBufferDays) {
			result.Criteria = models.CriteriaFuzzyAmountDate
			result.Score = FuzzyScore(result.PercentDifference, result.DayDifference, c.MinFuzzyScore)
		} else {
			result.Criteria = models.CriteriaAmountOnly
			result.Score = ScoreAmountOnly
		}
	default:
		return nil
	}
	return result
}

// FuzzyScore is 100 - (pct*100 + days*5), clamped to [minScore, 94] and
// rounded to two decimals.
func FuzzyScore(pct float64, days int, minScore int) float64 {
	score := 100 - (pct*100 + float64(days)*5)
	score = math.Min(score, maxFuzzyScore)
	score = math.Max(score, float64(minScore))
	return math.Round(score*100) / 100
}

func referencesEqual(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && b != "" && strings.EqualFold(a, b)
}

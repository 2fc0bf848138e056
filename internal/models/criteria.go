package models

// MatchCriteria tags why a statement was paired with an aggregate.
// The tags form a total order used to break ties between candidates.
type MatchCriteria string

const (
	// CriteriaExactRef means both records carry the same reference number.
	CriteriaExactRef MatchCriteria = "EXACT_REF"
	// CriteriaExactAmountDate means equal amounts in minor units on the same date.
	CriteriaExactAmountDate MatchCriteria = "EXACT_AMOUNT_DATE"
	// CriteriaFuzzyAmountDate means amount within tolerance and date within the buffer.
	CriteriaFuzzyAmountDate MatchCriteria = "FUZZY_AMOUNT_DATE"
	// CriteriaAmountOnly means amount within tolerance with the date buffer exceeded.
	CriteriaAmountOnly MatchCriteria = "AMOUNT_ONLY"
	// CriteriaManual is recorded on operator-chosen pairings.
	CriteriaManual MatchCriteria = "MANUAL"
)

// Rank returns the tie-break rank of the criteria; higher is stronger.
// Unknown tags rank zero.
func (c MatchCriteria) Rank() int {
	switch c {
	case CriteriaExactRef:
		return 4
	case CriteriaExactAmountDate:
		return 3
	case CriteriaFuzzyAmountDate:
		return 2
	case CriteriaAmountOnly:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether c is a stronger criteria than other.
func (c MatchCriteria) Outranks(other MatchCriteria) bool {
	return c.Rank() > other.Rank()
}

// Valid reports whether c is one of the known tags.
func (c MatchCriteria) Valid() bool {
	return c.Rank() > 0 || c == CriteriaManual
}

package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Engine defaults.
const (
	DefaultAmountTolerance   = 0.0001 // 0.01%
	DefaultDateBufferDays    = 3
	DefaultMinFuzzyScore     = 60
	DefaultCurrencyScale     = 2
	DefaultGroupTolerance    = 0.05
	DefaultMinGroupSize      = 2
	DefaultMaxGroupSize      = 10
	DefaultMaxSettlementSize = 50
	MaxDateBufferDays        = 30

	// maxFuzzyScore keeps fuzzy scores below the exact tiers.
	maxFuzzyScore = 94
)

var (
	// DefaultDifferenceThreshold is the absolute amount accepted for single matches.
	DefaultDifferenceThreshold = decimal.NewFromInt(1000)
	// DefaultSettlementThreshold is the absolute amount accepted for settlement groups.
	DefaultSettlementThreshold = decimal.NewFromInt(100)
)

// MatchingCriteria configures the classifier for one statement/aggregate pair.
type MatchingCriteria struct {
	// AmountTolerance is the accepted percent difference as a fraction.
	AmountTolerance float64 `json:"amountTolerance"`

	// DateBufferDays is the accepted distance in calendar days.
	DateBufferDays int `json:"dateBufferDays"`

	// DifferenceThreshold is the accepted absolute difference in currency units.
	DifferenceThreshold decimal.Decimal `json:"differenceThreshold"`

	// MinFuzzyScore floors FUZZY_AMOUNT_DATE scores.
	MinFuzzyScore int `json:"-"`

	// CurrencyScale is the number of minor-unit digits compared for exact equality.
	CurrencyScale int32 `json:"-"`
}

// DefaultCriteria returns the engine defaults.
func DefaultCriteria() MatchingCriteria {
	return MatchingCriteria{
		AmountTolerance:     DefaultAmountTolerance,
		DateBufferDays:      DefaultDateBufferDays,
		DifferenceThreshold: DefaultDifferenceThreshold,
		MinFuzzyScore:       DefaultMinFuzzyScore,
		CurrencyScale:       DefaultCurrencyScale,
	}
}

// Tolerance returns the amount tolerance these criteria describe.
func (c MatchingCriteria) Tolerance() Tolerance {
	return Tolerance{Absolute: c.DifferenceThreshold, Percent: c.AmountTolerance}
}

// Validate rejects negative limits and oversized date buffers.
func (c MatchingCriteria) Validate() error {
	if c.AmountTolerance < 0 {
		return fmt.Errorf("amountTolerance must not be negative")
	}
	if c.DateBufferDays < 0 || c.DateBufferDays > MaxDateBufferDays {
		return fmt.Errorf("dateBufferDays must be between 0 and %d", MaxDateBufferDays)
	}
	if c.DifferenceThreshold.IsNegative() {
		return fmt.Errorf("differenceThreshold must not be negative")
	}
	if c.MinFuzzyScore < 0 || c.MinFuzzyScore > maxFuzzyScore {
		return fmt.Errorf("minFuzzyScore must be between 0 and %d", maxFuzzyScore)
	}
	return nil
}

// CriteriaOverrides carries the optional per-request criteria fields.
type CriteriaOverrides struct {
	AmountTolerance     *float64         `json:"amountTolerance,omitempty"`
	DateBufferDays      *int             `json:"dateBufferDays,omitempty"`
	DifferenceThreshold *decimal.Decimal `json:"differenceThreshold,omitempty"`
}

// Apply returns base with every set override replaced.
func (o *CriteriaOverrides) Apply(base MatchingCriteria) MatchingCriteria {
	if o == nil {
		return base
	}
	if o.AmountTolerance != nil {
		base.AmountTolerance = *o.AmountTolerance
	}
	if o.DateBufferDays != nil {
		base.DateBufferDays = *o.DateBufferDays
	}
	if o.DifferenceThreshold != nil {
		base.DifferenceThreshold = *o.DifferenceThreshold
	}
	return base
}

// GroupLimits configures multi-match and settlement group validation.
type GroupLimits struct {
	// Tolerance is the accepted percent difference between group sides.
	Tolerance float64

	MinStatements int
	MaxStatements int

	// SettlementThreshold is the absolute difference a settlement accepts
	// regardless of percent.
	SettlementThreshold decimal.Decimal

	MaxAggregates int
}

// DefaultGroupLimits returns the group defaults.
func DefaultGroupLimits() GroupLimits {
	return GroupLimits{
		Tolerance:           DefaultGroupTolerance,
		MinStatements:       DefaultMinGroupSize,
		MaxStatements:       DefaultMaxGroupSize,
		SettlementThreshold: DefaultSettlementThreshold,
		MaxAggregates:       DefaultMaxSettlementSize,
	}
}

// MultiMatchTolerance is the percent-only rule for reconciliation groups.
func (l GroupLimits) MultiMatchTolerance() Tolerance {
	return Tolerance{Absolute: decimal.Zero, Percent: l.Tolerance}
}

// SettlementTolerance accepts a difference within the percent or the absolute threshold.
func (l GroupLimits) SettlementTolerance() Tolerance {
	return Tolerance{Absolute: l.SettlementThreshold, Percent: l.Tolerance}
}

// Validate rejects inconsistent bounds.
func (l GroupLimits) Validate() error {
	if l.Tolerance < 0 {
		return fmt.Errorf("group tolerance must not be negative")
	}
	if l.MinStatements < 1 {
		return fmt.Errorf("min group statements must be at least 1")
	}
	if l.MaxStatements < l.MinStatements {
		return fmt.Errorf("max group statements %d is below min %d", l.MaxStatements, l.MinStatements)
	}
	if l.MaxAggregates < 1 {
		return fmt.Errorf("max settlement aggregates must be at least 1")
	}
	if l.SettlementThreshold.IsNegative() {
		return fmt.Errorf("settlement threshold must not be negative")
	}
	return nil
}

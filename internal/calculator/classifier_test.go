package calculator

import (
	"testing"

	"github.com/mmynk/posrecon/internal/models"
)

func TestClassify(t *testing.T) {
	wide := DefaultCriteria()
	wide.DifferenceThreshold = dec("50000")

	tests := []struct {
		name      string
		stmt      *models.BankStatement
		agg       *models.AggregatedTransaction
		criteria  MatchingCriteria
		wantNil   bool
		wantTag   models.MatchCriteria
		wantScore float64
	}{
		{
			name:      "reference match ignores amount and case",
			stmt:      stmt("s1", "2024-01-05", "100000", "INV001"),
			agg:       agg("a1", "2024-01-20", "1", " inv001 "),
			criteria:  DefaultCriteria(),
			wantTag:   models.CriteriaExactRef,
			wantScore: 100,
		},
		{
			name:      "exact amount and date",
			stmt:      stmt("s1", "2024-01-05", "100000", "INV001"),
			agg:       agg("a1", "2024-01-05", "100000", ""),
			criteria:  DefaultCriteria(),
			wantTag:   models.CriteriaExactAmountDate,
			wantScore: 95,
		},
		{
			name:      "exact below minor unit",
			stmt:      stmt("s1", "2024-01-05", "100000", ""),
			agg:       agg("a1", "2024-01-05", "100000.004", ""),
			criteria:  DefaultCriteria(),
			wantTag:   models.CriteriaExactAmountDate,
			wantScore: 95,
		},
		{
			name:      "negative amounts match exactly",
			stmt:      stmt("s1", "2024-01-05", "-5000", ""),
			agg:       agg("a1", "2024-01-05", "-5000", ""),
			criteria:  DefaultCriteria(),
			wantTag:   models.CriteriaExactAmountDate,
			wantScore: 95,
		},
		{
			name:      "fuzzy with amount and date deviation",
			stmt:      stmt("s1", "2024-01-05", "100000", ""),
			agg:       agg("a1", "2024-01-07", "99500", ""),
			criteria:  DefaultCriteria(),
			wantTag:   models.CriteriaFuzzyAmountDate,
			wantScore: 89.5,
		},
		{
			name:      "fuzzy equal amount different date",
			stmt:      stmt("s1", "2024-01-05", "100000", ""),
			agg:       agg("a1", "2024-01-03", "100000", ""),
			criteria:  DefaultCriteria(),
			wantTag:   models.CriteriaFuzzyAmountDate,
			wantScore: 90,
		},
		{
			name:      "fuzzy capped below exact tiers",
			stmt:      stmt("s1", "2024-01-05", "100000", ""),
			agg:       agg("a1", "2024-01-05", "99999.50", ""),
			criteria:  DefaultCriteria(),
			wantTag:   models.CriteriaFuzzyAmountDate,
			wantScore: 94,
		},
		{
			name:      "fuzzy floored at minimum",
			stmt:      stmt("s1", "2024-01-05", "100000", ""),
			agg:       agg("a1", "2024-01-08", "70000", ""),
			criteria:  wide,
			wantTag:   models.CriteriaFuzzyAmountDate,
			wantScore: 60,
		},
		{
			name:      "amount only past the buffer",
			stmt:      stmt("s1", "2024-01-05", "100000", ""),
			agg:       agg("a1", "2024-01-15", "100000", ""),
			criteria:  DefaultCriteria(),
			wantTag:   models.CriteriaAmountOnly,
			wantScore: 50,
		},
		{
			name:     "no match outside tolerance",
			stmt:     stmt("s1", "2024-01-05", "100000", ""),
			agg:      agg("a1", "2024-01-05", "80000", ""),
			criteria: DefaultCriteria(),
			wantNil:  true,
		},
		{
			name:     "blank references never match",
			stmt:     stmt("s1", "2024-01-05", "100000", "  "),
			agg:      agg("a1", "2024-01-05", "1", "  "),
			criteria: DefaultCriteria(),
			wantNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.stmt, tt.agg, tt.criteria)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected no match, got %s/%v", got.Criteria, got.Score)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a match, got nil")
			}
			if got.Criteria != tt.wantTag {
				t.Errorf("criteria = %s, want %s", got.Criteria, tt.wantTag)
			}
			if got.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", got.Score, tt.wantScore)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	s := stmt("s1", "2024-03-10", "250000", "")
	a := agg("a1", "2024-03-12", "249900", "")
	c := DefaultCriteria()

	first := Classify(s, a, c)
	for i := 0; i < 50; i++ {
		again := Classify(s, a, c)
		if again.Criteria != first.Criteria || again.Score != first.Score {
			t.Fatalf("run %d: got %s/%v, first was %s/%v", i, again.Criteria, again.Score, first.Criteria, first.Score)
		}
	}
}

func TestTierOrdering(t *testing.T) {
	// One pair satisfies every tier; the strongest must win.
	s := stmt("s1", "2024-01-05", "100000", "REF-9")
	a := agg("a1", "2024-01-05", "100000", "REF-9")
	if got := Classify(s, a, DefaultCriteria()); got.Criteria != models.CriteriaExactRef {
		t.Errorf("criteria = %s, want EXACT_REF", got.Criteria)
	}

	a.ReferenceNumber = ""
	if got := Classify(s, a, DefaultCriteria()); got.Criteria != models.CriteriaExactAmountDate {
		t.Errorf("criteria = %s, want EXACT_AMOUNT_DATE", got.Criteria)
	}

	order := []models.MatchCriteria{
		models.CriteriaExactRef,
		models.CriteriaExactAmountDate,
		models.CriteriaFuzzyAmountDate,
		models.CriteriaAmountOnly,
	}
	for i := 0; i < len(order)-1; i++ {
		if !order[i].Outranks(order[i+1]) {
			t.Errorf("%s should outrank %s", order[i], order[i+1])
		}
	}
}

func TestFuzzyScoreMonotonic(t *testing.T) {
	prev := FuzzyScore(0.1, 0, 0)
	for days := 1; days <= 3; days++ {
		got := FuzzyScore(0.1, days, 0)
		if got >= prev {
			t.Errorf("score did not drop with days=%d: %v >= %v", days, got, prev)
		}
		prev = got
	}

	if a, b := FuzzyScore(0.05, 2, 0), FuzzyScore(0.10, 2, 0); a <= b {
		t.Errorf("closer amount should score higher: %v <= %v", a, b)
	}
}

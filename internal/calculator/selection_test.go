package calculator

import (
	"reflect"
	"testing"

	"github.com/mmynk/posrecon/internal/models"
)

func TestSelectMatches(t *testing.T) {
	tests := []struct {
		name          string
		stmts         []*models.BankStatement
		aggs          []*models.AggregatedTransaction
		wantPairs     map[string]string
		wantUnmatched []string
	}{
		{
			name:          "empty input",
			wantPairs:     map[string]string{},
			wantUnmatched: nil,
		},
		{
			name: "equal scores go to the lower statement id",
			stmts: []*models.BankStatement{
				stmt("s2", "2024-01-05", "100000", ""),
				stmt("s1", "2024-01-05", "100000", ""),
			},
			aggs:          []*models.AggregatedTransaction{agg("a1", "2024-01-05", "100000", "")},
			wantPairs:     map[string]string{"s1": "a1"},
			wantUnmatched: []string{"s2"},
		},
		{
			name: "stronger criteria claims first",
			stmts: []*models.BankStatement{
				stmt("s1", "2024-01-05", "100000", ""),
				stmt("s2", "2024-01-09", "5", "TRX-7"),
			},
			aggs:          []*models.AggregatedTransaction{agg("a1", "2024-01-05", "100000", "TRX-7")},
			wantPairs:     map[string]string{"s2": "a1"},
			wantUnmatched: []string{"s1"},
		},
		{
			name: "each statement takes its best candidate",
			stmts: []*models.BankStatement{
				stmt("s1", "2024-01-05", "100000", ""),
				stmt("s2", "2024-01-06", "50000", ""),
			},
			aggs: []*models.AggregatedTransaction{
				agg("a1", "2024-01-06", "100000", ""),
				agg("a2", "2024-01-05", "100000", ""),
				agg("a3", "2024-01-06", "50000", ""),
			},
			wantPairs:     map[string]string{"s1": "a2", "s2": "a3"},
			wantUnmatched: nil,
		},
		{
			name:          "statement without candidates",
			stmts:         []*models.BankStatement{stmt("s1", "2024-01-05", "100000", "")},
			aggs:          []*models.AggregatedTransaction{agg("a1", "2024-01-05", "10", "")},
			wantPairs:     map[string]string{},
			wantUnmatched: []string{"s1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, unmatched := SelectMatches(tt.stmts, tt.aggs, DefaultCriteria())

			got := map[string]string{}
			used := map[string]bool{}
			for _, m := range matches {
				got[m.StatementID] = m.AggregateID
				if used[m.AggregateID] {
					t.Errorf("aggregate %s proposed twice", m.AggregateID)
				}
				used[m.AggregateID] = true
			}
			if !reflect.DeepEqual(got, tt.wantPairs) {
				t.Errorf("pairs = %v, want %v", got, tt.wantPairs)
			}
			if !reflect.DeepEqual(unmatched, tt.wantUnmatched) {
				t.Errorf("unmatched = %v, want %v", unmatched, tt.wantUnmatched)
			}
		})
	}
}

func TestBestCandidateTieBreaksOnAggregateID(t *testing.T) {
	s := stmt("s1", "2024-01-05", "100000", "")
	aggs := []*models.AggregatedTransaction{
		agg("a2", "2024-01-05", "100000", ""),
		agg("a1", "2024-01-05", "100000", ""),
	}
	got := BestCandidate(s, aggs, DefaultCriteria())
	if got == nil || got.AggregateID != "a1" {
		t.Fatalf("best = %+v, want a1", got)
	}
}

func TestRankCandidates(t *testing.T) {
	s := stmt("s1", "2024-01-05", "100000", "")
	aggs := []*models.AggregatedTransaction{
		agg("a1", "2024-01-20", "100000", ""), // amount only
		agg("a2", "2024-01-07", "100000", ""), // fuzzy
		agg("a3", "2024-01-05", "100000", ""), // exact
		agg("a4", "2024-01-05", "1", ""),      // none
	}

	got := RankCandidates(s, aggs, DefaultCriteria(), 0)
	var ids []string
	for _, p := range got {
		ids = append(ids, p.AggregateID)
	}
	if want := []string{"a3", "a2", "a1"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}

	if limited := RankCandidates(s, aggs, DefaultCriteria(), 2); len(limited) != 2 {
		t.Errorf("limit 2 returned %d", len(limited))
	}
}

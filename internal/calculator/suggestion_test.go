package calculator

import (
	"testing"

	"github.com/mmynk/posrecon/internal/models"
)

func TestClosestAggregate(t *testing.T) {
	aggs := []*models.AggregatedTransaction{
		agg("a3", "2024-01-05", "99000", ""),
		agg("a2", "2024-01-05", "120000", ""),
		agg("a1", "2024-01-05", "100000", ""),
	}

	got := ClosestAggregate(dec("99500"), aggs, 0.05)
	if got == nil || got.ID != "a1" {
		t.Fatalf("closest = %v, want a1", got)
	}

	if got := ClosestAggregate(dec("10"), aggs, 0.05); got != nil {
		t.Errorf("expected nil, got %s", got.ID)
	}
}

func TestGreedyCombination(t *testing.T) {
	items := []Item{
		{ID: "x1", Amount: dec("60000")},
		{ID: "x2", Amount: dec("39500")},
		{ID: "x3", Amount: dec("50000")},
		{ID: "x4", Amount: dec("5000")},
	}

	tests := []struct {
		name string
		max  int
		want []string
	}{
		{"unbounded", 0, []string{"x1", "x2", "x4"}},
		{"bounded", 2, []string{"x1", "x2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GreedyCombination(dec("100000"), items, 0.05, tt.max)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("item %d = %s, want %s", i, got[i].ID, id)
				}
			}
			if SumItems(got).GreaterThan(dec("105000")) {
				t.Errorf("sum %s exceeds ceiling", SumItems(got))
			}
		})
	}
}

package calculator

import (
	"sort"

	"github.com/mmynk/posrecon/internal/models"
)

// Proposal pairs one statement with the aggregate it should be matched to.
type Proposal struct {
	StatementID string `json:"statementId"`
	AggregateID string `json:"aggregateId"`
	Classification
}

// BestCandidate returns the strongest aggregate for stmt among aggs, or nil.
// Equal classifications fall back to the lower aggregate ID.
func BestCandidate(stmt *models.BankStatement, aggs []*models.AggregatedTransaction, c MatchingCriteria) *Proposal {
	var best *Proposal
	for _, agg := range aggs {
		cls := Classify(stmt, agg, c)
		if cls == nil {
			continue
		}
		if best == nil || cls.Better(&best.Classification) ||
			(!best.Classification.Better(cls) && agg.ID < best.AggregateID) {
			best = &Proposal{StatementID: stmt.ID, AggregateID: agg.ID, Classification: *cls}
		}
	}
	return best
}

// RankCandidates classifies every aggregate against stmt and returns the hits
// best first, at most limit of them (all when limit <= 0).
func RankCandidates(stmt *models.BankStatement, aggs []*models.AggregatedTransaction, c MatchingCriteria, limit int) []Proposal {
	var out []Proposal
	for _, agg := range aggs {
		if cls := Classify(stmt, agg, c); cls != nil {
			out = append(out, Proposal{StatementID: stmt.ID, AggregateID: agg.ID, Classification: *cls})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Better(&out[j].Classification) {
			return true
		}
		if out[j].Better(&out[i].Classification) {
			return false
		}
		return out[i].AggregateID < out[j].AggregateID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SelectMatches runs the greedy one-aggregate-once assignment.
//
// Each statement proposes its best candidate. Proposals are then granted by
// criteria rank and score, equal scores going to the lower statement ID. A statement whose
// aggregate was already granted is left unmatched for this pass. Unmatched IDs
// are returned in ascending order.
func SelectMatches(stmts []*models.BankStatement, aggs []*models.AggregatedTransaction, c MatchingCriteria) (matches []Proposal, unmatched []string) {
	proposals := make([]Proposal, 0, len(stmts))
	for _, stmt := range stmts {
		if p := BestCandidate(stmt, aggs, c); p != nil {
			proposals = append(proposals, *p)
		} else {
			unmatched = append(unmatched, stmt.ID)
		}
	}

	sort.SliceStable(proposals, func(i, j int) bool {
		a, b := proposals[i], proposals[j]
		if a.Criteria.Rank() != b.Criteria.Rank() {
			return a.Criteria.Outranks(b.Criteria)
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.StatementID < b.StatementID
	})

	claimed := make(map[string]bool, len(proposals))
	for _, p := range proposals {
		if claimed[p.AggregateID] {
			unmatched = append(unmatched, p.StatementID)
			continue
		}
		claimed[p.AggregateID] = true
		matches = append(matches, p)
	}

	sort.Strings(unmatched)
	return matches, unmatched
}

package service

import (
	"context"
	"log/slog"

	"github.com/mmynk/posrecon/internal/calculator"
	"github.com/mmynk/posrecon/internal/errs"
	"github.com/mmynk/posrecon/internal/metrics"
	"github.com/mmynk/posrecon/internal/middleware"
	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/storage"
)

// DefaultPotentialMatches is the number of candidates PotentialMatches returns
// when no limit is given.
const DefaultPotentialMatches = 5

// AutoMatchService proposes and commits statement-to-aggregate matches.
type AutoMatchService struct {
	base
	criteria calculator.MatchingCriteria
}

// NewAutoMatchService creates an AutoMatchService using criteria as the
// defaults that per-request overrides are applied to.
func NewAutoMatchService(store storage.Ledger, criteria calculator.MatchingCriteria, opts ...Option) *AutoMatchService {
	return &AutoMatchService{base: newBase(store, opts), criteria: criteria}
}

// PreviewSummary counts the outcome of a preview.
type PreviewSummary struct {
	TotalStatements     int `json:"totalStatements"`
	MatchedStatements   int `json:"matchedStatements"`
	UnmatchedStatements int `json:"unmatchedStatements"`
}

// PreviewResult is the side-effect-free auto-match proposal.
type PreviewResult struct {
	Matches   []calculator.Proposal `json:"matches"`
	Unmatched []string              `json:"unmatchedStatementIds"`
	Summary   PreviewSummary        `json:"summary"`
}

// ConfirmRequest selects the statements to commit. Range, when set, bounds
// the aggregate pool; otherwise the pool spans the selected statements' dates.
type ConfirmRequest struct {
	StatementIDs []string                      `json:"statementIds"`
	Overrides    *calculator.CriteriaOverrides `json:"matchingCriteria,omitempty"`
	Range        *models.DateRange             `json:"-"`
}

// ConfirmItem is the outcome for one selected statement.
type ConfirmItem struct {
	StatementID string               `json:"statementId"`
	AggregateID string               `json:"aggregateId,omitempty"`
	Matched     bool                 `json:"matched"`
	Criteria    models.MatchCriteria `json:"matchCriteria,omitempty"`
	Score       float64              `json:"matchScore,omitempty"`
	Code        errs.Code            `json:"code,omitempty"`
	Message     string               `json:"message,omitempty"`
}

// ConfirmResult reports per-item outcomes of a confirm.
type ConfirmResult struct {
	MatchedCount int           `json:"matchedCount"`
	Results      []ConfirmItem `json:"results"`
}

// PotentialMatch is one ranked candidate aggregate for a statement.
type PotentialMatch struct {
	Aggregate *models.AggregatedTransaction `json:"aggregate"`
	calculator.Classification
}

func (s *AutoMatchService) resolveCriteria(overrides *calculator.CriteriaOverrides) (calculator.MatchingCriteria, error) {
	c := overrides.Apply(s.criteria)
	if err := c.Validate(); err != nil {
		return c, errs.Wrap(errs.Validation, err, err.Error())
	}
	return c, nil
}

// openAggregates returns the unreconciled aggregates dated within r.
func (s *AutoMatchService) openAggregates(ctx context.Context, r models.DateRange) ([]*models.AggregatedTransaction, error) {
	aggs, _, err := s.store.ListAggregates(ctx, storage.AggregateFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     &r,
		OpenOnly:  true,
	}, models.PageRequest{})
	return aggs, err
}

// Preview classifies every open statement in r against the open aggregates
// within r widened by the date buffer, and returns the greedy assignment.
// It never writes to the ledger.
func (s *AutoMatchService) Preview(ctx context.Context, r models.DateRange, overrides *calculator.CriteriaOverrides) (*PreviewResult, error) {
	slog.Info("AutoMatchPreview request received", "start_date", r.Start, "end_date", r.End)

	if err := validateRange(r); err != nil {
		return nil, fail("auto_match_preview", err)
	}
	criteria, err := s.resolveCriteria(overrides)
	if err != nil {
		return nil, fail("auto_match_preview", err)
	}

	stmts, _, err := s.store.ListStatements(ctx, storage.StatementFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     &r,
		OpenOnly:  true,
	}, models.PageRequest{})
	if err != nil {
		return nil, fail("auto_match_preview", err)
	}

	result := &PreviewResult{Matches: []calculator.Proposal{}, Unmatched: []string{}}
	if len(stmts) == 0 {
		succeed("auto_match_preview")
		return result, nil
	}

	aggs, err := s.openAggregates(ctx, r.Widen(criteria.DateBufferDays))
	if err != nil {
		return nil, fail("auto_match_preview", err)
	}

	matches, unmatched := calculator.SelectMatches(stmts, aggs, criteria)
	if matches != nil {
		result.Matches = matches
	}
	if unmatched != nil {
		result.Unmatched = unmatched
	}
	result.Summary = PreviewSummary{
		TotalStatements:     len(stmts),
		MatchedStatements:   len(matches),
		UnmatchedStatements: len(unmatched),
	}

	metrics.PreviewCandidates.Observe(float64(len(stmts)))
	succeed("auto_match_preview")
	slog.Info("AutoMatchPreview successful",
		"statements", len(stmts),
		"aggregates", len(aggs),
		"matched", len(matches),
	)
	return result, nil
}

// Confirm re-derives matches for exactly the selected statements and commits
// each one in its own ledger transaction. Items fail independently: a
// statement that is no longer open reports CONCURRENT_MODIFICATION.
func (s *AutoMatchService) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	ids := dedupe(req.StatementIDs)
	slog.Info("AutoMatchConfirm request received", "statements_count", len(ids))

	if len(ids) == 0 {
		return nil, fail("auto_match_confirm", errs.New(errs.Validation, "statementIds must not be empty"))
	}
	if req.Range != nil {
		if err := validateRange(*req.Range); err != nil {
			return nil, fail("auto_match_confirm", err)
		}
	}
	criteria, err := s.resolveCriteria(req.Overrides)
	if err != nil {
		return nil, fail("auto_match_confirm", err)
	}

	found, err := s.store.GetStatements(ctx, ids)
	if err != nil {
		return nil, fail("auto_match_confirm", err)
	}
	byID := make(map[string]*models.BankStatement, len(found))
	for _, st := range found {
		if inScope(ctx, st.CompanyID) {
			byID[st.ID] = st
		}
	}

	outcomes := make(map[string]ConfirmItem, len(ids))
	var open []*models.BankStatement
	for _, id := range ids {
		st, ok := byID[id]
		switch {
		case !ok:
			outcomes[id] = ConfirmItem{StatementID: id, Code: errs.NotFound, Message: "statement not found"}
		case !unlinked(st):
			outcomes[id] = ConfirmItem{StatementID: id, Code: errs.ConcurrentModification,
				Message: "statement is no longer open (status " + string(st.Status) + ")"}
		default:
			open = append(open, st)
		}
	}

	result := &ConfirmResult{Results: make([]ConfirmItem, 0, len(ids))}
	if len(open) > 0 {
		pool := spanOf(open)
		if req.Range != nil {
			pool = *req.Range
		}
		aggs, err := s.openAggregates(ctx, pool.Widen(criteria.DateBufferDays))
		if err != nil {
			return nil, fail("auto_match_confirm", err)
		}
		aggByID := make(map[string]*models.AggregatedTransaction, len(aggs))
		for _, a := range aggs {
			aggByID[a.ID] = a
		}
		stByID := make(map[string]*models.BankStatement, len(open))
		for _, st := range open {
			stByID[st.ID] = st
		}

		matches, unmatched := calculator.SelectMatches(open, aggs, criteria)
		for _, id := range unmatched {
			outcomes[id] = ConfirmItem{StatementID: id, Message: "no candidate aggregate within tolerance"}
		}
		for _, p := range matches {
			item := ConfirmItem{StatementID: p.StatementID, AggregateID: p.AggregateID, Criteria: p.Criteria, Score: p.Score}
			if err := s.commit(ctx, stByID[p.StatementID], aggByID[p.AggregateID], p); err != nil {
				e := asError(err)
				item.Code, item.Message = e.Code, e.Message
				slog.Warn("AutoMatchConfirm item failed", "statement_id", p.StatementID, "code", e.Code, "error", err)
			} else {
				item.Matched = true
				result.MatchedCount++
			}
			outcomes[p.StatementID] = item
		}
	}

	for _, id := range ids {
		result.Results = append(result.Results, outcomes[id])
	}

	succeed("auto_match_confirm")
	slog.Info("AutoMatchConfirm successful", "requested", len(ids), "matched", result.MatchedCount)
	return result, nil
}

// commit links one statement to one aggregate, guarded by the state both
// records had when they were read.
func (s *AutoMatchService) commit(ctx context.Context, st *models.BankStatement, agg *models.AggregatedTransaction, p calculator.Proposal) error {
	now := s.now().Unix()
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.CompareAndSetStatement(ctx, st.ID, storage.StatementStateOf(st), storage.StatementState{
			Status:             models.StatusAutoMatched,
			IsReconciled:       true,
			PreMatchStatus:     st.Status,
			MatchedAggregateID: agg.ID,
			MatchCriteria:      p.Criteria,
			MatchScore:         p.Score,
			MatchedAt:          now,
			MatchedBy:          middleware.GetUserID(ctx),
			Notes:              st.Notes,
		}); err != nil {
			return err
		}
		return tx.CompareAndSetAggregate(ctx, agg.ID, storage.AggregateStateOf(agg), storage.AggregateState{
			IsReconciled:       true,
			MatchedStatementID: st.ID,
		})
	})
	if err != nil {
		return err
	}

	metrics.Matches.WithLabelValues(string(p.Criteria)).Inc()
	s.record(ctx, models.AuditAutoMatch, "statement", st.ID, map[string]any{
		"aggregateId":   agg.ID,
		"matchCriteria": string(p.Criteria),
		"matchScore":    p.Score,
	})
	return nil
}

// PotentialMatches ranks the open aggregates near a statement's date, best
// first. Statements that are already matched get an empty list.
func (s *AutoMatchService) PotentialMatches(ctx context.Context, statementID string, limit int, overrides *calculator.CriteriaOverrides) ([]PotentialMatch, error) {
	slog.Info("PotentialMatches request received", "statement_id", statementID, "limit", limit)

	criteria, err := s.resolveCriteria(overrides)
	if err != nil {
		return nil, fail("potential_matches", err)
	}
	st, err := s.getStatement(ctx, statementID)
	if err != nil {
		return nil, fail("potential_matches", err)
	}
	if limit <= 0 {
		limit = DefaultPotentialMatches
	}

	out := []PotentialMatch{}
	if !unlinked(st) {
		succeed("potential_matches")
		return out, nil
	}

	window := models.DateRange{Start: st.TransactionDate, End: st.TransactionDate}.Widen(calculator.MaxDateBufferDays)
	aggs, err := s.openAggregates(ctx, window)
	if err != nil {
		return nil, fail("potential_matches", err)
	}
	byID := make(map[string]*models.AggregatedTransaction, len(aggs))
	for _, a := range aggs {
		byID[a.ID] = a
	}

	for _, p := range calculator.RankCandidates(st, aggs, criteria, limit) {
		out = append(out, PotentialMatch{Aggregate: byID[p.AggregateID], Classification: p.Classification})
	}

	succeed("potential_matches")
	slog.Info("PotentialMatches successful", "statement_id", statementID, "count", len(out))
	return out, nil
}

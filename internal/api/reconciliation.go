package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/posrecon/internal/calculator"
	"github.com/mmynk/posrecon/internal/export"
	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/service"
)

// defaultPotentialMatches is the candidate count when limit is absent.
const defaultPotentialMatches = 5

// AutoMatchRequest is the body of POST /reconciliation/bank/auto-match.
type AutoMatchRequest struct {
	StartDate        string                        `json:"startDate"`
	EndDate          string                        `json:"endDate"`
	MatchingCriteria *calculator.CriteriaOverrides `json:"matchingCriteria,omitempty"`
}

// ConfirmRequest is the body of POST /reconciliation/bank/auto-match/confirm.
type ConfirmRequest struct {
	StatementIDs     []string                      `json:"statementIds"`
	StartDate        string                        `json:"startDate,omitempty"`
	EndDate          string                        `json:"endDate,omitempty"`
	MatchingCriteria *calculator.CriteriaOverrides `json:"matchingCriteria,omitempty"`
}

// SuggestAggregateRequest is the body of POST .../multi-match/suggest-aggregate.
type SuggestAggregateRequest struct {
	StatementIDs []string `json:"statementIds"`
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	dr, err := requiredRange(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	summary, err := h.svc.Report.Summary(r.Context(), dr)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) discrepancies(w http.ResponseWriter, r *http.Request) {
	dr, err := requiredRange(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	threshold, err := queryDecimal(r, "threshold")
	if err != nil {
		writeJSONError(w, err)
		return
	}
	items, err := h.svc.Report.Discrepancies(r.Context(), dr, threshold)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) exportDiscrepancies(w http.ResponseWriter, r *http.Request) {
	dr, err := requiredRange(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	threshold, err := queryDecimal(r, "threshold")
	if err != nil {
		writeJSONError(w, err)
		return
	}
	summary, err := h.svc.Report.Summary(r.Context(), dr)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	items, err := h.svc.Report.Discrepancies(r.Context(), dr, threshold)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	// Render fully before writing headers so a failure still yields a JSON error.
	var buf bytes.Buffer
	if err := export.WriteDiscrepancies(&buf, summary, items); err != nil {
		writeJSONError(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(export.FileName(dr)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *handler) listStatements(w http.ResponseWriter, r *http.Request) {
	dr, err := optionalRange(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	page, err := h.paging.page(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	q := r.URL.Query()
	result, err := h.svc.Report.ListStatements(r.Context(), service.StatementQuery{
		Range:  dr,
		Status: strings.TrimSpace(q.Get("status")),
		Search: strings.TrimSpace(q.Get("search")),
		Page:   page,
	})
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) potentialMatches(w http.ResponseWriter, r *http.Request) {
	limit, set, err := queryInt(r, "limit")
	if err != nil {
		writeJSONError(w, err)
		return
	}
	if !set {
		limit = defaultPotentialMatches
	}
	matches, err := h.svc.AutoMatch.PotentialMatches(r.Context(), chi.URLParam(r, "statementId"), limit, nil)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	limit, _, err := queryInt(r, "limit")
	if err != nil {
		writeJSONError(w, err)
		return
	}
	entries, err := h.svc.Report.AuditTrail(r.Context(), r.URL.Query().Get("entityId"), limit)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) autoMatchPreview(w http.ResponseWriter, r *http.Request) {
	var req AutoMatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	dr, err := models.NewDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeJSONError(w, badRequest("%v", err))
		return
	}
	preview, err := h.svc.AutoMatch.Preview(r.Context(), dr, req.MatchingCriteria)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *handler) autoMatchConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	confirm := service.ConfirmRequest{StatementIDs: req.StatementIDs, Overrides: req.MatchingCriteria}
	if req.StartDate != "" || req.EndDate != "" {
		dr, err := models.NewDateRange(req.StartDate, req.EndDate)
		if err != nil {
			writeJSONError(w, badRequest("%v", err))
			return
		}
		confirm.Range = &dr
	}
	result, err := h.svc.AutoMatch.Confirm(r.Context(), confirm)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) manualMatch(w http.ResponseWriter, r *http.Request) {
	var req service.ManualRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	result, err := h.svc.Manual.Reconcile(r.Context(), req)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) undoMatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Manual.Undo(r.Context(), chi.URLParam(r, "statementId"))
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req service.CreateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	group, err := h.svc.MultiMatch.CreateGroup(r.Context(), req)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *handler) listGroups(w http.ResponseWriter, r *http.Request) {
	dr, err := optionalRange(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	status, err := groupStatus(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	page, err := h.paging.page(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	result, err := h.svc.MultiMatch.ListGroups(r.Context(), service.GroupQuery{Range: dr, Status: status, Page: page})
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.svc.MultiMatch.GetGroup(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *handler) undoGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.svc.MultiMatch.UndoGroup(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *handler) suggestStatements(w http.ResponseWriter, r *http.Request) {
	tolerance, err := queryFloat(r, "tolerancePercent")
	if err != nil {
		writeJSONError(w, err)
		return
	}
	req := service.StatementSuggestionRequest{
		AggregateID:      r.URL.Query().Get("aggregateId"),
		TolerancePercent: tolerance,
	}
	if days, set, err := queryInt(r, "dateToleranceDays"); err != nil {
		writeJSONError(w, err)
		return
	} else if set {
		req.DateToleranceDays = &days
	}
	if req.MaxStatements, _, err = queryInt(r, "maxStatements"); err != nil {
		writeJSONError(w, err)
		return
	}

	suggestion, err := h.svc.MultiMatch.SuggestStatements(r.Context(), req)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func (h *handler) suggestAggregate(w http.ResponseWriter, r *http.Request) {
	var req SuggestAggregateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	suggestion, err := h.svc.MultiMatch.SuggestAggregate(r.Context(), req.StatementIDs)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

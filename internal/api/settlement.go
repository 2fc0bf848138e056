package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/posrecon/internal/service"
)

func (h *handler) createSettlement(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSettlementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	group, err := h.svc.Settlement.Create(r.Context(), req)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *handler) settlementQuery(r *http.Request) (service.SettlementQuery, error) {
	dr, err := optionalRange(r)
	if err != nil {
		return service.SettlementQuery{}, err
	}
	status, err := groupStatus(r)
	if err != nil {
		return service.SettlementQuery{}, err
	}
	page, err := h.paging.page(r)
	if err != nil {
		return service.SettlementQuery{}, err
	}
	return service.SettlementQuery{
		Range:  dr,
		Status: status,
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Page:   page,
	}, nil
}

func (h *handler) listSettlements(w http.ResponseWriter, r *http.Request) {
	q, err := h.settlementQuery(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	result, err := h.svc.Settlement.List(r.Context(), q)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) listSettlementTrash(w http.ResponseWriter, r *http.Request) {
	q, err := h.settlementQuery(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	result, err := h.svc.Settlement.ListTrash(r.Context(), q)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) availableQuery(r *http.Request) (service.AvailableQuery, error) {
	dr, err := optionalRange(r)
	if err != nil {
		return service.AvailableQuery{}, err
	}
	page, err := h.paging.page(r)
	if err != nil {
		return service.AvailableQuery{}, err
	}
	q := r.URL.Query()
	return service.AvailableQuery{
		Range:         dr,
		Search:        strings.TrimSpace(q.Get("search")),
		BranchID:      strings.TrimSpace(q.Get("branchId")),
		PaymentMethod: strings.TrimSpace(q.Get("paymentMethod")),
		Page:          page,
	}, nil
}

func (h *handler) availableStatements(w http.ResponseWriter, r *http.Request) {
	q, err := h.availableQuery(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	result, err := h.svc.Settlement.AvailableStatements(r.Context(), q)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) availableAggregates(w http.ResponseWriter, r *http.Request) {
	q, err := h.availableQuery(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	result, err := h.svc.Settlement.AvailableAggregates(r.Context(), q)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) settlementSuggestions(w http.ResponseWriter, r *http.Request) {
	target, err := queryDecimal(r, "targetAmount")
	if err != nil {
		writeJSONError(w, err)
		return
	}
	tolerance, err := queryFloat(r, "tolerancePercent")
	if err != nil {
		writeJSONError(w, err)
		return
	}
	maxResults, _, err := queryInt(r, "maxResults")
	if err != nil {
		writeJSONError(w, err)
		return
	}
	dr, err := optionalRange(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	suggestion, err := h.svc.Settlement.Suggestions(r.Context(), service.SuggestionRequest{
		BankStatementID:  strings.TrimSpace(r.URL.Query().Get("bankStatementId")),
		TargetAmount:     target,
		TolerancePercent: tolerance,
		MaxResults:       maxResults,
		Range:            dr,
	})
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func (h *handler) getSettlement(w http.ResponseWriter, r *http.Request) {
	group, err := h.svc.Settlement.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *handler) getSettlementByNumber(w http.ResponseWriter, r *http.Request) {
	group, err := h.svc.Settlement.GetByNumber(r.Context(), chi.URLParam(r, "settlementNumber"))
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *handler) settlementAggregates(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.svc.Settlement.Aggregates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allocations)
}

// softDeleteSettlement reverts the members' reconciliation unless
// revertReconciliation=false is given.
func (h *handler) softDeleteSettlement(w http.ResponseWriter, r *http.Request) {
	revert, err := queryBool(r, "revertReconciliation", true)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	group, err := h.svc.Settlement.SoftDelete(r.Context(), chi.URLParam(r, "id"), revert)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *handler) restoreSettlement(w http.ResponseWriter, r *http.Request) {
	group, err := h.svc.Settlement.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/posrecon/internal/errs"
	"github.com/mmynk/posrecon/internal/models"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorBody is the payload of every non-2xx JSON response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine code, message and optional details.
type ErrorDetail struct {
	Code    errs.Code      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code errs.Code) int {
	switch code {
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Validation, errs.BulkLimitExceeded:
		return http.StatusBadRequest
	case errs.AlreadyReconciled, errs.ConcurrentModification:
		return http.StatusConflict
	case errs.DifferenceExceedsTolerance, errs.GroupDifferenceExceedsTolerance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeJSONError renders err with the status its code maps to. Internal
// errors hide their cause from the client.
func writeJSONError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	body := ErrorBody{Error: ErrorDetail{
		Code:    code,
		Message: errs.MessageOf(err),
		Details: errs.DetailsOf(err),
	}}
	if code == errs.Internal {
		body.Error.Message = "internal server error"
		body.Error.Details = nil
	}
	writeJSON(w, StatusFor(code), body)
}

func badRequest(format string, args ...any) error {
	return errs.New(errs.Validation, format, args...)
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// requiredRange parses startDate and endDate, both mandatory.
func requiredRange(r *http.Request) (models.DateRange, error) {
	q := r.URL.Query()
	dr, err := models.NewDateRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		return models.DateRange{}, badRequest("%v", err)
	}
	return dr, nil
}

// optionalRange returns nil when neither bound is given.
func optionalRange(r *http.Request) (*models.DateRange, error) {
	q := r.URL.Query()
	if q.Get("startDate") == "" && q.Get("endDate") == "" {
		return nil, nil
	}
	dr, err := requiredRange(r)
	if err != nil {
		return nil, err
	}
	return &dr, nil
}

func queryInt(r *http.Request, key string) (int, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, badRequest("%s must be an integer", key)
	}
	return n, true, nil
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, badRequest("%s must be a number", key)
	}
	return &f, nil
}

func queryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, badRequest("%s must be a decimal amount", key)
	}
	return &d, nil
}

func queryBool(r *http.Request, key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("%s must be true or false", key)
	}
	return b, nil
}

// Paging holds the page sizes applied to list endpoints.
type Paging struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultPaging matches the model defaults.
func DefaultPaging() Paging {
	return Paging{DefaultLimit: models.DefaultPageSize, MaxLimit: models.MaxPageSize}
}

// page reads page and limit, applying the configured sizes.
func (p Paging) page(r *http.Request) (models.PageRequest, error) {
	page, _, err := queryInt(r, "page")
	if err != nil {
		return models.PageRequest{}, err
	}
	limit, set, err := queryInt(r, "limit")
	if err != nil {
		return models.PageRequest{}, err
	}
	if page < 0 || limit < 0 {
		return models.PageRequest{}, badRequest("page and limit must not be negative")
	}
	if !set || limit == 0 {
		limit = p.DefaultLimit
	}
	if p.MaxLimit > 0 && limit > p.MaxLimit {
		limit = p.MaxLimit
	}
	if page == 0 {
		page = 1
	}
	return models.PageRequest{Page: page, Limit: limit}, nil
}

func groupStatus(r *http.Request) (models.GroupStatus, error) {
	raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	if raw == "" {
		return "", nil
	}
	s := models.GroupStatus(raw)
	if !s.Valid() {
		return "", badRequest("unknown group status %q", raw)
	}
	return s, nil
}

func contentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

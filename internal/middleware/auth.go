package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mmynk/posrecon/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserIDKey is the context key for storing the authenticated operator ID.
	UserIDKey contextKey = "user_id"
	// CompanyIDKey is the context key for the company scope.
	CompanyIDKey contextKey = "company_id"
	// BranchIDKey is the context key for the branch scope.
	BranchIDKey contextKey = "branch_id"
)

// Headers read by HeaderAuth when token authentication is disabled.
const (
	OperatorHeader = "X-Operator-ID"
	CompanyHeader  = "X-Company-ID"
	BranchHeader   = "X-Branch-ID"
)

// GetUserID extracts the operator ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetCompanyID extracts the company scope from the context.
// Returns empty string (all companies) if not found.
func GetCompanyID(ctx context.Context) string {
	companyID, _ := ctx.Value(CompanyIDKey).(string)
	return companyID
}

// GetBranchID extracts the branch scope from the context.
func GetBranchID(ctx context.Context) string {
	branchID, _ := ctx.Value(BranchIDKey).(string)
	return branchID
}

// WithOperator returns ctx carrying the given operator and scope.
func WithOperator(ctx context.Context, userID, companyID, branchID string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, CompanyIDKey, companyID)
	return context.WithValue(ctx, BranchIDKey, branchID)
}

// RequireAuth returns a middleware that validates JWT tokens and requires authentication.
// It extracts the token from the Authorization header, validates it, and adds
// the operator and scope to the request context.
func RequireAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}

			claims, err := jwtManager.Validate(tokenString)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}

			ctx := WithOperator(r.Context(), claims.UserID, claims.CompanyID, claims.BranchID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth returns a middleware that validates JWT tokens if present, but allows
// requests without authentication.
func OptionalAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString, err := bearerToken(r); err == nil {
				// Validate token (ignore errors - optional auth)
				if claims, err := jwtManager.Validate(tokenString); err == nil {
					r = r.WithContext(WithOperator(r.Context(), claims.UserID, claims.CompanyID, claims.BranchID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HeaderAuth trusts the operator and scope headers as given. It is used when
// no JWT secret is configured.
func HeaderAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithOperator(r.Context(),
				r.Header.Get(OperatorHeader),
				r.Header.Get(CompanyHeader),
				r.Header.Get(BranchHeader),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", auth.ErrMissingToken
	}

	// Parse Bearer token
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", auth.ErrInvalidToken
	}
	return parts[1], nil
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": "UNAUTHENTICATED", "message": err.Error()},
	})
}

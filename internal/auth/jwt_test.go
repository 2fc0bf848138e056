package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("op-1", "company-1", "branch-9")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != "op-1" || claims.CompanyID != "company-1" || claims.BranchID != "branch-9" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	token, err := m.Generate("op-1", "", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	tests := []struct {
		name    string
		manager *JWTManager
		token   string
	}{
		{"wrong secret", NewJWTManager("other-secret", time.Hour), token},
		{"garbage", m, "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.manager.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}

	t.Run("expired", func(t *testing.T) {
		short := NewJWTManager("test-secret", -time.Minute)
		expired, err := short.Generate("op-1", "", "")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := short.Validate(expired); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		if _, err := m.Generate("", "c", ""); !errors.Is(err, ErrInvalidScope) {
			t.Errorf("expected ErrInvalidScope, got %v", err)
		}
	})

	t.Run("branch without company", func(t *testing.T) {
		if _, err := m.Generate("op-1", "", "b1"); !errors.Is(err, ErrInvalidScope) {
			t.Errorf("expected ErrInvalidScope, got %v", err)
		}
	})
}

func TestJWTManager_RejectsSignedTokenWithoutScope(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	tests := []struct {
		name   string
		method jwt.SigningMethod
		claims Claims
	}{
		{"empty user", jwt.SigningMethodHS256, Claims{CompanyID: "c1"}},
		{"branch without company", jwt.SigningMethodHS256, Claims{UserID: "op-1", BranchID: "b1"}},
		{"other hmac method", jwt.SigningMethodHS512, Claims{UserID: "op-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := tt.claims
			claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
			token, err := jwt.NewWithClaims(tt.method, &claims).SignedString([]byte("test-secret"))
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/openspot/exchange/internal/models"
	"github.com/shopspring/decimal"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(nil, "test-secret", decimal.Zero)
	user := &models.User{ID: 42, Email: "trader@example.com"}

	token, err := svc.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	userID, err := svc.GetUserFromToken(token)
	if err != nil {
		t.Fatalf("GetUserFromToken failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("expected user id 42, got %d", userID)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewAuthService(nil, "secret-a", decimal.Zero)
	verifier := NewAuthService(nil, "secret-b", decimal.Zero)

	token, err := issuer.IssueToken(&models.User{ID: 1, Email: "a@example.com"})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := verifier.GetUserFromToken(token); err == nil {
		t.Error("expected token signed with another secret to be rejected")
	}
}

func TestTokenGarbage(t *testing.T) {
	svc := NewAuthService(nil, "test-secret", decimal.Zero)
	if _, err := svc.GetUserFromToken("not-a-token"); err == nil {
		t.Error("expected malformed token to be rejected")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewAuthService(nil, "test-secret", decimal.Zero)

	tests := []struct {
		name                  string
		userName, email, pass string
	}{
		{name: "EmptyName", userName: "", email: "a@example.com", pass: "pw"},
		{name: "EmptyEmail", userName: "alice", email: "", pass: "pw"},
		{name: "EmptyPassword", userName: "alice", email: "a@example.com", pass: ""},
		{name: "NameTooLong", userName: strings.Repeat("x", 101), email: "a@example.com", pass: "pw"},
		{name: "PasswordTooLong", userName: "alice", email: "a@example.com", pass: strings.Repeat("x", 101)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Validation rejects the input before any database access.
			if _, err := svc.Register(context.Background(), tt.userName, tt.email, tt.pass); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

package auth

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestDevAuthenticatorIgnoresRequest(t *testing.T) {
	authn := NewDevAuthenticator(Config{
		Mode:       ModeDev,
		DevSubject: "dev-user",
		DevEmail:   "dev@pipetrace.local",
		DevRoles:   []string{"admin"},
	})

	r := httptest.NewRequest("DELETE", "/api/v1/runs/abc", nil)
	r.Header.Set("X-Pipetrace-Subject", "attacker")
	r.Header.Set("Authorization", "Bearer junk")

	identity, err := authn.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if identity.Subject != "dev-user" || identity.Email != "dev@pipetrace.local" {
		t.Fatalf("expected configured identity, got %+v", identity)
	}
	if len(identity.Roles) != 1 || identity.Roles[0] != "admin" {
		t.Fatalf("expected configured roles, got %v", identity.Roles)
	}
}

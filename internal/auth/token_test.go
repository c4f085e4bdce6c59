package auth_test

import (
	"testing"
	"time"

	"github.com/westcreek-sd/helpdesk/internal/auth"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret", "http://localhost:8080", time.Hour)

	tok, err := issuer.Issue("u-1", "tech@westcreeksd.ca", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "u-1" || claims.Email != "tech@westcreeksd.ca" {
		t.Errorf("claims: got %+v", claims)
	}
	if !claims.IsAdmin() {
		t.Error("expected admin claims")
	}
}

func TestVerify_wrongSecret(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret-a", "http://localhost:8080", time.Hour)
	other := auth.NewTokenIssuer("secret-b", "http://localhost:8080", time.Hour)

	tok, _ := issuer.Issue("u-1", "tech@westcreeksd.ca", auth.RoleUser)
	if _, err := other.Verify(tok); err == nil {
		t.Error("token signed with a different secret must not verify")
	}
}

func TestVerify_wrongIssuer(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", "http://a.example", time.Hour)
	other := auth.NewTokenIssuer("secret", "http://b.example", time.Hour)

	tok, _ := issuer.Issue("u-1", "tech@westcreeksd.ca", auth.RoleUser)
	if _, err := other.Verify(tok); err == nil {
		t.Error("token with a different issuer must not verify")
	}
}

func TestVerify_garbage(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", "http://localhost:8080", time.Hour)
	if _, err := issuer.Verify("not-a-jwt"); err == nil {
		t.Error("garbage must not verify")
	}
}

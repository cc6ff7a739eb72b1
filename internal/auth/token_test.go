package auth

import (
	"testing"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
)

func testValidator() *Validator {
	return NewValidator(config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret",
		Issuer:    "voice-gateway",
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	v := testValidator()
	token, err := v.Issue("client-42", time.Minute)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.ClientID != "client-42" {
		t.Errorf("client id = %q, want client-42", claims.ClientID)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	v := testValidator()
	token, _ := v.Issue("client-42", -time.Minute)
	if _, err := v.Validate(token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	other := NewValidator(config.AuthConfig{JWTSecret: "other-secret", Issuer: "voice-gateway"})
	token, _ := other.Issue("client-42", time.Minute)

	if _, err := testValidator().Validate(token); err == nil {
		t.Fatal("token signed with a different secret must be rejected")
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	other := NewValidator(config.AuthConfig{JWTSecret: "test-secret", Issuer: "someone-else"})
	token, _ := other.Issue("client-42", time.Minute)

	if _, err := testValidator().Validate(token); err == nil {
		t.Fatal("token from a different issuer must be rejected")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if _, err := testValidator().Validate("not-a-token"); err == nil {
		t.Fatal("garbage must be rejected")
	}
}

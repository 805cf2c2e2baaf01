package usertoken

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, issuer, audience, subject string, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerifySubjectAcceptsValidToken(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token := signToken(t, "test-secret", defaultIssuer, defaultAudience, "patient-1", time.Hour)
	subject, err := v.VerifySubject(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "patient-1" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestVerifySubjectRejectsWrongSecret(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token := signToken(t, "other-secret", defaultIssuer, defaultAudience, "patient-1", time.Hour)
	if _, err := v.VerifySubject(token); err == nil {
		t.Fatal("expected verification failure for wrong secret")
	}
}

func TestVerifySubjectRejectsExpiredToken(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "test-secret", Leeway: time.Millisecond})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token := signToken(t, "test-secret", defaultIssuer, defaultAudience, "patient-1", -time.Hour)
	if _, err := v.VerifySubject(token); err == nil {
		t.Fatal("expected verification failure for expired token")
	}
}

func TestVerifySubjectRejectsWrongAudience(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token := signToken(t, "test-secret", defaultIssuer, "other-api", "patient-1", time.Hour)
	if _, err := v.VerifySubject(token); err == nil {
		t.Fatal("expected verification failure for wrong audience")
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatal("expected constructor error for empty secret")
	}
}

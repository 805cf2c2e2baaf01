package servicetoken

import (
	"testing"
	"time"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	signer, err := NewSigner("shared-secret", "triage", time.Minute)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifier("shared-secret", "profile", []string{"triage"}, 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := signer.Sign("profile")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Issuer != "triage" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	signer, err := NewSigner("shared-secret", "triage", time.Minute)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifier("shared-secret", "profile", []string{"triage"}, 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := signer.Sign("billing")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected rejection of wrong audience")
	}
}

func TestVerifyRejectsUnknownIssuer(t *testing.T) {
	signer, err := NewSigner("shared-secret", "billing", time.Minute)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifier("shared-secret", "profile", []string{"triage"}, 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := signer.Sign("profile")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected rejection of unknown issuer")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer, err := NewSigner("secret-a", "triage", time.Minute)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifier("secret-b", "profile", []string{"triage"}, 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := signer.Sign("profile")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected rejection of wrong secret")
	}
}

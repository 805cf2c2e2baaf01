package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("unexpected client ip %q", got)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.4:5000"
	if got := ClientIP(req); got != "192.0.2.4" {
		t.Fatalf("unexpected client ip %q", got)
	}
}

func TestClientIPIgnoresGarbageForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.4:5000"
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	if got := ClientIP(req); got != "192.0.2.4" {
		t.Fatalf("unexpected client ip %q", got)
	}
}

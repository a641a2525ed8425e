package token

import (
	"strings"
	"testing"
	"time"

	"audioscribe/pkg/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	svc, err := NewService(testSecret, opts)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := newTestService(t, Options{})
	user := domain.User{ID: "user-1", Username: "ana", Role: domain.RoleEditor}

	raw, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "ana" || claims.Role != domain.RoleEditor {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := newTestService(t, Options{TTL: time.Millisecond, Leeway: time.Millisecond})
	raw, err := svc.Issue(domain.User{ID: "user-1", Username: "ana", Role: domain.RoleEditor})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.Verify(raw); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := newTestService(t, Options{})
	raw, err := svc.Issue(domain.User{ID: "user-1", Username: "ana", Role: domain.RoleEditor})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := svc.Verify(tampered); err == nil {
		t.Fatalf("expected tampered token to fail")
	}
	if _, err := svc.Verify(""); err == nil {
		t.Fatalf("expected empty token to fail")
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuing := newTestService(t, Options{})
	other, err := NewService("ffffffffffffffffffffffffffffffff", Options{})
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	raw, err := issuing.Issue(domain.User{ID: "user-1", Username: "ana", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := other.Verify(raw); err == nil {
		t.Fatalf("expected foreign-secret token to fail")
	}
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	if _, err := NewService("short", Options{}); err == nil {
		t.Fatalf("expected short secret to fail")
	}
}

package sharelink

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	issued, err := IssueFor(secret, "prop-1", time.Hour, now)
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}
	claims, err := Parse(secret, issued, now)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.ProposalID != "prop-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	issued, err := IssueFor(secret, "prop-1", time.Minute, now)
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}
	_, err = Parse(secret, issued, now.Add(2*time.Minute))
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	issued, err := IssueFor(secret, "prop-1", time.Hour, now)
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}

	if _, err := Parse([]byte("other"), issued, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	forged, _ := Issue([]byte("attacker"), Claims{ProposalID: "prop-2", Exp: now.Add(time.Hour).Unix()})
	payload := strings.SplitN(forged, ".", 2)[0]
	signature := strings.SplitN(issued, ".", 2)[1]
	if _, err := Parse(secret, payload+"."+signature, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for swapped payload, got %v", err)
	}

	for _, bad := range []string{"", "nodot", "a.b.c"} {
		if _, err := Parse(secret, bad, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", bad, err)
		}
	}
}

func TestCheckPassword(t *testing.T) {
	if err := CheckPassword("", ""); err != nil {
		t.Fatalf("unprotected link should pass, got %v", err)
	}

	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := CheckPassword(hash, ""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if err := CheckPassword(hash, "s3cret"); err != nil {
		t.Fatalf("expected password to match, got %v", err)
	}
}

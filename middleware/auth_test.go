package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestIssueValidateToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	auth := NewAuthenticator([]byte("test-jwt-secret"), clock)

	token, err := auth.IssueToken("scanner-1", RoleStaff, time.Hour)
	if err != nil {
		t.Fatalf("Could not issue token: %v", err)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("Could not validate token: %v", err)
	}
	if claims.Subject != "scanner-1" || claims.Role != RoleStaff {
		t.Fatalf("Unexpected claims: subject=%q role=%q", claims.Subject, claims.Role)
	}

	// Expiry respects the injected clock.
	clock.Advance(time.Hour + time.Second)
	if _, err := auth.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Expected ErrTokenExpired, got %v", err)
	}

	// A token signed with a different secret is invalid, not expired.
	other := NewAuthenticator([]byte("other-secret"), clock)
	otherToken, err := other.IssueToken("scanner-1", RoleStaff, time.Hour)
	if err != nil {
		t.Fatalf("Could not issue token: %v", err)
	}
	if _, err := auth.ValidateToken(otherToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Expected ErrTokenInvalid, got %v", err)
	}
}

func TestRequireRoleGate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	auth := NewAuthenticator([]byte("test-jwt-secret"), clock)

	handler := auth.Require(RoleStaff, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			t.Error("Claims missing from request context")
		} else if claims.Subject == "" {
			t.Error("Claims subject is empty")
		}
		w.WriteHeader(http.StatusOK)
	}))

	staffToken, err := auth.IssueToken("scanner-1", RoleStaff, time.Hour)
	if err != nil {
		t.Fatalf("Could not issue token: %v", err)
	}
	attendeeToken, err := auth.IssueToken("user-42", RoleAttendee, time.Hour)
	if err != nil {
		t.Fatalf("Could not issue token: %v", err)
	}

	data := []struct {
		name   string
		header string
		status int
	}{
		{"staff_allowed", "Bearer " + staffToken, http.StatusOK},
		{"attendee_forbidden", "Bearer " + attendeeToken, http.StatusForbidden},
		{"missing_header", "", http.StatusUnauthorized},
		{"garbage_token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/checkin/v1/redeem", nil)
			if d.header != "" {
				req.Header.Set("Authorization", d.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != d.status {
				t.Fatalf("Expected status %d, got %d", d.status, rec.Code)
			}
		})
	}
}

func TestRequireAnyAuthenticated(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	auth := NewAuthenticator([]byte("test-jwt-secret"), clock)

	handler := auth.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token, err := auth.IssueToken("user-42", RoleAttendee, time.Hour)
	if err != nil {
		t.Fatalf("Could not issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/checkin/v1/qr", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
}

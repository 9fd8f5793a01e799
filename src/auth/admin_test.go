package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func protectedProbe(tokenHash string) http.Handler {
	return AdminOnly(tokenHash)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestAdminOnly(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("super-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generating hash: %v", err)
	}
	handler := protectedProbe(string(hash))

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"valid token", "super-secret", http.StatusNoContent},
		{"wrong token", "guess", http.StatusForbidden},
		{"missing token", "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/bot-config", nil)
			if c.token != "" {
				req.Header.Set(TokenHeader, c.token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != c.want {
				t.Fatalf("expected status %d, got %d", c.want, rr.Code)
			}
		})
	}
}

func TestAdminOnlyFailsClosedWithoutHash(t *testing.T) {
	handler := protectedProbe("")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/bot-config", nil)
	req.Header.Set(TokenHeader, "anything")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"
	"github.com/stretchr/testify/require"
)

// mintSessionCookie builds a session token the way Auth.js does: claims
// encrypted as a JWE with the HKDF-derived key, A256CBC-HS512 content
// encryption.
func mintSessionCookie(t *testing.T, claims map[string]any) *http.Cookie {
	t.Helper()

	key, err := generateEncryptionKey()
	require.NoError(t, err)

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	encrypted, err := jwe.Encrypt(payload,
		jwe.WithKey(jwa.DIRECT(), key),
		jwe.WithContentEncryption(jwa.A256CBC_HS512()),
	)
	require.NoError(t, err)

	return &http.Cookie{Name: sessionCookie, Value: string(encrypted)}
}

func TestSessionFromRequest(t *testing.T) {
	t.Setenv("AUTH_SECRET", "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/ws/auction", nil)
	req.AddCookie(mintSessionCookie(t, map[string]any{
		"sub":   "user-1",
		"email": "alice@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}))

	session, err := SessionFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, "user-1", session.UserID)
	require.Equal(t, "alice@example.com", session.Email)
}

func TestSessionFromRequestMissingCookie(t *testing.T) {
	t.Setenv("AUTH_SECRET", "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/ws/auction", nil)
	_, err := SessionFromRequest(req)
	require.Error(t, err)
}

func TestSessionFromRequestExpiredToken(t *testing.T) {
	t.Setenv("AUTH_SECRET", "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/ws/auction", nil)
	req.AddCookie(mintSessionCookie(t, map[string]any{
		"sub":   "user-1",
		"email": "alice@example.com",
		"exp":   time.Now().Add(-time.Hour).Unix(),
	}))

	_, err := SessionFromRequest(req)
	require.Error(t, err)
}

func TestSessionFromRequestRequiresIdentityClaims(t *testing.T) {
	t.Setenv("AUTH_SECRET", "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/ws/auction", nil)
	req.AddCookie(mintSessionCookie(t, map[string]any{
		"email": "alice@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}))
	_, err := SessionFromRequest(req)
	require.Error(t, err)

	req = httptest.NewRequest(http.MethodGet, "/ws/auction", nil)
	req.AddCookie(mintSessionCookie(t, map[string]any{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}))
	_, err = SessionFromRequest(req)
	require.Error(t, err)
}

func TestSessionFromRequestTamperedToken(t *testing.T) {
	t.Setenv("AUTH_SECRET", "test-secret")

	cookie := mintSessionCookie(t, map[string]any{
		"sub":   "user-1",
		"email": "alice@example.com",
	})
	cookie.Value = cookie.Value[:len(cookie.Value)-4] + "AAAA"

	req := httptest.NewRequest(http.MethodGet, "/ws/auction", nil)
	req.AddCookie(cookie)
	_, err := SessionFromRequest(req)
	require.Error(t, err)
}

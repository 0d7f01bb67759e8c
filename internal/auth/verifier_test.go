package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hz-Lin/transcendence/internal/auth"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := auth.Claims{
		Name:   "alice",
		Avatar: "alice.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	v := auth.NewJWTVerifier(testSecret)

	identity, err := v.Verify(context.Background(), signedToken(t, testSecret, "10"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), identity.ID)
	assert.Equal(t, "alice", identity.Name)
	assert.Equal(t, "alice.png", identity.Avatar)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v := auth.NewJWTVerifier(testSecret)

	_, err := v.Verify(context.Background(), signedToken(t, "other-secret", "10"))
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestVerifyRejectsEmptyCredential(t *testing.T) {
	v := auth.NewJWTVerifier(testSecret)

	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestVerifyRejectsNonNumericSubject(t *testing.T) {
	v := auth.NewJWTVerifier(testSecret)

	_, err := v.Verify(context.Background(), signedToken(t, testSecret, "alice"))
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestCredentialFromCookie(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: "session-token", Value: "cookie-token"})
	r.Header.Set("Authorization", "Bearer header-token")

	assert.Equal(t, "cookie-token", auth.CredentialFrom(r))
}

func TestCredentialFromHeaderFallback(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer header-token")

	assert.Equal(t, "header-token", auth.CredentialFrom(r))
}

func TestCredentialMissing(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, auth.CredentialFrom(r))
}

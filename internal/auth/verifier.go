package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Hz-Lin/transcendence/pkg/state"
)

// ErrInvalidCredential is returned for any credential that does not resolve
// to a verified identity. The connection presenting it is terminated and
// never registered.
var ErrInvalidCredential = errors.New("invalid credential")

// Verifier resolves a bearer credential to a verified user identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (state.Identity, error)
}

// Claims is the token payload issued by the auth service. The subject claim
// carries the numeric user id.
type Claims struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

var _ Verifier = (*JWTVerifier)(nil)

func (v *JWTVerifier) Verify(_ context.Context, credential string) (state.Identity, error) {
	if credential == "" {
		return state.Identity{}, ErrInvalidCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return state.Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return state.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return state.Identity{}, fmt.Errorf("%w: non-numeric subject", ErrInvalidCredential)
	}

	return state.Identity{
		ID:     userID,
		Name:   claims.Name,
		Avatar: claims.Avatar,
	}, nil
}

// CredentialFrom extracts the bearer credential from the upgrade request:
// the session-token cookie, falling back to the Authorization header.
func CredentialFrom(r *http.Request) string {
	if cookie, err := r.Cookie("session-token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

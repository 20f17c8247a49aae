package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The gateway trusts an externally issued identity; this package only
// verifies it. Tokens are HMAC-signed JWTs carrying the user id, minted by
// whatever owns login. Mint is exported for that service and for tests.

const defaultTokenLifetime = 24 * time.Hour

var ErrInvalidToken = errors.New("identity: invalid token")

// Claims carries the authenticated user identity.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Verifier checks tokens with a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifierFromEnv reads TOKEN_SECRET. Fails instead of falling back to a
// default secret; an unauthenticated relay is the exact gap this closes.
func NewVerifierFromEnv() (*Verifier, error) {
	secret := strings.TrimSpace(os.Getenv("TOKEN_SECRET"))
	if secret == "" {
		return nil, errors.New("identity: TOKEN_SECRET environment variable is not set")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// NewVerifier constructs a Verifier with an explicit secret (tests, embedding).
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates a token string, returning the claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Mint issues a token for userID, signed with the verifier's secret.
func (v *Verifier) Mint(userID string, lifetime time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("identity: user id is required")
	}
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

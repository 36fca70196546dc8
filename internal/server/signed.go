// internal/server/signed.go
package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultStreamExpiry is the default lifetime of a signed stream URL
	// in seconds (1 hour, enough for any single track plus seeking).
	DefaultStreamExpiry = 3600

	// MaxStreamExpiry caps requested lifetimes at 24 hours.
	MaxStreamExpiry = 86400
)

// StreamClaims represents the JWT claims for a signed stream URL. A token
// pins a single file on a single connected session, so a leaked URL cannot
// be replayed against other files or backends.
type StreamClaims struct {
	Backend  string `json:"backend"`
	ClientID string `json:"client_id"`
	Ref      string `json:"ref"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// GenerateStreamToken creates a signed JWT granting stream access to one file.
func GenerateStreamToken(backend, clientID, ref string, expiresIn int, secret string) (string, error) {
	if expiresIn <= 0 {
		expiresIn = DefaultStreamExpiry
	}
	if expiresIn > MaxStreamExpiry {
		expiresIn = MaxStreamExpiry
	}

	now := time.Now()
	claims := StreamClaims{
		Backend:  backend,
		ClientID: clientID,
		Ref:      ref,
		Type:     "stream",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expiresIn) * time.Second)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateStreamToken validates a signed stream URL token.
func ValidateStreamToken(tokenString, secret string) (*StreamClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StreamClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*StreamClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Type != "stream" {
		return nil, fmt.Errorf("invalid token type: expected stream")
	}

	return claims, nil
}

// Package auth mints and validates the HS256 session tokens the API and the
// websocket endpoint trust.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidJWT      = errors.New("invalid JWT token")
	ErrExpiredJWT      = errors.New("JWT token expired")
	ErrUnauthenticated = errors.New("authentication required")
)

const (
	issuer     = "herald"
	sessionTTL = 12 * time.Hour
)

// Claims carries the actor's identity. ClientID is empty for staff roles;
// for the client role it scopes every read and transition.
type Claims struct {
	UserID   string `json:"user_id"`
	ClientID string `json:"client_id,omitempty"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT mints a session token.
func GenerateJWT(userID, clientID, email, role string, secret []byte) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		ClientID: clientID,
		Email:    email,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateJWT parses and verifies a token. Only HMAC signatures are
// accepted; an asserted RS256 header must not downgrade verification.
func ValidateJWT(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredJWT
	case err != nil, !token.Valid:
		return nil, ErrInvalidJWT
	}
	return claims, nil
}

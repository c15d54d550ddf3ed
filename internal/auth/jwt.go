// Package auth signs and verifies the bearer tokens that gate clinician endpoints.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleClinician = "clinician"

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func SignJWT(clinicianID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: RoleClinician,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clinicianID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseJWT returns the clinician id carried by a valid, unexpired HS256 token.
func ParseJWT(token, secret string) (string, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" || claims.Role != RoleClinician {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

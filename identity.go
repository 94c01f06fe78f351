package plume

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// userIDFromToken extracts the subject claim without verifying the
// signature. Verification is the server's job; the client only needs its
// own identity for matching events it originated.
func userIDFromToken(token string) string {
	if token == "" {
		return ""
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// tokenExpired reports whether the token carries an exp claim in the past.
// Tokens without an exp claim are treated as still valid.
func tokenExpired(token string, now time.Time) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

package relay

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL is the bearer credential lifetime. The channel mints a fresh
// token on every Connect, so no renewal path is needed for a single call.
const tokenTTL = 24 * time.Hour

// signBearerToken mints the HMAC-SHA256 credential the relay consumer
// expects at connect time.
func signBearerToken(secret, companyID string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"type":      "bot",
		"companyId": companyID,
		"iat":       now.Unix(),
		"exp":       now.Add(tokenTTL).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign bearer token: %w", err)
	}
	return token, nil
}

package stream

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var errNoSecret = errors.New("stream: API secret is required to sign tokens")

// UserToken signs a token that lets the holder act as userID.
func UserToken(secret, userID string) (string, error) {
	if secret == "" {
		return "", errNoSecret
	}
	if userID == "" {
		return "", errors.New("stream: user id is required")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID}).SignedString([]byte(secret))
}

// ServerToken signs a server-side token for admin endpoints such as user upserts.
func ServerToken(secret string) (string, error) {
	if secret == "" {
		return "", errNoSecret
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"server": true}).SignedString([]byte(secret))
}

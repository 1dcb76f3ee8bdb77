// Package identity tells the feed who is looking at it.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("identity: invalid token")

// Provider returns the current viewer, or false when nobody is signed in.
type Provider interface {
	CurrentUserID() (string, bool)
}

// Static always reports the same viewer. An empty ID means signed out.
type Static string

func (s Static) CurrentUserID() (string, bool) {
	return string(s), s != ""
}

// Claims is the token payload. UserID is the only claim the feed needs.
type Claims struct {
	Username string `json:"username,omitempty"`
	UserID   string `json:"user_id"`
	jwt.StandardClaims
}

// JWT is a provider backed by a verified HS256 token.
type JWT struct {
	userID string
}

// NewJWT verifies token with secret and extracts the user_id claim.
func NewJWT(token, secret string) (*JWT, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return &JWT{userID: claims.UserID}, nil
}

func (j *JWT) CurrentUserID() (string, bool) {
	return j.userID, j.userID != ""
}

// Sign issues a token for userID valid for ttl. A zero ttl never expires; a
// negative one is already expired.
func Sign(userID, username, secret string, ttl time.Duration) (string, error) {
	claims := &Claims{Username: username, UserID: userID}
	if ttl != 0 {
		claims.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return s, nil
}

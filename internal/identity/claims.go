package identity

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("malformed token")

// Claims are the fields read from an already introspected access token.
type Claims struct {
	jwt.RegisteredClaims
	ClientID          string `json:"azp,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Scope             string `json:"scope,omitempty"`
}

// ParseClaims decodes token without checking its signature. Only call it on
// tokens the provider has confirmed active.
func ParseClaims(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrMalformedToken, err)
	}
	return claims, nil
}

// Principal is the best available name for the caller.
func (c *Claims) Principal() string {
	switch {
	case c.PreferredUsername != "":
		return c.PreferredUsername
	case c.Subject != "":
		return c.Subject
	default:
		return c.ClientID
	}
}

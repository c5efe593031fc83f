package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims accessplane issues and accepts. The subject is
// the user id the authorization core evaluates.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthContext holds the identity resolved from a bearer token
type AuthContext struct {
	UserID    string
	Name      string
	Email     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether the context carries a user
func (ac *AuthContext) Authenticated() bool {
	return ac != nil && ac.UserID != ""
}

package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller as reported by the identity provider.
// ID is opaque and stable; FirstName may be empty.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// TokenClaims represents the JWT token claims
type TokenClaims struct {
	Subject   string `json:"sub,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Type      string `json:"type"` // only "access" is accepted
	Exp       int64  `json:"exp"`
	Iat       int64  `json:"iat"`
}

// Identity 从claims构建调用者身份；user_id 优先，其次 sub
func (c *TokenClaims) Identity() *Identity {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return &Identity{
		ID:        id,
		Email:     c.Email,
		FirstName: c.FirstName,
	}
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	if c.Subject != "" {
		return c.Subject, nil
	}
	return c.UserID, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

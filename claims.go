package authsession

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// IDClaims are the identity claims carried by a Firebase ID token
type IDClaims struct {
	jwt.RegisteredClaims
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	AuthTime      int64  `json:"auth_time,omitempty"`
}

// ParseIDClaims decodes an ID token without verifying its signature. The
// claims are for display only; the data store verifies the token itself.
func ParseIDClaims(idToken string) (*IDClaims, error) {
	claims := &IDClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode id token: %w", err)
	}
	return claims, nil
}

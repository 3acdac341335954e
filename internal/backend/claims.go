package backend

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the parts of a JWT credential the gateway cares about. They are
// read without verifying the signature and only drive scheduling and logs.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// ParseClaims decodes token as an unverified JWT. ok is false when token is
// not a JWT.
func ParseClaims(token string) (Claims, bool) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, false
	}
	var c Claims
	c.Subject = rc.Subject
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	return c, true
}

package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CallTokenIssuer signs transport join tokens for call sessions. The
// token binds the channel, the party's numeric transport uid and its
// role, so a client cannot join as the other party.
type CallTokenIssuer struct {
	secret []byte
}

// NewCallTokenIssuer creates a token issuer with the given signing secret.
func NewCallTokenIssuer(secret string) *CallTokenIssuer {
	return &CallTokenIssuer{secret: []byte(secret)}
}

type callTokenClaims struct {
	Channel string `json:"channel"`
	UID     uint32 `json:"uid"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a time-limited join token for one party of a call.
func (i *CallTokenIssuer) Issue(channel string, uid uint32, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := callTokenClaims{
		Channel: channel,
		UID:     uid,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   channel,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

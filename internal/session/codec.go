package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Codec signs session ids into tamper-evident cookie values.
type Codec struct {
	secret string
	ttl    time.Duration
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: secret, ttl: TTL}
}

func (c *Codec) Encode(sessionID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(c.ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(c.secret))
}

func (c *Codec) Decode(token string) (string, error) {
	t, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(c.secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := t.Claims.(*jwt.RegisteredClaims)
	if !ok || !t.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}

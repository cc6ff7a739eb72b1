package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies the client behind a raw-pcm audio socket.
type Claims struct {
	ClientID string `json:"clientId"`
	jwt.RegisteredClaims
}

// Validator checks bearer tokens on the browser-facing socket. The
// telephony leg authenticates at the network level and bypasses it.
type Validator struct {
	secret  []byte
	issuer  string
	enabled bool
}

func NewValidator(cfg config.AuthConfig) *Validator {
	return &Validator{
		secret:  []byte(cfg.JWTSecret),
		issuer:  cfg.Issuer,
		enabled: cfg.Enabled,
	}
}

// Enabled reports whether tokens are required at all.
func (v *Validator) Enabled() bool {
	return v.enabled
}

// Validate parses and checks one bearer token.
func (v *Validator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs a token for a client, mainly for tooling and tests.
func (v *Validator) Issue(clientID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   clientID,
			Issuer:    v.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

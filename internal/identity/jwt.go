// Package identity verifies bearer tokens and yields the stable account
// identity the engine keys everything on.
package identity

import (
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/inkwellhq/inkwell/internal/clock"
	"github.com/inkwellhq/inkwell/internal/config"
	"go.uber.org/fx"
)

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrExpiredToken = errors.New("expired_token")
)

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the resolved caller. Tenant scope is NOT part of it:
// tenant access is decided per request by the access resolver.
type Identity struct {
	UserID snowflake.ID
	Email  string
}

type Provider struct {
	secret []byte
	expiry time.Duration
	clk    clock.Clock
}

func NewProvider(cfg config.Config, clk clock.Clock) *Provider {
	return &Provider{
		secret: []byte(cfg.AuthJWTSecret),
		expiry: 24 * time.Hour,
		clk:    clk,
	}
}

func (p *Provider) IssueToken(userID snowflake.ID, email string) (string, error) {
	now := p.clk.Now()
	claims := Claims{
		UserID: userID.String(),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "inkwell",
			Subject:   userID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

func (p *Provider) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.clk.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || userID == 0 {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: snowflake.ID(userID), Email: claims.Email}, nil
}

var Module = fx.Module("identity",
	fx.Provide(NewProvider),
)

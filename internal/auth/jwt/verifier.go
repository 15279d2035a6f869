package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	gojwt "github.com/golang-jwt/jwt/v5"
	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
	"github.com/smallbiznis/munitax/internal/clock"
	"github.com/smallbiznis/munitax/internal/config"
)

// Claims is the bearer token body issued by the identity service.
type Claims struct {
	Role          string `json:"role"`
	AccountStatus string `json:"account_status"`
	gojwt.RegisteredClaims
}

// Verifier turns HS256 bearer tokens into principals.
type Verifier struct {
	secret []byte
	clock  clock.Clock
}

func NewVerifier(cfg config.Config, clk clock.Clock) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}
	return &Verifier{secret: []byte(secret), clock: clk}, nil
}

func (v *Verifier) Verify(raw string) (authdomain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return authdomain.Principal{}, authdomain.ErrMissingToken
	}

	var claims Claims
	_, err := gojwt.ParseWithClaims(raw, &claims, func(token *gojwt.Token) (any, error) {
		return v.secret, nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithTimeFunc(v.clock.Now),
		gojwt.WithExpirationRequired(),
	)
	if err != nil {
		return authdomain.Principal{}, fmt.Errorf("%w: %v", authdomain.ErrInvalidToken, err)
	}

	id, err := snowflake.ParseString(claims.Subject)
	if err != nil || id == 0 {
		return authdomain.Principal{}, fmt.Errorf("%w: bad subject", authdomain.ErrInvalidToken)
	}
	role, err := authdomain.ParseRole(claims.Role)
	if err != nil {
		return authdomain.Principal{}, fmt.Errorf("%w: %v", authdomain.ErrInvalidToken, err)
	}
	status := strings.TrimSpace(claims.AccountStatus)
	if status == "" {
		status = authdomain.AccountStatusActive
	}

	return authdomain.Principal{ID: id, Role: role, AccountStatus: status}, nil
}

// Issue signs a token for p. The identity service owns issuance in production;
// this is used by local tooling and tests.
func (v *Verifier) Issue(p authdomain.Principal, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := Claims{
		Role:          string(p.Role),
		AccountStatus: p.AccountStatus,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(v.secret)
}

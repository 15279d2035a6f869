// Package domain holds the authenticated caller as seen by the payment core.
package domain

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleTaxpayer      Role = "taxpayer"
	RoleOfficer       Role = "officer"
	RoleAdministrator Role = "administrator"
)

// AccountStatusActive is the only principal status allowed to mutate payments.
const AccountStatusActive = "Active"

type Principal struct {
	ID            snowflake.ID
	Role          Role
	AccountStatus string
}

func (p Principal) IsAdministrator() bool {
	return p.Role == RoleAdministrator
}

// CanViewAll reports whether the principal may read records owned by others.
func (p Principal) CanViewAll() bool {
	return p.Role == RoleOfficer || p.Role == RoleAdministrator
}

func (p Principal) IsActive() bool {
	return strings.EqualFold(strings.TrimSpace(p.AccountStatus), AccountStatusActive)
}

func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleTaxpayer:
		return RoleTaxpayer, nil
	case RoleOfficer:
		return RoleOfficer, nil
	case RoleAdministrator, "admin":
		return RoleAdministrator, nil
	default:
		return "", ErrInvalidRole
	}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

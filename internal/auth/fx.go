package auth

import (
	"github.com/smallbiznis/munitax/internal/auth/jwt"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.jwt",
	fx.Provide(jwt.NewVerifier),
)

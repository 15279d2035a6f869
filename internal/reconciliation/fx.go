package reconciliation

import (
	paymentdomain "github.com/smallbiznis/munitax/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation",
	fx.Provide(
		fx.Annotate(NewCoordinator, fx.As(new(paymentdomain.Reconciler))),
	),
)

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/munitax/internal/auth"
	"github.com/smallbiznis/munitax/internal/authorization"
	"github.com/smallbiznis/munitax/internal/clock"
	"github.com/smallbiznis/munitax/internal/config"
	"github.com/smallbiznis/munitax/internal/ledger"
	"github.com/smallbiznis/munitax/internal/locking"
	"github.com/smallbiznis/munitax/internal/migration"
	"github.com/smallbiznis/munitax/internal/observability"
	"github.com/smallbiznis/munitax/internal/payment"
	"github.com/smallbiznis/munitax/internal/reconciliation"
	"github.com/smallbiznis/munitax/internal/reference"
	"github.com/smallbiznis/munitax/internal/server"
	"github.com/smallbiznis/munitax/internal/tax"
	"github.com/smallbiznis/munitax/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locking.Module,
		auth.Module,
		authorization.Module,

		// Functional Domains
		tax.Module,
		ledger.Module,
		reference.Module,
		reconciliation.Module,
		payment.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

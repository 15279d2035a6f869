package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/munitax/internal/config"
	"github.com/smallbiznis/munitax/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if err := Apply(conn); err != nil {
			return err
		}

		if !cfg.SeedDefaults {
			return nil
		}
		created, err := seed.EnsureDefaultCategories(context.Background(), conn, node)
		if err != nil {
			return err
		}
		if created > 0 {
			log.Info("seeded default tax categories", zap.Int("created", created))
		}
		return nil
	}),
)

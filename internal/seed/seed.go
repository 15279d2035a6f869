package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/munitax/internal/tax/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type defaultCategory struct {
	Name        string
	Description string
}

// Order matters: the first active category is the fallback for new accounts.
var defaultCategories = []defaultCategory{
	{Name: "Property Tax", Description: "Annual property tax for residential and commercial properties"},
	{Name: "Business License", Description: "Annual business license fee"},
	{Name: "Service Levy", Description: "Service levy for municipal services"},
	{Name: "Market Fees", Description: "Fees for market stalls and trading"},
	{Name: "Parking Fees", Description: "Parking fees for municipal parking lots"},
}

// EnsureDefaultCategories inserts the default tax categories that are missing
// by name and reports how many rows it created. Existing rows are left as-is.
func EnsureDefaultCategories(ctx context.Context, db *gorm.DB, node *snowflake.Node) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}

	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range defaultCategories {
			now := time.Now().UTC()
			description := def.Description
			row := taxdomain.TaxCategory{
				ID:            node.Generate(),
				Name:          def.Name,
				Description:   &description,
				DefaultAmount: decimal.Zero,
				IsActive:      true,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoNothing: true,
			}).Create(&row)
			if result.Error != nil {
				return result.Error
			}
			created += int(result.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

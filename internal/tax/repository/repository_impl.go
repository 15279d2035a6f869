package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/munitax/internal/tax/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) taxdomain.Repository {
	return &repository{db: db}
}

const selectColumns = `SELECT id, name, description, default_amount, is_active, created_at, updated_at
	FROM tax_categories`

// FirstActive returns the oldest active category, or nil when none exist.
func (r *repository) FirstActive(ctx context.Context) (*taxdomain.TaxCategory, error) {
	var category taxdomain.TaxCategory
	err := r.db.WithContext(ctx).Raw(
		selectColumns+`
		 WHERE is_active = ?
		 ORDER BY id ASC
		 LIMIT 1`,
		true,
	).Scan(&category).Error
	if err != nil {
		return nil, err
	}
	if category.ID == 0 {
		return nil, nil
	}
	return &category, nil
}

func (r *repository) Create(ctx context.Context, category *taxdomain.TaxCategory) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tax_categories (
			id, name, description, default_amount, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		category.ID,
		category.Name,
		category.Description,
		category.DefaultAmount,
		category.IsActive,
		category.CreatedAt,
		category.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*taxdomain.TaxCategory, error) {
	var category taxdomain.TaxCategory
	err := r.db.WithContext(ctx).Raw(selectColumns+` WHERE id = ?`, id).Scan(&category).Error
	if err != nil {
		return nil, err
	}
	if category.ID == 0 {
		return nil, nil
	}
	return &category, nil
}

func (r *repository) List(ctx context.Context, filter taxdomain.ListRequest) ([]taxdomain.TaxCategory, error) {
	var items []taxdomain.TaxCategory
	stmt := r.db.WithContext(ctx).Model(&taxdomain.TaxCategory{})

	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}

	if err := stmt.Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Update(ctx context.Context, category *taxdomain.TaxCategory) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE tax_categories
		 SET name = ?, description = ?, default_amount = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		category.Name,
		category.Description,
		category.DefaultAmount,
		category.IsActive,
		category.UpdatedAt,
		category.ID,
	).Error
}

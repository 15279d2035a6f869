package service

import (
	"context"

	taxdomain "github.com/smallbiznis/munitax/internal/tax/domain"
	"go.uber.org/fx"
)

type resolverParam struct {
	fx.In

	Repository taxdomain.Repository
}

type resolver struct {
	repo taxdomain.Repository
}

func NewResolver(p resolverParam) taxdomain.Resolver {
	return &resolver{repo: p.Repository}
}

// DefaultCategory returns the first active category by creation order.
func (r *resolver) DefaultCategory(ctx context.Context) (*taxdomain.TaxCategory, error) {
	category, err := r.repo.FirstActive(ctx)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, taxdomain.ErrNoDefaultCategory
	}
	return category, nil
}

package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
	"github.com/smallbiznis/munitax/internal/clock"
	taxdomain "github.com/smallbiznis/munitax/internal/tax/domain"
	"github.com/smallbiznis/munitax/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type serviceParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  taxdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  taxdomain.Repository
}

func NewService(p serviceParams) taxdomain.Service {
	return &Service{
		log:   p.Log.Named("tax.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req taxdomain.ListRequest) ([]taxdomain.Response, error) {
	filter := taxdomain.ListRequest{
		Name:     strings.TrimSpace(req.Name),
		IsActive: req.IsActive,
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]taxdomain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(&item))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req taxdomain.CreateRequest) (*taxdomain.Response, error) {
	if err := requireAdministrator(ctx); err != nil {
		return nil, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	now := s.clock.Now()
	record := &taxdomain.TaxCategory{
		ID:            s.genID.Generate(),
		Name:          strings.TrimSpace(req.Name),
		Description:   normalizeDescription(req.Description),
		DefaultAmount: req.DefaultAmount.Round(2),
		IsActive:      isActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, taxdomain.ErrDuplicateName
		}
		return nil, err
	}

	s.log.Info("tax category created",
		zap.String("tax_category_id", record.ID.String()),
		zap.String("name", record.Name),
	)
	resp := toResponse(record)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req taxdomain.UpdateRequest) (*taxdomain.Response, error) {
	if err := requireAdministrator(ctx); err != nil {
		return nil, err
	}

	item, err := s.find(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		item.Description = normalizeDescription(req.Description)
	}
	// accounts already opened keep their balance; only new accounts see the change
	if req.DefaultAmount != nil {
		item.DefaultAmount = req.DefaultAmount.Round(2)
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, taxdomain.ErrDuplicateName
		}
		return nil, err
	}

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Disable(ctx context.Context, id string) (*taxdomain.Response, error) {
	if err := requireAdministrator(ctx); err != nil {
		return nil, err
	}

	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	item.IsActive = false
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) find(ctx context.Context, rawID string) (*taxdomain.TaxCategory, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil {
		return nil, taxdomain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, taxdomain.ErrNotFound
	}
	return item, nil
}

func requireAdministrator(ctx context.Context) error {
	principal, ok := authdomain.PrincipalFromContext(ctx)
	if !ok || !principal.IsAdministrator() || !principal.IsActive() {
		return taxdomain.ErrPermissionDenied
	}
	return nil
}

func toResponse(c *taxdomain.TaxCategory) taxdomain.Response {
	return taxdomain.Response{
		ID:            c.ID.String(),
		Name:          c.Name,
		Description:   c.Description,
		DefaultAmount: c.DefaultAmount,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func normalizeDescription(value *string) *string {
	if value == nil {
		return nil
	}
	description := strings.TrimSpace(*value)
	if description == "" {
		return nil
	}
	return &description
}

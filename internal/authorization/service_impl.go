package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads role policies from the casbin_rule table and makes sure
// the built-in grants are present.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

func newEnforcer(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor authdomain.Principal, object string, action string) error {
	if actor.ID == 0 || strings.TrimSpace(string(actor.Role)) == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(actor.Role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor_id", actor.ID.String()),
			zap.String("role", string(actor.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func roleSubject(role authdomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	taxpayer := roleSubject(authdomain.RoleTaxpayer)
	officer := roleSubject(authdomain.RoleOfficer)
	administrator := roleSubject(authdomain.RoleAdministrator)

	policies := [][]string{
		// Taxpayer permissions (own records)
		{taxpayer, ObjectPayment, ActionPaymentCreate},
		{taxpayer, ObjectPayment, ActionPaymentSubmit},
		{taxpayer, ObjectPayment, ActionPaymentView},
		{taxpayer, ObjectTaxAccount, ActionTaxAccountView},
		{taxpayer, ObjectTaxCategory, ActionTaxCategoryView},

		// Officer permissions (read-only oversight)
		{officer, ObjectPayment, ActionPaymentViewAll},
		{officer, ObjectTaxAccount, ActionTaxAccountViewAll},

		// Administrator permissions
		{administrator, ObjectPayment, ActionPaymentApprove},
		{administrator, ObjectPayment, ActionPaymentReject},
		{administrator, ObjectPayment, ActionPaymentComplete},
		{administrator, ObjectTaxAccount, ActionTaxAccountAdjust},
		{administrator, ObjectTaxCategory, ActionTaxCategoryManage},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{officer, taxpayer},
		{administrator, officer},
	}
	for _, grouping := range groupings {
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}

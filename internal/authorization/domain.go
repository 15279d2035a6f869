package authorization

import (
	"context"
	"errors"

	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	ObjectPayment     = "payment"
	ObjectTaxAccount  = "tax_account"
	ObjectTaxCategory = "tax_category"
)

const (
	ActionPaymentCreate   = "payment.create"
	ActionPaymentSubmit   = "payment.submit"
	ActionPaymentView     = "payment.view"
	ActionPaymentViewAll  = "payment.view_all"
	ActionPaymentApprove  = "payment.approve"
	ActionPaymentReject   = "payment.reject"
	ActionPaymentComplete = "payment.complete"

	ActionTaxAccountView    = "tax_account.view"
	ActionTaxAccountViewAll = "tax_account.view_all"
	ActionTaxAccountAdjust  = "tax_account.adjust"

	ActionTaxCategoryView   = "tax_category.view"
	ActionTaxCategoryManage = "tax_category.manage"
)

// Service decides whether a principal's role grants an action on an object.
type Service interface {
	Authorize(ctx context.Context, actor authdomain.Principal, object string, action string) error
}

package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/munitax/internal/payment/domain"
	taxdomain "github.com/smallbiznis/munitax/internal/tax/domain"
	"github.com/smallbiznis/munitax/pkg/db/pagination"
	"gorm.io/gorm"
)

// retryAfterSeconds is advertised on 503 responses caused by lock contention.
const retryAfterSeconds = 1

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusServiceUnavailable {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger the same type and code the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    vErr.Errors[0].Code,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fieldErr *paymentdomain.FieldError
	if errors.As(err, &fieldErr) {
		code := codeOf(fieldErr.Err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   fieldErr.Field,
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if field, ok := validationField(err); ok {
		code := codeOf(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   field,
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrMissingToken),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrInvalidRole):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Code:    codeOf(err),
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, paymentdomain.ErrPermissionDenied),
		errors.Is(err, ledgerdomain.ErrPermissionDenied),
		errors.Is(err, taxdomain.ErrPermissionDenied):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Code:    "permission_denied",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrAlreadyCompleted):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    "already_completed",
			Message: "payment is already completed",
		}
	case errors.Is(err, paymentdomain.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    "invalid_transition",
			Message: "payment is not in a state that allows this action",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, taxdomain.ErrDuplicateName):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    codeOf(err),
			Message: "conflict",
		}
	case errors.Is(err, paymentdomain.ErrConcurrencyTimeout),
		errors.Is(err, ledgerdomain.ErrConcurrencyTimeout):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "concurrency_error",
			Code:    "concurrency_timeout",
			Message: "the account is busy, retry shortly",
		}
	case errors.Is(err, paymentdomain.ErrGenerationFailed),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Code:    codeOf(err),
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil && len(vErr.Errors) > 0 {
		return vErr
	}
	return nil
}

// validationField attributes bare domain validation sentinels to a request field.
func validationField(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "request", true
	case errors.Is(err, paymentdomain.ErrInvalidID),
		errors.Is(err, ledgerdomain.ErrInvalidID),
		errors.Is(err, taxdomain.ErrInvalidID):
		return "id", true
	case errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidAmount):
		return "amount", true
	case errors.Is(err, paymentdomain.ErrInvalidMethod):
		return "method", true
	case errors.Is(err, paymentdomain.ErrInvalidState):
		return "state", true
	case errors.Is(err, paymentdomain.ErrRejectionReasonRequired):
		return "rejection_reason", true
	case errors.Is(err, ledgerdomain.ErrInvalidStatus):
		return "status", true
	case errors.Is(err, ledgerdomain.ErrInvalidOwner):
		return "owner_id", true
	case errors.Is(err, taxdomain.ErrInvalidName):
		return "name", true
	case errors.Is(err, taxdomain.ErrInvalidDefaultAmount):
		return "default_amount", true
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "page_token", true
	default:
		return "", false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, taxdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// codeOf returns the snake_case code of the innermost sentinel.
func codeOf(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "amount_below_outstanding":
		return "amount is below the outstanding balance"
	case "unknown_or_consumed_control_number":
		return "control number is unknown or no longer pending"
	case "account_not_owned":
		return "tax account does not belong to the caller"
	case "rejection_reason_required":
		return "a rejection reason is required"
	default:
		return "invalid value"
	}
}

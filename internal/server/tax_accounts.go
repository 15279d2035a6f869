package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
)

type taxAccountResponse struct {
	ID            string                     `json:"id"`
	OwnerID       string                     `json:"owner_id"`
	TaxCategoryID *string                    `json:"tax_category_id,omitempty"`
	TotalDue      decimal.Decimal            `json:"total_due"`
	PaidAmount    decimal.Decimal            `json:"paid_amount"`
	Outstanding   decimal.Decimal            `json:"outstanding"`
	Status        ledgerdomain.AccountStatus `json:"status"`
	NextDueDate   *time.Time                 `json:"next_due_date,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

type adjustTaxAccountRequest struct {
	TotalDue    *decimal.Decimal `json:"total_due"`
	PaidAmount  *decimal.Decimal `json:"paid_amount"`
	NextDueDate *string          `json:"next_due_date"`
	Status      *string          `json:"status"`
}

func toTaxAccountResponse(acc *ledgerdomain.TaxAccount) taxAccountResponse {
	resp := taxAccountResponse{
		ID:          acc.ID.String(),
		OwnerID:     acc.OwnerID.String(),
		TotalDue:    acc.TotalDue,
		PaidAmount:  acc.PaidAmount,
		Outstanding: acc.Outstanding,
		Status:      acc.Status,
		NextDueDate: acc.NextDueDate,
		CreatedAt:   acc.CreatedAt,
		UpdatedAt:   acc.UpdatedAt,
	}
	if acc.TaxCategoryID != nil {
		id := acc.TaxCategoryID.String()
		resp.TaxCategoryID = &id
	}
	return resp
}

func (s *Server) GetTaxAccountSummary(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	summary, err := s.ledgerSvc.Summary(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetTaxAccount(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	acc, err := s.ledgerSvc.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toTaxAccountResponse(acc)})
}

func (s *Server) AdjustTaxAccount(c *gin.Context) {
	principal, _ := principalFrom(c)

	var req adjustTaxAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	nextDue, err := parseOptionalTime(stringValue(req.NextDueDate), false)
	if err != nil {
		AbortWithError(c, newValidationError("next_due_date", "invalid_next_due_date", "invalid next_due_date"))
		return
	}

	adjust := ledgerdomain.AdjustRequest{
		AccountID:   c.Param("id"),
		TotalDue:    req.TotalDue,
		PaidAmount:  req.PaidAmount,
		NextDueDate: nextDue,
	}
	if req.Status != nil {
		status := ledgerdomain.AccountStatus(*req.Status)
		adjust.Status = &status
	}

	acc, err := s.ledgerSvc.Adjust(c.Request.Context(), principal, adjust)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toTaxAccountResponse(acc)})
}

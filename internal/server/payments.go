package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/fleetrent/internal/payment/domain"
)

type confirmPaymentRequest struct {
	PaymentMode string           `json:"paymentMode"`
	PaymentType string           `json:"paymentType"`
	PaidAmount  *decimal.Decimal `json:"paidAmount"`
}

// ConfirmManualPayment records a payment taken by an operator. Without
// paidAmount the full outstanding total is settled.
func (s *Server) ConfirmManualPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reconciler.ConfirmManualPayment(c.Request.Context(), strings.TrimSpace(c.Param("id")), paymentdomain.ManualPayment{
		PaymentMode: strings.TrimSpace(req.PaymentMode),
		PaymentType: strings.TrimSpace(req.PaymentType),
		PaidAmount:  req.PaidAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConfirmGatewayPayment(c *gin.Context) {
	var req paymentdomain.GatewayOutcome
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reconciler.ConfirmGatewayPayment(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type chargeRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (s *Server) RecordAdjustment(c *gin.Context) {
	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reconciler.RecordAdjustment(c.Request.Context(), strings.TrimSpace(c.Param("id")), paymentdomain.ChargeRequest{
		Amount: req.Amount,
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordExtraCharge(c *gin.Context) {
	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reconciler.RecordExtraCharge(c.Request.Context(), strings.TrimSpace(c.Param("id")), paymentdomain.ChargeRequest{
		Amount: req.Amount,
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

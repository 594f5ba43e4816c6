package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	walletdomain "github.com/smallbiznis/fleetrent/internal/wallet/domain"
	"github.com/smallbiznis/fleetrent/pkg/db/pagination"
)

func (s *Server) GetWallet(c *gin.Context) {
	resp, err := s.walletSvc.Get(c.Request.Context(), c.Param("phone"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListWalletTransactions(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.ListTransactions(c.Request.Context(), walletdomain.ListTransactionsRequest{
		Phone:      c.Param("phone"),
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type walletTransactionRequest struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	SubjectType string          `json:"subjectType"`
}

func (s *Server) CreateWalletTransaction(c *gin.Context) {
	var req walletTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.Apply(c.Request.Context(), walletdomain.ApplyRequest{
		Phone:       c.Param("phone"),
		Type:        strings.TrimSpace(req.Type),
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
		SubjectType: strings.TrimSpace(req.SubjectType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

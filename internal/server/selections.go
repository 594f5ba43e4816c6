package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
)

type createSelectionRequest struct {
	SubjectMobile    string                `json:"subjectMobile"`
	SubjectID        string                `json:"subjectId"`
	SubjectType      string                `json:"subjectType"`
	PlanID           string                `json:"planId"`
	PlanName         string                `json:"planName"`
	PlanType         string                `json:"planType"`
	SecurityDeposit  decimal.Decimal       `json:"securityDeposit"`
	RentSlabs        []plandomain.PlanSlab `json:"rentSlabs"`
	SelectedRentSlab plandomain.PlanSlab   `json:"selectedRentSlab"`
}

func (s *Server) CreateSelection(c *gin.Context) {
	var req createSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.selectionSvc.Create(c.Request.Context(), selectiondomain.CreateSelectionRequest{
		SubjectMobile:    strings.TrimSpace(req.SubjectMobile),
		SubjectID:        strings.TrimSpace(req.SubjectID),
		SubjectType:      strings.TrimSpace(req.SubjectType),
		PlanID:           strings.TrimSpace(req.PlanID),
		PlanName:         strings.TrimSpace(req.PlanName),
		PlanType:         strings.TrimSpace(req.PlanType),
		SecurityDeposit:  req.SecurityDeposit,
		RentSlabs:        req.RentSlabs,
		SelectedRentSlab: req.SelectedRentSlab,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListSelections(c *gin.Context) {
	var query struct {
		SubjectID     string `form:"subjectId"`
		SubjectMobile string `form:"subjectMobile"`
		Status        string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.selectionSvc.List(c.Request.Context(), selectiondomain.ListSelectionRequest{
		SubjectID:     strings.TrimSpace(query.SubjectID),
		SubjectMobile: strings.TrimSpace(query.SubjectMobile),
		Status:        strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSelection(c *gin.Context) {
	resp, err := s.selectionSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRentSummary(c *gin.Context) {
	asOf, err := parseOptionalTime(c.Query("asOf"))
	if err != nil {
		AbortWithError(c, selectiondomain.ErrInvalidAsOf)
		return
	}

	resp, err := s.selectionSvc.RentSummary(c.Request.Context(), strings.TrimSpace(c.Param("id")), asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecomputeSelection(c *gin.Context) {
	resp, err := s.selectionSvc.Recompute(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type accrualEventRequest struct {
	At string `json:"at"`
}

// bindAccrualTime reads an optional event time; an empty body means now.
func bindAccrualTime(c *gin.Context) (*time.Time, bool) {
	var req accrualEventRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return nil, false
		}
	}
	at, err := parseOptionalTime(req.At)
	if err != nil {
		AbortWithError(c, newValidationError("at", "invalid_at", "invalid at"))
		return nil, false
	}
	return at, true
}

func (s *Server) PauseAccrual(c *gin.Context) {
	pausedAt, ok := bindAccrualTime(c)
	if !ok {
		return
	}

	resp, err := s.selectionSvc.PauseAccrual(c.Request.Context(), strings.TrimSpace(c.Param("id")), pausedAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ResumeAccrual(c *gin.Context) {
	resumedAt, ok := bindAccrualTime(c)
	if !ok {
		return
	}

	resp, err := s.selectionSvc.ResumeAccrual(c.Request.Context(), strings.TrimSpace(c.Param("id")), resumedAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (s *Server) TransitionSelection(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.selectionSvc.Transition(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

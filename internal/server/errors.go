package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/fleetrent/internal/payment/domain"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
	"github.com/smallbiznis/fleetrent/internal/ratelimit"
	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
	walletdomain "github.com/smallbiznis/fleetrent/internal/wallet/domain"
	"github.com/smallbiznis/fleetrent/pkg/db/pagination"
	"gorm.io/gorm"
)

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
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
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
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the response type and a stable code for request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if payload.Type != "internal_error" {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	case isPlanValidationError(err),
		isSelectionValidationError(err),
		isPaymentValidationError(err),
		isWalletValidationError(err):
		return true
	default:
		return false
	}
}

func isPlanValidationError(err error) bool {
	switch {
	case errors.Is(err, plandomain.ErrInvalidPlanType),
		errors.Is(err, plandomain.ErrInvalidPlanID),
		errors.Is(err, plandomain.ErrInvalidPlanCode),
		errors.Is(err, plandomain.ErrInvalidPlanName),
		errors.Is(err, plandomain.ErrInvalidDeposit),
		errors.Is(err, plandomain.ErrInvalidSlab):
		return true
	default:
		return false
	}
}

func isSelectionValidationError(err error) bool {
	switch {
	case errors.Is(err, selectiondomain.ErrInvalidSelectionID),
		errors.Is(err, selectiondomain.ErrInvalidSubjectMobile),
		errors.Is(err, selectiondomain.ErrInvalidSubjectType),
		errors.Is(err, selectiondomain.ErrInvalidSubject),
		errors.Is(err, selectiondomain.ErrInvalidPlanName),
		errors.Is(err, selectiondomain.ErrInvalidPlanID),
		errors.Is(err, selectiondomain.ErrInvalidSecurityDeposit),
		errors.Is(err, selectiondomain.ErrInvalidSelectedSlab),
		errors.Is(err, selectiondomain.ErrInvalidStatus),
		errors.Is(err, selectiondomain.ErrInvalidPaymentMode),
		errors.Is(err, selectiondomain.ErrInvalidPaymentType),
		errors.Is(err, selectiondomain.ErrInvalidGatewayStatus),
		errors.Is(err, selectiondomain.ErrInvalidAsOf),
		errors.Is(err, selectiondomain.ErrInvalidTransition),
		errors.Is(err, selectiondomain.ErrSelectionClosed):
		return true
	default:
		return false
	}
}

func isPaymentValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidGateway),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidSelectionRef),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidTransactionID),
		errors.Is(err, paymentdomain.ErrNothingOutstanding),
		errors.Is(err, paymentdomain.ErrInvalidReason):
		return true
	default:
		return false
	}
}

func isWalletValidationError(err error) bool {
	switch {
	case errors.Is(err, walletdomain.ErrInvalidPhone),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, walletdomain.ErrInvalidDescription),
		errors.Is(err, walletdomain.ErrInvalidTransactionType),
		errors.Is(err, walletdomain.ErrInvalidSubjectType):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, selectiondomain.ErrConcurrentModification),
		errors.Is(err, walletdomain.ErrConcurrentModification),
		ratelimit.IsLockTimeout(err):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrNotFound),
		errors.Is(err, plandomain.ErrSlabNotFound),
		errors.Is(err, selectiondomain.ErrNotFound),
		errors.Is(err, walletdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "selection_closed":
		return "selection is closed"
	case "nothing_outstanding":
		return "nothing outstanding"
	default:
		return "invalid value"
	}
}

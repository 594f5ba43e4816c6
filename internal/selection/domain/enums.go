package domain

import "strings"

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(value string) (Status, error) {
	switch Status(normalize(value)) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", ErrInvalidStatus
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var allowedTransitions = map[Status][]Status{
	StatusActive:   {StatusInactive, StatusCompleted, StatusCancelled},
	StatusInactive: {StatusActive, StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an enrollment may move from s to target.
func (s Status) CanTransition(target Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type PaymentMode string

const (
	PaymentModeOnline PaymentMode = "online"
	PaymentModeCash   PaymentMode = "cash"
)

func ParsePaymentMode(value string) (PaymentMode, error) {
	switch PaymentMode(normalize(value)) {
	case PaymentModeOnline:
		return PaymentModeOnline, nil
	case PaymentModeCash:
		return PaymentModeCash, nil
	default:
		return "", ErrInvalidPaymentMode
	}
}

type PaymentType string

const (
	PaymentTypeRent     PaymentType = "rent"
	PaymentTypeSecurity PaymentType = "security"
	PaymentTypeDeposit  PaymentType = "deposit"
)

func ParsePaymentType(value string) (PaymentType, error) {
	switch PaymentType(normalize(value)) {
	case PaymentTypeRent:
		return PaymentTypeRent, nil
	case PaymentTypeSecurity:
		return PaymentTypeSecurity, nil
	case PaymentTypeDeposit:
		return PaymentTypeDeposit, nil
	default:
		return "", ErrInvalidPaymentType
	}
}

// IsDeposit is true for types credited to the security deposit bucket.
func (t PaymentType) IsDeposit() bool {
	return t == PaymentTypeSecurity || t == PaymentTypeDeposit
}

type GatewayStatus string

const (
	GatewayStatusCaptured  GatewayStatus = "captured"
	GatewayStatusFailed    GatewayStatus = "failed"
	GatewayStatusCancelled GatewayStatus = "cancelled"
	GatewayStatusPending   GatewayStatus = "pending"
)

func ParseGatewayStatus(value string) (GatewayStatus, error) {
	switch GatewayStatus(normalize(value)) {
	case GatewayStatusCaptured:
		return GatewayStatusCaptured, nil
	case GatewayStatusFailed:
		return GatewayStatusFailed, nil
	case GatewayStatusCancelled:
		return GatewayStatusCancelled, nil
	case GatewayStatusPending:
		return GatewayStatusPending, nil
	default:
		return "", ErrInvalidGatewayStatus
	}
}

type SubjectType string

const (
	SubjectTypeDriver   SubjectType = "driver"
	SubjectTypeInvestor SubjectType = "investor"
)

// ParseSubjectType defaults to driver when value is empty.
func ParseSubjectType(value string) (SubjectType, error) {
	switch SubjectType(normalize(value)) {
	case "", SubjectTypeDriver:
		return SubjectTypeDriver, nil
	case SubjectTypeInvestor:
		return SubjectTypeInvestor, nil
	default:
		return "", ErrInvalidSubjectType
	}
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

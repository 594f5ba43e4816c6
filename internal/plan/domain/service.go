package domain

import (
	"context"
	"errors"
)

type Service interface {
	ListPlans(ctx context.Context, planType string) ([]Plan, error)
	GetPlan(ctx context.Context, id string) (Plan, error)
	GetPlanByCode(ctx context.Context, code string) (Plan, error)
}

var (
	ErrInvalidPlanType = errors.New("invalid_plan_type")
	ErrInvalidPlanID   = errors.New("invalid_plan_id")
	ErrInvalidPlanCode = errors.New("invalid_plan_code")
	ErrNotFound        = errors.New("plan_not_found")
	ErrSlabNotFound    = errors.New("slab_not_found")
	ErrInvalidSlab     = errors.New("invalid_slab")
	ErrInvalidPlanName = errors.New("invalid_plan_name")
	ErrInvalidDeposit  = errors.New("invalid_security_deposit")
)

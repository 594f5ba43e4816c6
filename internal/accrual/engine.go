package accrual

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/fleetrent/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("accrual",
	fx.Provide(NewEngine),
)

// Engine binds the pure computations to the configured timezone and the
// current rent policy.
type Engine struct {
	loc      *time.Location
	policies *config.RentPolicyHolder
}

func NewEngine(cfg config.Config, policies *config.RentPolicyHolder) (*Engine, error) {
	name := strings.TrimSpace(cfg.Rent.Timezone)
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load rent timezone %q: %w", name, err)
	}
	return &Engine{loc: loc, policies: policies}, nil
}

// NewEngineWith builds an engine without config loading, for tests and tools.
func NewEngineWith(loc *time.Location, policies *config.RentPolicyHolder) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc, policies: policies}
}

func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) Policy() config.RentPolicy { return e.policies.Get() }

func (e *Engine) Summarize(in Input, asOf time.Time) Summary {
	return Compute(in, asOf, e.loc, e.policies.Get().CoverPolicy)
}

func (e *Engine) DueAt(in Input, asOf time.Time) Due {
	return DueAt(in, asOf, e.loc, e.policies.Get().CoverPolicy)
}

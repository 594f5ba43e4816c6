package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyEntityLock   = "fleetrent:lock:%s:%s"
	lockRetryPeriod = 25 * time.Millisecond
)

type GuardParams struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Locker  *Locker                   `optional:"true"`
	Metrics *metrics.ReconcileMetrics `optional:"true"`
}

// MutationGuard serializes writers of one selection or wallet across
// processes. Writes still carry their version check.
type MutationGuard struct {
	locker  *Locker
	ttl     time.Duration
	wait    time.Duration
	metrics *metrics.ReconcileMetrics
	log     *zap.Logger
}

func NewMutationGuard(p GuardParams) *MutationGuard {
	if p.Locker == nil {
		return nil
	}
	ttl := time.Duration(p.Cfg.Redis.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	wait := time.Duration(p.Cfg.Redis.LockWaitMillis) * time.Millisecond
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &MutationGuard{
		locker:  p.Locker,
		ttl:     ttl,
		wait:    wait,
		metrics: p.Metrics,
		log:     p.Log.Named("ratelimit.guard"),
	}
}

// Do runs fn while holding the lock for entity/id. A nil guard runs fn directly.
// Redis failures degrade to an unguarded run.
func (g *MutationGuard) Do(ctx context.Context, entity, id string, fn func(context.Context) error) error {
	if g == nil || g.locker == nil {
		return fn(ctx)
	}

	key := LockKey(entity, id)
	started := time.Now()
	deadline := started.Add(g.wait)

	var token string
	for {
		tok, ok, err := g.locker.TryLock(ctx, key, g.ttl)
		if err != nil {
			g.log.Warn("entity lock unavailable, continuing unguarded", zap.String("key", key), zap.Error(err))
			return fn(ctx)
		}
		if ok {
			token = tok
			break
		}
		if time.Now().After(deadline) {
			g.metrics.ObserveLockWait(entity, time.Since(started))
			return ErrLockTimeout
		}
		timer := time.NewTimer(lockRetryPeriod)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	g.metrics.ObserveLockWait(entity, time.Since(started))

	defer func() {
		if err := g.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			g.log.Warn("release entity lock", zap.String("key", key), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func LockKey(entity, id string) string {
	return fmt.Sprintf(keyEntityLock, entity, id)
}

func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

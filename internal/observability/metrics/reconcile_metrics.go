package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	EntitySelection = "selection"
	EntityWallet    = "wallet"
)

const (
	MutationReasonConflict             = "version_conflict"
	MutationReasonDeadlineExceeded     = "deadline_exceeded"
	MutationReasonDBLockTimeout        = "db_lock_timeout"
	MutationReasonSerializationFailure = "serialization_failure"
	MutationReasonUniqueViolation      = "unique_violation"
	MutationReasonBusinessRule         = "business_rule"
	MutationReasonUnknown              = "unknown"
)

// ReconcileMetrics tracks optimistic read-modify-write cycles on selections and wallets.
type ReconcileMetrics struct {
	attempts  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	lockWait  *prometheus.HistogramVec
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the process-wide registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// NewReconcileMetricsWithRegisterer builds an unshared registry, mainly for tests.
func NewReconcileMetricsWithRegisterer(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	return newReconcileMetrics(registerer, cfg)
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fleetrent_mutation_attempts_total",
		Help:        "Optimistic write attempts by entity.",
		ConstLabels: constLabels,
	}, []string{"entity"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fleetrent_mutation_conflicts_total",
		Help:        "Writes rejected because another writer bumped the version first.",
		ConstLabels: constLabels,
	}, []string{"entity"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fleetrent_mutation_failures_total",
		Help:        "Mutations that gave up, by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"entity", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fleetrent_mutation_duration_seconds",
		Help:        "Wall time of a mutation including retries.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: constLabels,
	}, []string{"entity"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fleetrent_entity_lock_wait_seconds",
		Help:        "Time spent waiting for the per-entity redis lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: constLabels,
	}, []string{"entity"})

	registerer.MustRegister(attempts, conflicts, failures, duration, lockWait)

	return &ReconcileMetrics{
		attempts:  attempts,
		conflicts: conflicts,
		failures:  failures,
		duration:  duration,
		lockWait:  lockWait,
	}
}

func (m *ReconcileMetrics) IncAttempt(entity string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(entity).Inc()
}

func (m *ReconcileMetrics) IncConflict(entity string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(entity).Inc()
}

// IncFailure records a mutation that returned err to its caller.
func (m *ReconcileMetrics) IncFailure(entity string, err error, conflict bool) {
	if m == nil || err == nil {
		return
	}
	reason := ClassifyMutationReason(err)
	if conflict {
		reason = MutationReasonConflict
	}
	m.failures.WithLabelValues(entity, reason).Inc()
}

func (m *ReconcileMetrics) ObserveDuration(entity string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(entity).Observe(d.Seconds())
}

func (m *ReconcileMetrics) ObserveLockWait(entity string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(entity).Observe(d.Seconds())
}

// ClassifyMutationReason maps storage errors to low-cardinality reasons.
func ClassifyMutationReason(err error) string {
	if err == nil {
		return MutationReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return MutationReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return MutationReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return MutationReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return MutationReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return MutationReasonUnknown
	}
	return MutationReasonBusinessRule
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

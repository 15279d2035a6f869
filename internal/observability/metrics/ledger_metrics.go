package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	LockResourceTaxAccount    = "tax_account"
	LockResourceControlNumber = "owner_control_number"
	LockResourcePaymentRow    = "payment_row"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonLockTimeout          = "lock_timeout"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonDeadlock             = "deadlock"
	ReasonUniqueViolation      = "unique_violation"
	ReasonNotFound             = "not_found"
	ReasonUnknown              = "unknown"
)

// LedgerMetrics captures contention on the tax account balance path.
type LedgerMetrics struct {
	lockWait          *prometheus.HistogramVec
	lockTimeouts      *prometheus.CounterVec
	reconcileDuration prometheus.Observer
	reconcileErrors   *prometheus.CounterVec
	lockWaitObserver  map[string]prometheus.Observer
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// NewLedgerMetrics returns the process-wide ledger metrics registered on the default registry.
func NewLedgerMetrics(cfg Config) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = newLedgerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ledgerMetrics
}

func newLedgerMetrics(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "munitax"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "munitax_lock_wait_seconds",
		Help:        "Time spent waiting for an exclusive lock before touching a balance or token.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"resource"})
	lockTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "munitax_lock_timeouts_total",
		Help:        "Lock acquisitions abandoned after the configured timeout.",
		ConstLabels: constLabels,
	}, []string{"resource"})
	reconcileDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "munitax_reconcile_duration_seconds",
		Help:        "End-to-end latency of completing a payment against its tax account.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	reconcileErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "munitax_reconcile_errors_total",
		Help:        "Completion failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})

	registerer.MustRegister(lockWait, lockTimeouts, reconcileDuration, reconcileErrors)

	return &LedgerMetrics{
		lockWait:          lockWait,
		lockTimeouts:      lockTimeouts,
		reconcileDuration: reconcileDuration,
		reconcileErrors:   reconcileErrors,
		lockWaitObserver: map[string]prometheus.Observer{
			LockResourceTaxAccount:    lockWait.WithLabelValues(LockResourceTaxAccount),
			LockResourceControlNumber: lockWait.WithLabelValues(LockResourceControlNumber),
			LockResourcePaymentRow:    lockWait.WithLabelValues(LockResourcePaymentRow),
		},
	}
}

func (m *LedgerMetrics) ObserveLockWait(resource string, d time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(d.Seconds())
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(d.Seconds())
}

func (m *LedgerMetrics) IncLockTimeout(resource string) {
	if m == nil {
		return
	}
	m.lockTimeouts.WithLabelValues(resource).Inc()
}

func (m *LedgerMetrics) ObserveReconcile(d time.Duration) {
	if m == nil {
		return
	}
	m.reconcileDuration.Observe(d.Seconds())
}

func (m *LedgerMetrics) IncReconcileError(reason string) {
	if m == nil {
		return
	}
	m.reconcileErrors.WithLabelValues(reason).Inc()
}

// ClassifyStorageReason maps storage-level failures to a metric reason.
// Domain errors fall through to ReasonUnknown; callers label those themselves.
func ClassifyStorageReason(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ReasonNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return ReasonUniqueViolation
	case hasPGCode(err, "55P03"):
		return ReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerializationFailure
	case hasPGCode(err, "40P01"):
		return ReasonDeadlock
	default:
		return ReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

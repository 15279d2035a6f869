package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyStorageReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, ReasonDeadlineExceeded},
		{"not_found", gorm.ErrRecordNotFound, ReasonNotFound},
		{"db_lock_timeout", &pgconn.PgError{Code: "55P03"}, ReasonDBLockTimeout},
		{"serialization_failure", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), ReasonSerializationFailure},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ReasonDeadlock},
		{"unique_violation", gorm.ErrDuplicatedKey, ReasonUniqueViolation},
		{"unknown", errors.New("boom"), ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyStorageReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLedgerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newLedgerMetrics(registry, Config{ServiceName: "munitax", Environment: "test"})

	m.IncLockTimeout(LockResourceTaxAccount)
	m.IncLockTimeout(LockResourceTaxAccount)
	m.IncReconcileError(ReasonLockTimeout)
	m.ObserveLockWait(LockResourceTaxAccount, 20*time.Millisecond)

	if got := testutil.ToFloat64(m.lockTimeouts.WithLabelValues(LockResourceTaxAccount)); got != 2 {
		t.Fatalf("expected 2 lock timeouts, got %v", got)
	}
	if got := testutil.ToFloat64(m.reconcileErrors.WithLabelValues(ReasonLockTimeout)); got != 1 {
		t.Fatalf("expected 1 reconcile error, got %v", got)
	}
	if got := testutil.CollectAndCount(m.lockWait); got != 3 {
		t.Fatalf("expected 3 lock wait series, got %d", got)
	}
}

func TestNilLedgerMetricsAreSafe(t *testing.T) {
	var m *LedgerMetrics
	m.ObserveLockWait(LockResourceTaxAccount, time.Millisecond)
	m.IncLockTimeout(LockResourceTaxAccount)
	m.ObserveReconcile(time.Millisecond)
	m.IncReconcileError(ReasonUnknown)
}

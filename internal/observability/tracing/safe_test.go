package tracing

import (
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPaymentSecrets(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/payments"),
		attribute.String("control_number", "TXNABCDEFGHIJ"),
		attribute.String("amount", "100.00"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestSafeError(t *testing.T) {
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
	err := SafeError(fmt.Errorf("concurrency_timeout: %w", errors.New("SELECT * FROM tax_accounts")))
	if err.Error() != "concurrency_timeout" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

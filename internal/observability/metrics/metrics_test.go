package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsHighCardinalityLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event", "complete"),
		attribute.String("payment_id", "123"),
		attribute.String("owner_id", "456"),
		attribute.String("to_state", "completed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key != "event" && attr.Key != "to_state" {
			t.Fatalf("unexpected attribute %q retained", attr.Key)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordTransition(context.Background(), "approve", "approved", "gateway_redirect")
	m.RecordReconciliation(context.Background(), "ok")
	m.RecordTokenCollision(context.Background(), "control_number")
	m.RecordAdjustment(context.Background(), "Active")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "munitax"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordTransition(context.Background(), "submit", "processing", "control_number")
}

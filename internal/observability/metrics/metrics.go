package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled           bool
	PrometheusEnabled bool
	ExporterEndpoint  string
	ExporterProtocol  string
	ServiceName       string
	Environment       string
}

// Metrics exposes payment lifecycle instruments exported over OTLP.
type Metrics struct {
	transitions     metric.Int64Counter
	reconciliations metric.Int64Counter
	tokenCollisions metric.Int64Counter
	adjustments     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "munitax"
	}
	meter := provider.Meter(name)

	transitions, err := meter.Int64Counter("munitax_payment_transitions_total",
		metric.WithDescription("Payment state machine transitions by event and resulting state."))
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("munitax_reconciliations_total",
		metric.WithDescription("Completion attempts by outcome."))
	if err != nil {
		return nil, err
	}
	tokenCollisions, err := meter.Int64Counter("munitax_token_collisions_total",
		metric.WithDescription("Unique token draws that collided and were retried."))
	if err != nil {
		return nil, err
	}
	adjustments, err := meter.Int64Counter("munitax_account_adjustments_total",
		metric.WithDescription("Administrative corrections applied to tax accounts."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transitions:     transitions,
		reconciliations: reconciliations,
		tokenCollisions: tokenCollisions,
		adjustments:     adjustments,
	}, nil
}

// RecordTransition counts an accepted payment state transition.
func (m *Metrics) RecordTransition(ctx context.Context, event, toState, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event", strings.TrimSpace(event)),
		attribute.String("to_state", strings.TrimSpace(toState)),
		attribute.String("method", strings.TrimSpace(method)),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliation counts a completion attempt; outcome is one of ok, already_completed, timeout, error.
func (m *Metrics) RecordReconciliation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordTokenCollision(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.tokenCollisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAdjustment(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.adjustments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"event":    {},
	"to_state": {},
	"method":   {},
	"outcome":  {},
	"kind":     {},
	"status":   {},
	"reason":   {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

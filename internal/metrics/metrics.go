package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/leafsii/relkv/pkg/kv"
)

// Metrics records key-value command outcomes. It implements kv.Recorder.
type Metrics struct {
	Transactions  metric.Int64Counter
	TxDuration    metric.Float64Histogram
	TypeConflicts metric.Int64Counter
}

var _ kv.Recorder = (*Metrics)(nil)

// Setup builds a meter provider exporting to a dedicated Prometheus registry
// and returns the handler serving it.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.Transactions, err = meter.Int64Counter(
		"relkv_tx_total",
		metric.WithDescription("Total number of key-value commands by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TxDuration, err = meter.Float64Histogram(
		"relkv_tx_duration_seconds",
		metric.WithDescription("Key-value command duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TypeConflicts, err = meter.Int64Counter(
		"relkv_type_conflicts_total",
		metric.WithDescription("Total number of writes refused because the key holds another kind"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

// Outcome classifies a command error for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, kv.ErrWrongType):
		return "wrong_type"
	case errors.Is(err, kv.ErrNotNumber):
		return "not_number"
	case errors.Is(err, kv.ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

func (m *Metrics) RecordTransaction(ctx context.Context, backend kv.Backend, op string, d time.Duration, err error) {
	m.Transactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", string(backend)),
		attribute.String("op", op),
		attribute.String("outcome", Outcome(err)),
	))
	m.TxDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("backend", string(backend)),
		attribute.String("op", op),
	))
}

func (m *Metrics) RecordTypeConflict(ctx context.Context, backend kv.Backend, want kv.Kind) {
	m.TypeConflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", string(backend)),
		attribute.String("kind", want.String()),
	))
}

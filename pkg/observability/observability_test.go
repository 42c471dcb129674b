package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/embedded"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/pool"
)

func TestFromConfig(t *testing.T) {
	tc := FromConfig(config.ObservabilityConfig{ServiceName: "reader-svc", TracingSampleRate: 0.5}, "1.2.3")
	assert.Equal(t, "reader-svc", tc.ServiceName)
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
	assert.Equal(t, 0.5, tc.SamplingRate)
	assert.Equal(t, "stdout", tc.ExporterType)
}

func TestInitTracingAndShutdown(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := DefaultTracingConfig()
	cfg.ExporterType = "zipkin"
	assert.Error(t, InitTracing(cfg))

	cfg.ExporterType = "none"
	cfg.SamplingRate = 1
	require.NoError(t, InitTracing(cfg))
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	assert.NoError(t, Shutdown(context.Background()))
}

func TestTraceRecordsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	err := Trace(context.Background(), "reader.get", func(context.Context) error { return nil },
		attribute.String("table", "users"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = Trace(context.Background(), "reader.scan", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "reader.get", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "reader.scan", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

type fakeSource struct {
	name  string
	stats pool.Stats
}

func (s fakeSource) Name() string      { return s.name }
func (s fakeSource) Stats() pool.Stats { return s.stats }

type namedGauge struct {
	noop.Int64ObservableGauge
	name string
}

type captureMeter struct {
	noop.Meter
	callback metric.Callback
}

func (m *captureMeter) Int64ObservableGauge(name string, _ ...metric.Int64ObservableGaugeOption) (metric.Int64ObservableGauge, error) {
	return namedGauge{name: name}, nil
}

func (m *captureMeter) RegisterCallback(f metric.Callback, _ ...metric.Observable) (metric.Registration, error) {
	m.callback = f
	return noop.Registration{}, nil
}

type captureObserver struct {
	embedded.Observer
	values map[string]int64
}

func (o *captureObserver) ObserveFloat64(metric.Float64Observable, float64, ...metric.ObserveOption) {}

func (o *captureObserver) ObserveInt64(obs metric.Int64Observable, v int64, opts ...metric.ObserveOption) {
	attrs := metric.NewObserveConfig(opts).Attributes()
	poolName, _ := attrs.Value("pool")
	o.values[poolName.AsString()+"/"+obs.(namedGauge).name] = v
}

func TestRegisterPoolGauges(t *testing.T) {
	meter := &captureMeter{}
	_, err := RegisterPoolGauges(meter,
		fakeSource{name: "users", stats: pool.Stats{Active: 3, Idle: 2, Waiters: 1}},
		fakeSource{name: "events", stats: pool.Stats{Idle: 4}},
	)
	require.NoError(t, err)
	require.NotNil(t, meter.callback)

	obs := &captureObserver{values: map[string]int64{}}
	require.NoError(t, meter.callback(context.Background(), obs))
	assert.Equal(t, map[string]int64{
		"users/tablepool.pool.active":   3,
		"users/tablepool.pool.idle":     2,
		"users/tablepool.pool.waiters":  1,
		"events/tablepool.pool.active":  0,
		"events/tablepool.pool.idle":    4,
		"events/tablepool.pool.waiters": 0,
	}, obs.values)
}

func TestRegisterPoolGaugesWithGlobalMeter(t *testing.T) {
	reg, err := RegisterPoolGauges(Meter(), fakeSource{name: "users"})
	require.NoError(t, err)
	assert.NoError(t, reg.Unregister())
}

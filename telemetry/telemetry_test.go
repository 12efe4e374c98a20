package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))

	l, err = NewLogger("", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}

func TestInstrumentsRecordOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	ins, err := New(mp, noop.NewTracerProvider())
	require.NoError(t, err)

	ctx := context.Background()
	_, ok := ins.Start(ctx, "submit")
	ok.End(ctx, "record.initialize", "")
	_, bad := ins.Start(ctx, "submit")
	bad.SetAttributes(attribute.String("caller", "x"))
	bad.End(ctx, "record.update", "UNAUTHORIZED")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), totals["mcpreg.requests"])
	assert.Equal(t, int64(1), totals["mcpreg.failures"])
}

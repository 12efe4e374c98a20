// Package telemetry builds the zap logger and the OpenTelemetry instruments
// used by the request processor.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const instrumentationName = "xdao.co/mcpreg"

// NewLogger returns a production JSON logger, or a console logger when
// development is set. level is a zap level name ("debug", "info", ...).
func NewLogger(level string, development bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("telemetry: invalid log level %q", level)
		}
	}
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	return config.Build()
}

// Instruments are the RED instruments (rate, errors, duration) for requests.
type Instruments struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates instruments from explicit providers.
func New(mp metric.MeterProvider, tp trace.TracerProvider) (*Instruments, error) {
	meter := mp.Meter(instrumentationName)
	requests, err := meter.Int64Counter("mcpreg.requests",
		metric.WithDescription("Signed requests received"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("mcpreg.failures",
		metric.WithDescription("Signed requests rejected, by error code"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("mcpreg.duration_ms",
		metric.WithDescription("Request processing time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Instruments{
		tracer:   tp.Tracer(instrumentationName),
		requests: requests,
		failures: failures,
		duration: duration,
	}, nil
}

// Global creates instruments from the globally registered providers.
func Global() (*Instruments, error) {
	return New(otel.GetMeterProvider(), otel.GetTracerProvider())
}

// Span tracks one request from Start to End.
type Span struct {
	ins   *Instruments
	span  trace.Span
	start time.Time
}

// Start opens a span named name and counts the request.
func (i *Instruments) Start(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := i.tracer.Start(ctx, name)
	return ctx, &Span{ins: i, span: span, start: time.Now()}
}

// SetAttributes annotates the span.
func (s *Span) SetAttributes(kv ...attribute.KeyValue) {
	s.span.SetAttributes(kv...)
}

// End records the outcome. code is "" on success.
func (s *Span) End(ctx context.Context, op, code string) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	s.ins.requests.Add(ctx, 1, attrs)
	if code != "" {
		s.ins.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("code", code)))
		s.span.SetAttributes(attribute.String("mcpreg.code", code))
	}
	s.ins.duration.Record(ctx, float64(time.Since(s.start).Microseconds())/1000, attrs)
	s.span.End()
}

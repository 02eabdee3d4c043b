// Package telemetry настраивает экспорт трасс OpenTelemetry.
package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Options struct {
	Endpoint    string // OTLP gRPC; пусто — трассировка выключена
	Insecure    bool
	ServiceName string
}

// Setup ставит глобальный TracerProvider и возвращает его Shutdown.
// Ошибки экспортера не мешают старту: сервис работает без трасс.
func Setup(ctx context.Context, opts Options, log logrus.FieldLogger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if opts.Endpoint == "" {
		return noop
	}

	eopts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		eopts = append(eopts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, eopts...)
	if err != nil {
		log.WithError(err).Warn("otel exporter error")
		return noop
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		log.WithError(err).Warn("otel resource error")
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	log.WithField("endpoint", opts.Endpoint).Info("tracing enabled")
	return provider.Shutdown
}

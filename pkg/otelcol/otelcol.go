package otelcol

import (
	"context"
	"fmt"

	"licensekeeper/pkg/config"
	"licensekeeper/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		NewTracerProvider,
		NewMeterProvider,
	),
)

func newResource(cfg *config.Config) *resource.Resource {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		return resource.Default()
	}
	return res
}

func ProvideTrace(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append(opts, sdktrace.WithBatcher(exporter))
	return sdktrace.NewTracerProvider(opts...)
}

// NewTracerProvider exports spans over OTLP when OTEL.ADDR is set and falls
// back to the global (no-op) provider otherwise.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	if cfg.Otel.Addr == "" {
		zap.L().Info("OTEL.ADDR not set, tracing export disabled")
		return otel.GetTracerProvider(), nil
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Otel.Protocol {
	case "", "grpc":
		exporter, err = exporters.ProvideGrpc(cfg)
	case "http":
		exporter, err = exporters.ProvideHttp(cfg)
	default:
		return nil, fmt.Errorf("unsupported OTEL.PROTOCOL %q", cfg.Otel.Protocol)
	}
	if err != nil {
		zap.L().Error("failed to create otlp trace exporter", zap.Error(err))
		return nil, err
	}

	tp := ProvideTrace(exporter, sdktrace.WithResource(newResource(cfg)))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	zap.L().Info("tracing enabled",
		zap.String("otel_addr", cfg.Otel.Addr),
		zap.String("protocol", cfg.Otel.Protocol),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

// NewMeterProvider backs otelgrpc metrics. Without a reader the SDK provider
// records nothing; Prometheus collectors serve /metrics separately.
func NewMeterProvider(lc fx.Lifecycle, cfg *config.Config) metric.MeterProvider {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(newResource(cfg)))
	otel.SetMeterProvider(mp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mp.Shutdown(ctx)
		},
	})

	return mp
}

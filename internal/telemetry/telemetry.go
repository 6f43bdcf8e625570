package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InstrumentationName names the tracer and meter used by the dojo packages.
const InstrumentationName = "github.com/DannyMichaels/code-dojo-app"

// Tracer returns the global tracer. It is a no-op until Init installs a provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Instruments are OpenTelemetry counters recorded next to the Prometheus set.
// They are no-ops unless a meter provider has been installed.
type Instruments struct {
	ToolCalls  metric.Int64Counter
	TurnRounds metric.Int64Histogram
	Promotions metric.Int64Counter
}

// NewInstruments creates the instruments on the global meter.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(InstrumentationName)

	toolCalls, err := meter.Int64Counter(
		"dojo.tool_calls",
		metric.WithDescription("Tool calls executed during turns"),
	)
	if err != nil {
		return nil, err
	}

	rounds, err := meter.Int64Histogram(
		"dojo.turn.rounds",
		metric.WithDescription("Reasoning rounds per turn"),
	)
	if err != nil {
		return nil, err
	}

	promotions, err := meter.Int64Counter(
		"dojo.belt.promotions",
		metric.WithDescription("Belt promotions granted"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{ToolCalls: toolCalls, TurnRounds: rounds, Promotions: promotions}, nil
}

// Config controls trace export.
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Version     string
	Environment string
	SampleRatio float64
}

// Init installs an OTLP/gRPC trace provider. With tracing disabled it
// returns a no-op shutdown function.
func Init(ctx context.Context, cfg Config, logger *zap.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info("telemetry initialized", zap.String("endpoint", cfg.Endpoint))

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return provider.Shutdown(shutdownCtx)
	}, nil
}

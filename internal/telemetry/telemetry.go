package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultOTLPEndpoint = "jaeger:4318"

// Logger and Tracer are no-ops until InitTelemetry runs, so packages and tests
// can log without setup.
var (
	Tracer      trace.Tracer = otel.Tracer("checkout-orchestrator")
	Logger      *zap.Logger  = zap.NewNop()
	ServiceName string

	provider *sdktrace.TracerProvider
)

// Options configures InitTelemetry. Empty fields fall back to defaults.
type Options struct {
	ServiceName  string
	Version      string
	OTLPEndpoint string
	LogLevel     string
}

// InitTelemetry builds the JSON logger and the OTLP trace pipeline.
func InitTelemetry(opts Options) error {
	ServiceName = opts.ServiceName

	logger, err := newLogger(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	Logger = logger

	tp, err := newTracerProvider(opts)
	if err != nil {
		return err
	}
	provider = tp
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	Tracer = tp.Tracer(opts.ServiceName)

	Logger.Info("Telemetry initialized",
		zap.String("service", opts.ServiceName),
		zap.String("version", opts.Version),
	)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

func newTracerProvider(opts Options) (*sdktrace.TracerProvider, error) {
	endpoint := opts.OTLPEndpoint
	if endpoint == "" {
		endpoint = defaultOTLPEndpoint
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	), nil
}

// Shutdown flushes pending spans and the logger.
func Shutdown(ctx context.Context) error {
	if provider != nil {
		if err := provider.Shutdown(ctx); err != nil {
			return err
		}
	}
	return Logger.Sync()
}

// StartSpan opens a span tagged with the checkout session id.
func StartSpan(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	ctx, span := Tracer.Start(ctx, name)
	if sessionID != "" {
		span.SetAttributes(attribute.String("checkout.session_id", sessionID))
	}
	return ctx, span
}

// TracingMiddleware opens a server span per request, records its latency and
// logs it. Probe and scrape routes are not logged.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := Tracer.Start(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		spanCtx := span.SpanContext()
		if spanCtx.IsValid() {
			c.Header("X-Trace-ID", spanCtx.TraceID().String())
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		span.SetAttributes(
			semconv.HTTPMethodKey.String(c.Request.Method),
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPStatusCodeKey.Int(status),
		)
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(duration.Seconds())

		if route == "/health" || route == "/metrics" {
			return
		}
		Logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("trace_id", spanCtx.TraceID().String()),
		)
	}
}

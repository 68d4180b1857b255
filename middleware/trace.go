package middleware

import (
	"context"

	cowboy "github.com/MomsFriendlyDevCo/Cowboy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// defaultTracerName is used when no TraceConfig overrides it.
const defaultTracerName = "cowboy"

// TraceConfig configures the OpenTelemetry trace middleware.
type TraceConfig struct {
	// TracerName names the tracer resolved from the global provider
	// (default: "cowboy").
	TracerName string

	// AttributeExtractor adds custom attributes to each request span.
	AttributeExtractor func(req *cowboy.Request) []attribute.KeyValue
}

func init() {
	cowboy.RegisterMiddleware("trace", traceMiddleware)
}

// traceMiddleware opens a span per request. The span is ended from the
// response's before-serve hook, which runs exactly once at finalization with
// the definitive status code; the error hook records the failure before
// that. The tracer comes from the global OpenTelemetry provider, so
// applications configure exporters in their entry point as usual.
func traceMiddleware(rt *cowboy.Router, opts ...any) (cowboy.HandlerFunc, error) {
	config := TraceConfig{TracerName: defaultTracerName}
	if len(opts) > 0 {
		c, ok := opts[0].(TraceConfig)
		if !ok {
			return nil, &cowboy.ConfigError{Message: "trace option must be a TraceConfig"}
		}
		if c.TracerName == "" {
			c.TracerName = defaultTracerName
		}
		config = c
	}
	tracer := otel.Tracer(config.TracerName)

	return func(ctx context.Context, req *cowboy.Request, res *cowboy.Response) (any, error) {
		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
			attribute.String("cowboy.request_id", req.ID),
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(req)...)
		}

		_, span := tracer.Start(ctx, req.Method+" "+req.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)

		res.AfterError(func(ctx context.Context, res *cowboy.Response, err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		})
		res.BeforeServe(func(ctx context.Context, res *cowboy.Response) error {
			code := res.StatusCode()
			span.SetAttributes(attribute.Int("http.response.status_code", code))
			if code < 500 {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
			return nil
		})
		return nil, nil
	}, nil
}

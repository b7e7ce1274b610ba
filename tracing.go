package saldo

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this library in exported spans.
const instrumentationName = "github.com/ambiyansyah-risyal/saldo"

// WithTracing installs a middleware that wraps every attempt in a client
// span and injects W3C trace context headers so the ledger service can join
// the trace. It uses the globally registered tracer provider and propagator
// and stays inert until the application configures OpenTelemetry.
func WithTracing() Option {
	return WithMiddleware(TracingMiddleware())
}

// TracingMiddleware returns the middleware WithTracing installs, for callers
// that compose their middleware chain by hand.
func TracingMiddleware() Middleware {
	tracer := otel.GetTracerProvider().Tracer(instrumentationName,
		trace.WithInstrumentationVersion(Version))

	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		ctx, span := tracer.Start(req.Context(), spanName(req),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.request.method", req.Method),
				attribute.String("url.full", req.URL.String()),
				attribute.String("server.address", req.URL.Host),
			),
		)
		defer span.End()

		req = req.WithContext(ctx)
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := next.RoundTrip(req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return resp, err
		}

		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.StatusCode >= 400 {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		return resp, nil
	}
}

func spanName(req *http.Request) string {
	endpoint := getEndpointFromRequest(req)
	if endpoint == "" || endpoint == "unknown" {
		return req.Method
	}
	return req.Method + " " + endpoint
}

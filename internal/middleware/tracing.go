package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kubilitics/kubilitics-forecast/internal/tracing"
)

// TraceIDHeader exposes the active trace ID to clients.
const TraceIDHeader = "X-Trace-ID"

// Tracing starts a server span for every request and returns its trace ID in
// X-Trace-ID. The span is named "HTTP <method>" until RouteSpan renames it
// after routing.
func Tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if traceID := tracing.TraceIDFromContext(r.Context()); traceID != "" {
				w.Header().Set(TraceIDHeader, traceID)
			}
			next.ServeHTTP(w, r)
		}),
		"forecast.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
	)
}

// RouteSpan names the active span "<method> <route template>" and tags it with
// the tenant path variable. It runs inside the mux router so the matched route
// is known, e.g. "POST /api/v1/tenants/{tenant}/records".
func RouteSpan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		if span.IsRecording() {
			route := routeTemplate(r)
			span.SetName(SpanName(r.Method, route))
			span.SetAttributes(attribute.String("http.route", route))
			if tenant := mux.Vars(r)["tenant"]; tenant != "" {
				span.SetAttributes(attribute.String("forecast.tenant_id", tenant))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SpanName is the span name for a request on route.
func SpanName(method, route string) string {
	return method + " " + route
}

package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// newMiddlewareRig wires a manual metric reader and an in-memory span
// exporter so a test can drive the middleware and inspect everything it
// emits. The global tracer provider is swapped and restored on cleanup.
func newMiddlewareRig(t *testing.T) (*Metrics, *metric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	return m, reader, exp
}

// serve pushes one request through the middleware-wrapped handler.
func serve(mw func(http.Handler) http.Handler, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mw(h).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_EchoesCorrelationID(t *testing.T) {
	m, _, _ := newMiddlewareRig(t)

	var seen string
	rec := serve(Middleware(m), func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}, httptest.NewRequest("GET", "/readyz", nil))

	if seen == "" {
		t.Fatal("handler saw no correlation ID in its context")
	}
	if len(seen) != 32 {
		t.Errorf("correlation ID length = %d, want 32 hex chars", len(seen))
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("X-Correlation-ID = %q, want the handler's %q", got, seen)
	}
}

func TestMiddleware_WrapsRequestInServerSpan(t *testing.T) {
	m, _, exp := newMiddlewareRig(t)

	serve(Middleware(m), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, httptest.NewRequest("GET", "/v1/transcripts/search", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /v1/transcripts/search" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].SpanKind != oteltrace.SpanKindServer {
		t.Errorf("span kind = %v, want server", spans[0].SpanKind)
	}
}

func TestMiddleware_RecordsRequestDuration(t *testing.T) {
	m, reader, _ := newMiddlewareRig(t)

	serve(Middleware(m), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, httptest.NewRequest("GET", "/metrics", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	met := findMetric(rm, "voxhire.http.request.duration")
	if met == nil {
		t.Fatal("voxhire.http.request.duration was not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data is %T, want Histogram[float64]", met.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	want := map[string]string{"method": "GET", "path": "/metrics"}
	for key, val := range want {
		v, ok := dp.Attributes.Value(attribute.Key(key))
		if !ok || v.AsString() != val {
			t.Errorf("attribute %s = %v, want %q", key, v, val)
		}
	}
	if v, ok := dp.Attributes.Value(attribute.Key("status")); !ok || v.AsInt64() != 200 {
		t.Errorf("attribute status = %v, want 200", v)
	}
}

func TestMiddleware_RecordsDownstreamStatus(t *testing.T) {
	m, reader, exp := newMiddlewareRig(t)

	rec := serve(Middleware(m), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("response status = %d, want 503", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 503 {
			found = true
		}
	}
	if !found {
		t.Error("span is missing the 503 http.response.status_code attribute")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "voxhire.http.request.duration")
	if met == nil {
		t.Fatal("voxhire.http.request.duration was not recorded")
	}
	dp := met.Data.(metricdata.Histogram[float64]).DataPoints[0]
	if v, ok := dp.Attributes.Value(attribute.Key("status")); !ok || v.AsInt64() != 503 {
		t.Errorf("metric status attribute = %v, want 503", v)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, _ := newMiddlewareRig(t)

	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	var seen string
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")
	rec := serve(Middleware(m), func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}, req)

	if seen != upstream {
		t.Errorf("correlation ID = %q, want the upstream trace ID %q", seen, upstream)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != upstream {
		t.Errorf("X-Correlation-ID = %q, want %q", got, upstream)
	}
	if got := rec.Header().Get("traceparent"); got == "" {
		t.Error("response is missing the injected traceparent header")
	}
}

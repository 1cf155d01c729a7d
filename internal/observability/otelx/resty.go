package otelx

import (
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentResty opens a client span per request and closes it once the
// response (or error) is in. Webhook paths carry a secret token and are
// recorded without their path.
func InstrumentResty(client *resty.Client, tracerName string) {
	tracer := Tracer(tracerName)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), "http "+req.Method, trace.WithSpanKind(trace.SpanKindClient))
		req.SetContext(ctx)
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		span := trace.SpanFromContext(res.Request.Context())
		defer span.End()

		span.SetAttributes(requestAttributes(res.Request)...)
		span.SetAttributes(
			attribute.Int("http.response.status_code", res.StatusCode()),
			attribute.Int64("http.response.body.size", res.Size()),
		)
		if res.StatusCode() >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", res.StatusCode()))
		}
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		span := trace.SpanFromContext(req.Context())
		defer span.End()

		span.SetAttributes(requestAttributes(req)...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	})
}

func requestAttributes(req *resty.Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("http.request.method", req.Method)}
	if req.RawRequest == nil || req.RawRequest.URL == nil {
		return attrs
	}
	u := req.RawRequest.URL
	attrs = append(attrs, attribute.String("server.address", u.Host))
	if !strings.Contains(u.Path, "/webhooks/") {
		attrs = append(attrs, attribute.String("url.path", u.Path))
	}
	return attrs
}

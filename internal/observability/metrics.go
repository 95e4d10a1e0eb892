package observability

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterContextKey struct{}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithMeter stores meter in ctx. A nil meter is replaced by a fresh one.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	ctx = contextOrBackground(ctx)
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the request-scoped meter, so counters recorded deep
// in a service carry the request attributes. Outside a request it returns a
// bare meter.
func MeterFromContext(ctx context.Context) sentry.Meter {
	ctx = contextOrBackground(ctx)
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// CountReason increments name once, tagged with a snake_case reason.
func CountReason(ctx context.Context, name, reason string) {
	MeterFromContext(ctx).Count(name, 1, sentry.WithAttributes(
		attribute.String("reason", strings.ToLower(strings.TrimSpace(reason))),
	))
}

// RequestAttributes describes an inbound request for the request meter.
type RequestAttributes struct {
	RequestID     string
	Method        string
	Route         string
	ClientIP      string
	UserAgent     string
	ContentLength int64
}

// Builders returns the non-empty attributes. A negative content length means
// unknown and is left out.
func (a RequestAttributes) Builders() []attribute.Builder {
	attrs := []attribute.Builder{
		attribute.String("http.request_id", a.RequestID),
		attribute.String("http.method", a.Method),
	}
	if a.ClientIP != "" {
		attrs = append(attrs, attribute.String("network.client.ip", a.ClientIP))
	}
	if a.Route != "" {
		attrs = append(attrs, attribute.String("http.route", a.Route))
	}
	if ua := strings.TrimSpace(a.UserAgent); ua != "" {
		attrs = append(attrs, attribute.String("http.user_agent", ua))
	}
	if a.ContentLength >= 0 {
		attrs = append(attrs, attribute.Int64("http.request_content_length", a.ContentLength))
	}
	return attrs
}

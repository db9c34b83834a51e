package service

import (
	"context"
	"time"

	"github.com/fjod/go_cart/commerce-service/internal/catalog"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/fjod/go_cart/commerce-service/internal/logger"
	"github.com/fjod/go_cart/commerce-service/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	tracerName         = "github.com/fjod/go_cart/commerce-service/internal/service"
)

type options struct {
	maxAttempts int
	now         func() time.Time
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	stock       catalog.Reader
}

type Option func(*options)

// WithMaxAttempts bounds how many times a mutation is re-run after a version
// conflict before it fails with domain.ErrConcurrentUpdate.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithStockReader gives stock checks their own reader, so enrichment can sit
// behind a cache while availability is read live.
func WithStockReader(r catalog.Reader) Option {
	return func(o *options) { o.stock = r }
}

func buildOptions(opts []Option) options {
	o := options{
		maxAttempts: defaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// endSpan closes span and reports err. Only internal failures are logged and
// mark the span as errored; business rejections are expected outcomes.
func endSpan(ctx context.Context, span trace.Span, l *zap.Logger, op string, err error, fields ...zap.Field) {
	defer span.End()
	if err == nil {
		return
	}

	kind := domain.KindOf(err)
	span.SetAttributes(attribute.String("error.kind", string(kind)))
	if kind != domain.KindInternal {
		logger.Debug(ctx, l, op+" rejected", append(fields, zap.Error(err))...)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	logger.Error(ctx, l, op+" failed", append(fields, zap.Error(err))...)
}

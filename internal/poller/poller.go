// Package poller turns completed orders into loyalty points.
package poller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/fjod/go_cart/commerce-service/internal/logger"
	"github.com/fjod/go_cart/commerce-service/internal/metrics"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	outcomeProcessed = "processed"
	outcomeSkipped   = "skipped"
	outcomeInvalid   = "invalid"
	outcomeRejected  = "rejected"

	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// MessageReader is the subset of *kafka.Reader the poller uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PointsEarner interface {
	Earn(ctx context.Context, userID string, points int64, description, reference string) (*domain.LoyaltyAccount, error)
}

type Config struct {
	Brokers       []string
	Topic         string
	GroupID       string
	PointsPerUnit decimal.Decimal
}

// OrderCompletedEvent is published once per completed order. EventID
// identifies the delivery; CheckoutID is accepted from older producers.
type OrderCompletedEvent struct {
	EventID     string          `json:"event_id"`
	CheckoutID  string          `json:"checkout_id"`
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

func (e OrderCompletedEvent) reference() string {
	switch {
	case e.EventID != "":
		return e.EventID
	case e.CheckoutID != "":
		return e.CheckoutID
	}
	return e.OrderID
}

type Poller struct {
	reader        MessageReader
	earner        PointsEarner
	pointsPerUnit decimal.Decimal
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

func NewPoller(earner PointsEarner, cfg Config, l *zap.Logger, m *metrics.Metrics) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(reader, earner, cfg.PointsPerUnit, l, m)
}

func newPoller(reader MessageReader, earner PointsEarner, pointsPerUnit decimal.Decimal, l *zap.Logger, m *metrics.Metrics) *Poller {
	return &Poller{
		reader:        reader,
		earner:        earner,
		pointsPerUnit: pointsPerUnit,
		logger:        l,
		metrics:       m,
	}
}

// Run consumes until ctx is cancelled. A message is committed once it has
// been applied or judged unusable; internal failures are retried in place so
// the offset never moves past an order that was not credited.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (p *Poller) poll(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn(ctx, p.logger, "error reading message", zap.Error(err))
		sleep(ctx, initialBackoff)
		return
	}

	backoff := initialBackoff
	for {
		err = p.handle(ctx, m)
		if err == nil {
			break
		}
		logger.Error(ctx, p.logger, "failed to apply order event, retrying",
			zap.Int64("offset", m.Offset), zap.Duration("backoff", backoff), zap.Error(err))
		if !sleep(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil {
		logger.Warn(ctx, p.logger, "failed to commit message", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

// handle returns an error only for failures worth retrying.
func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	var event OrderCompletedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.drop(ctx, m, outcomeInvalid, "error parsing message", err)
		return nil
	}
	if event.UserID == "" || event.reference() == "" {
		p.drop(ctx, m, outcomeInvalid, "missing user_id or event id", nil)
		return nil
	}
	if event.TotalAmount.IsNegative() {
		p.drop(ctx, m, outcomeInvalid, "negative total_amount", nil)
		return nil
	}

	points := PointsFor(event.TotalAmount, p.pointsPerUnit)
	if points <= 0 {
		p.metrics.OrderEvent(outcomeSkipped)
		return nil
	}

	_, err := p.earner.Earn(ctx, event.UserID, points, "Order "+event.OrderID, event.reference())
	switch {
	case err == nil:
		p.metrics.OrderEvent(outcomeProcessed)
		logger.Info(ctx, p.logger, "loyalty points awarded",
			zap.String("user_id", event.UserID),
			zap.String("reference", event.reference()),
			zap.Int64("points", points))
		return nil
	case domain.KindOf(err) == domain.KindInternal:
		return err
	default:
		p.drop(ctx, m, outcomeRejected, "order event rejected", err)
		return nil
	}
}

func (p *Poller) drop(ctx context.Context, m kafka.Message, outcome, msg string, err error) {
	p.metrics.OrderEvent(outcome)
	fields := []zap.Field{zap.Int64("offset", m.Offset), zap.ByteString("key", m.Key)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Warn(ctx, p.logger, msg, fields...)
}

// PointsFor converts an order total into whole points, rounding down.
func PointsFor(total, pointsPerUnit decimal.Decimal) int64 {
	return total.Mul(pointsPerUnit).Floor().IntPart()
}

// ParseRate reads a points-per-unit rate such as "1" or "0.5".
func ParseRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse points per unit %q", s)
	}
	if rate.IsNegative() {
		return decimal.Zero, errors.Newf("points per unit must not be negative, got %s", s)
	}
	return rate, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

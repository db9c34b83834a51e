package poller

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/fjod/go_cart/commerce-service/internal/metrics"
	"github.com/fjod/go_cart/commerce-service/internal/repository"
	"github.com/fjod/go_cart/commerce-service/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const userID = "64b7f0c2a1b2c3d4e5f6a001"

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) committedOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

// flakyEarner fails with an internal error a fixed number of times first.
type flakyEarner struct {
	PointsEarner
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyEarner) Earn(ctx context.Context, userID string, points int64, description, reference string) (*domain.LoyaltyAccount, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, domain.Internal(errors.New("mongo unavailable"), "save loyalty account")
	}
	return f.PointsEarner.Earn(ctx, userID, points, description, reference)
}

func event(t *testing.T, offset int64, payload map[string]any) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte("order"), Value: raw}
}

func orderEvents(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "commerce_poller_order_events_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func runUntilCommitted(t *testing.T, p *Poller, reader *fakeReader, n int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(reader.committedOffsets()) >= n }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestPointsFor(t *testing.T) {
	tests := []struct {
		total, rate string
		want        int64
	}{
		{total: "120.75", rate: "1", want: 120},
		{total: "99.99", rate: "0.1", want: 9},
		{total: "0.50", rate: "1", want: 0},
		{total: "10", rate: "2.5", want: 25},
		{total: "10", rate: "0", want: 0},
	}
	for _, tt := range tests {
		got := PointsFor(decimal.RequireFromString(tt.total), decimal.RequireFromString(tt.rate))
		assert.Equal(t, tt.want, got, "total %s rate %s", tt.total, tt.rate)
	}
}

func TestParseRate(t *testing.T) {
	rate, err := ParseRate("0.5")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.5")))

	_, err = ParseRate("abc")
	assert.Error(t, err)
	_, err = ParseRate("-1")
	assert.Error(t, err)
}

func TestPoller_AwardsPointsOncePerEvent(t *testing.T) {
	repo := repository.NewMemoryLoyaltyRepository()
	svc := service.NewLoyaltyService(repo, zap.NewNop())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	payload := map[string]any{
		"event_id":     "evt-1",
		"order_id":     "1001",
		"user_id":      userID,
		"total_amount": "120.75",
		"completed_at": time.Now().UTC(),
	}
	reader := &fakeReader{queue: []kafka.Message{event(t, 1, payload), event(t, 2, payload)}}
	p := newPoller(reader, svc, decimal.NewFromInt(1), zap.NewNop(), m)

	runUntilCommitted(t, p, reader, 2)

	account, err := repo.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(120), account.TotalPoints)
	require.Len(t, account.PointsHistory, 1)
	assert.Equal(t, "evt-1", account.PointsHistory[0].Reference)
	assert.Equal(t, "Order 1001", account.PointsHistory[0].Description)
	assert.Equal(t, []int64{1, 2}, reader.committedOffsets())
	assert.Equal(t, float64(2), orderEvents(t, reg, outcomeProcessed))
}

func TestPoller_CommitsUnusableMessages(t *testing.T) {
	repo := repository.NewMemoryLoyaltyRepository()
	svc := service.NewLoyaltyService(repo, zap.NewNop())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte("{not json")},
		event(t, 2, map[string]any{"event_id": "evt-2", "total_amount": "10"}),
		event(t, 3, map[string]any{"event_id": "evt-3", "user_id": "bogus", "total_amount": "10"}),
		event(t, 4, map[string]any{"event_id": "evt-4", "user_id": userID, "total_amount": "0.40"}),
		event(t, 5, map[string]any{"event_id": "evt-5", "user_id": userID, "total_amount": "-3"}),
	}}
	p := newPoller(reader, svc, decimal.NewFromInt(1), zap.NewNop(), m)

	runUntilCommitted(t, p, reader, 5)

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, reader.committedOffsets())
	_, err := repo.GetAccount(context.Background(), userID)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
	assert.Equal(t, float64(3), orderEvents(t, reg, outcomeInvalid))
	assert.Equal(t, float64(1), orderEvents(t, reg, outcomeRejected))
	assert.Equal(t, float64(1), orderEvents(t, reg, outcomeSkipped))
}

func TestPoller_RetriesInternalFailuresBeforeCommit(t *testing.T) {
	repo := repository.NewMemoryLoyaltyRepository()
	earner := &flakyEarner{PointsEarner: service.NewLoyaltyService(repo, zap.NewNop()), failures: 2}

	reader := &fakeReader{queue: []kafka.Message{
		event(t, 7, map[string]any{"checkout_id": "chk-7", "order_id": "7", "user_id": userID, "total_amount": 15}),
	}}
	p := newPoller(reader, earner, decimal.NewFromInt(1), zap.NewNop(), nil)

	runUntilCommitted(t, p, reader, 1)

	assert.Equal(t, 3, earner.calls)
	account, err := repo.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), account.TotalPoints)
	assert.Equal(t, "chk-7", account.PointsHistory[0].Reference)
}

func TestPoller_StopsRetryingOnShutdownWithoutCommit(t *testing.T) {
	earner := &flakyEarner{failures: 1 << 30}
	reader := &fakeReader{queue: []kafka.Message{
		event(t, 1, map[string]any{"event_id": "evt-1", "user_id": userID, "total_amount": "10"}),
	}}
	p := newPoller(reader, earner, decimal.NewFromInt(1), zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		earner.mu.Lock()
		defer earner.mu.Unlock()
		return earner.calls >= 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Empty(t, reader.committedOffsets())
}

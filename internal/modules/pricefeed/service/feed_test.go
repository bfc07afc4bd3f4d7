package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"trade_terminal/internal/models"
	brokersvc "trade_terminal/internal/modules/broker/service"
	"trade_terminal/internal/modules/config"
	"trade_terminal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type memSink struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (s *memSink) Append(_ context.Context, ev models.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *memSink) kinds() []models.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

// scriptedStreamer проигрывает сценарий подключений: i-й вызов
// StreamPrices исполняет i-й шаг, дальше просто висит до отмены.
type scriptedStreamer struct {
	mu    sync.Mutex
	calls int
	steps []func(ctx context.Context, out chan<- models.PriceTick) error
}

func (s *scriptedStreamer) StreamPrices(ctx context.Context, _ string, out chan<- models.PriceTick) error {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	if i < len(s.steps) {
		return s.steps[i](ctx, out)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedStreamer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func feedConfig() *config.Config {
	return &config.Config{
		FeedBackoffBase: time.Millisecond,
		FeedBackoffMax:  4 * time.Millisecond,
		TickCacheSize:   5,
	}
}

func tickAt(bid float64) models.PriceTick {
	return models.PriceTick{Bid: bid, Ask: bid + 0.0001, Spread: 0.0001, Time: time.Now()}
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // 32s -> cap
		{10, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, backoffDelay(tc.attempt, base, max), "attempt %d", tc.attempt)
	}
}

func TestFeedPublishesLastTick(t *testing.T) {
	streamer := &scriptedStreamer{
		steps: []func(ctx context.Context, out chan<- models.PriceTick) error{
			func(ctx context.Context, out chan<- models.PriceTick) error {
				out <- tickAt(1.1000)
				out <- tickAt(1.1001)
				out <- tickAt(1.1002)
				<-ctx.Done()
				return ctx.Err()
			},
		},
	}
	f := New(feedConfig(), streamer, &memSink{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx, "EUR_USD")
	defer f.Stop()

	require.Eventually(t, func() bool {
		tick, ok := f.Last()
		return ok && tick.Bid == 1.1002
	}, time.Second, time.Millisecond)

	// ячейка last-write-wins, кольцо хранит историю
	assert.Len(t, f.Recent(), 3)
	assert.Equal(t, "EUR_USD", f.Symbol())

	tick, err := f.WaitForTick(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1.1002, tick.Bid)
}

func TestFeedReconnectAndRestore(t *testing.T) {
	entered2 := make(chan struct{})
	release2 := make(chan struct{})

	streamer := &scriptedStreamer{
		steps: []func(ctx context.Context, out chan<- models.PriceTick) error{
			func(ctx context.Context, out chan<- models.PriceTick) error {
				out <- tickAt(1.1000)
				return errors.New("read tcp: connection reset by peer")
			},
			func(ctx context.Context, out chan<- models.PriceTick) error {
				close(entered2)
				<-release2
				out <- tickAt(1.2000)
				<-ctx.Done()
				return ctx.Err()
			},
		},
	}
	sink := &memSink{}
	f := New(feedConfig(), streamer, sink, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx, "EUR_USD")
	defer f.Stop()

	// дождались реконнекта — старый тик не реплеится, ячейка пуста
	select {
	case <-entered2:
	case <-time.After(time.Second):
		t.Fatal("feed did not reconnect")
	}
	_, ok := f.Last()
	assert.False(t, ok, "stale tick must not survive a disconnect")
	assert.Contains(t, sink.kinds(), models.EventFeedDegraded)

	// первый свежий тик после реконнекта восстанавливает фид
	close(release2)
	require.Eventually(t, func() bool {
		tick, ok := f.Last()
		return ok && tick.Bid == 1.2000
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		for _, k := range sink.kinds() {
			if k == models.EventFeedRestored {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestFeedRingBounded(t *testing.T) {
	streamer := &scriptedStreamer{
		steps: []func(ctx context.Context, out chan<- models.PriceTick) error{
			func(ctx context.Context, out chan<- models.PriceTick) error {
				for i := 0; i < 20; i++ {
					out <- tickAt(1.1 + float64(i)/10000)
				}
				<-ctx.Done()
				return ctx.Err()
			},
		},
	}
	f := New(feedConfig(), streamer, &memSink{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx, "EUR_USD")
	defer f.Stop()

	require.Eventually(t, func() bool {
		tick, ok := f.Last()
		return ok && tick.Bid > 1.1018
	}, time.Second, time.Millisecond)

	recent := f.Recent()
	assert.Len(t, recent, 5)
	// в кольце остаются самые свежие
	assert.InDelta(t, 1.1019, recent[len(recent)-1].Bid, 1e-9)
}

func TestFeedAuthFailureIsFatal(t *testing.T) {
	streamer := &scriptedStreamer{
		steps: []func(ctx context.Context, out chan<- models.PriceTick) error{
			func(ctx context.Context, out chan<- models.PriceTick) error {
				return brokersvc.ErrAuth
			},
		},
	}
	sink := &memSink{}
	f := New(feedConfig(), streamer, sink, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx, "EUR_USD")
	defer f.Stop()

	select {
	case err := <-f.Fatal():
		require.ErrorIs(t, err, brokersvc.ErrAuth)
	case <-time.After(time.Second):
		t.Fatal("fatal feed error was not reported")
	}

	// фатальная ошибка не ретраится
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, streamer.callCount())
	assert.Contains(t, sink.kinds(), models.EventError)
}

func TestWaitForTickTimesOut(t *testing.T) {
	f := New(feedConfig(), &scriptedStreamer{}, &memSink{}, nil)

	start := time.Now()
	_, err := f.WaitForTick(context.Background(), 150*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

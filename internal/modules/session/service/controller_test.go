package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"trade_terminal/internal/models"
	"trade_terminal/internal/modules/config"
	"trade_terminal/internal/risk"

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

// --- фейки ---

type fakeGateway struct {
	mu sync.Mutex

	equity float64

	submitErr  error
	submitRes  models.SubmitResult
	cancelErr  error
	cancelRes  models.CancelResult
	modifyErr  error
	getOrder   models.OrderDetails
	getOrdErr  error
	submitted  []models.OrderIntent
	cancels    int
	modifies   int
	getOrders  int
	lastModify float64
}

func (g *fakeGateway) AccountEquity(ctx context.Context) (float64, error) {
	return g.equity, nil
}

func (g *fakeGateway) SubmitOrder(ctx context.Context, intent models.OrderIntent, precision int) (models.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = append(g.submitted, intent)
	if g.submitErr != nil {
		return models.SubmitResult{}, g.submitErr
	}
	return g.submitRes, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID string) (models.CancelResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels++
	return g.cancelRes, g.cancelErr
}

func (g *fakeGateway) ModifyStopLoss(ctx context.Context, orderID string, newStop float64, precision int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modifies++
	g.lastModify = newStop
	return g.modifyErr
}

func (g *fakeGateway) GetOrder(ctx context.Context, orderID string) (models.OrderDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getOrders++
	return g.getOrder, g.getOrdErr
}

func (g *fakeGateway) SelectAccount(kind string) error { return nil }
func (g *fakeGateway) AccountID() string               { return "test-account" }

type fakeFeed struct {
	tick models.PriceTick
	ok   bool
}

func (f *fakeFeed) Last() (models.PriceTick, bool) { return f.tick, f.ok }

func (f *fakeFeed) WaitForTick(ctx context.Context, timeout time.Duration) (models.PriceTick, error) {
	if !f.ok {
		return models.PriceTick{}, fmt.Errorf("no price data received within timeout")
	}
	return f.tick, nil
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

func testConfig() *config.Config {
	cfg := &config.Config{
		DefaultRiskPct:      1.0,
		DefaultStopLossPips: 20,
		TakeProfitRR:        1.0,
		MinUnits:            1,
		MaxUnits:            10_000_000,
		GatewayTimeout:      time.Second,
		// фоновый поллер не должен мешать ручным вызовам reconcileOnce
		OrderPollEvery: time.Hour,
	}
	return cfg
}

var testInst = models.Instrument{
	Alias:     "EU",
	Symbol:    "EUR_USD",
	PipValue:  0.0001,
	Precision: 5,
}

func newTestController(gw *fakeGateway, feed *fakeFeed, sink *memSink) *Controller {
	c := NewController(context.Background(), testConfig(), gw, feed, sink, nil)
	if err := c.SelectInstrument(testInst); err != nil {
		panic(err)
	}
	return c
}

func defaultFeed() *fakeFeed {
	return &fakeFeed{
		tick: models.PriceTick{Bid: 1.09990, Ask: 1.10000, Spread: 0.0001, Time: time.Now()},
		ok:   true,
	}
}

// --- тесты ---

func TestPlaceEntryMarket(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "42", Filled: true, FillPrice: 1.10001},
	}
	sink := &memSink{}
	c := newTestController(gw, defaultFeed(), sink)

	active, err := c.PlaceEntry(context.Background(), models.EntryMarket, models.DirectionLong)
	require.NoError(t, err)

	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, "42", active.OrderID)
	assert.True(t, active.Filled)
	assert.Equal(t, 50000, active.Units)
	assert.InDelta(t, 1.10001, active.Entry, 1e-9)

	// стоп/тейк посчитаны от тика на момент команды (ask для long)
	require.Len(t, gw.submitted, 1)
	intent := gw.submitted[0]
	assert.InDelta(t, 1.09800, intent.StopLoss, 1e-9)
	assert.InDelta(t, 1.10200, intent.TakeProfit, 1e-9)
	assert.NotEmpty(t, intent.ClientID)

	assert.Equal(t, []State{StateIdle, StatePendingSubmit, StateOpen}, c.Trace())
	assert.Contains(t, sink.kinds(), models.EventEntryPlaced)
	assert.Contains(t, sink.kinds(), models.EventOrderFilled)
}

func TestPlaceEntryLimitStaysUnfilled(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "7"},
		getOrder:  models.OrderDetails{OrderID: "7", State: models.StatusPending},
	}
	c := newTestController(gw, defaultFeed(), &memSink{})

	active, err := c.PlaceEntry(context.Background(), models.EntryLimit, models.DirectionShort)
	require.NoError(t, err)

	assert.Equal(t, StateOpen, c.State())
	assert.False(t, active.Filled)
	// short входит по bid
	require.Len(t, gw.submitted, 1)
	assert.InDelta(t, 1.09990, gw.submitted[0].Price, 1e-9)
}

func TestPlaceEntryRefusedWhileOpen(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "1", Filled: true, FillPrice: 1.1},
	}
	c := newTestController(gw, defaultFeed(), &memSink{})

	first, err := c.PlaceEntry(context.Background(), models.EntryMarket, models.DirectionLong)
	require.NoError(t, err)

	_, err = c.PlaceEntry(context.Background(), models.EntryMarket, models.DirectionLong)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	// ActiveOrder не тронут, второго сабмита не было
	assert.Equal(t, first.OrderID, c.Active().OrderID)
	assert.Len(t, gw.submitted, 1)
}

func TestPlaceEntryGatewayErrorClearsOrder(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitErr: fmt.Errorf("SubmitOrder http 500: boom"),
	}
	sink := &memSink{}
	c := newTestController(gw, defaultFeed(), sink)

	_, err := c.PlaceEntry(context.Background(), models.EntryMarket, models.DirectionLong)
	require.Error(t, err)

	// Rejected -> Idle, ордера нет, ретраев нет
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Active())
	assert.Len(t, gw.submitted, 1)
	assert.Equal(t, []State{StateIdle, StatePendingSubmit, StateRejected, StateIdle}, c.Trace())
	assert.Contains(t, sink.kinds(), models.EventOrderRejected)
}

func TestPlaceEntryInvalidRiskNeverReachesGateway(t *testing.T) {
	gw := &fakeGateway{equity: 10000}
	c := newTestController(gw, defaultFeed(), &memSink{})
	require.Error(t, c.SetRisk(-1)) // отклонено, параметр не применён

	p := c.Params()
	assert.InDelta(t, 1.0, p.RiskPct, 1e-9)
}

func TestCancelUnfilledLimit(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "7"},
		cancelRes: models.CancelResult{Cancelled: true},
		getOrder:  models.OrderDetails{OrderID: "7", State: models.StatusPending},
	}
	sink := &memSink{}
	c := newTestController(gw, defaultFeed(), sink)

	_, err := c.PlaceEntry(context.Background(), models.EntryLimit, models.DirectionLong)
	require.NoError(t, err)

	require.NoError(t, c.Cancel(context.Background()))

	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Active())
	assert.Equal(t, 1, gw.cancels)
	assert.Contains(t, sink.kinds(), models.EventOrderCancel)
	assert.Contains(t, c.Trace(), StateClosing)
	assert.Contains(t, c.Trace(), StateCancelled)
}

func TestCancelRacesFillReconcilesToOpen(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "7"},
		cancelRes: models.CancelResult{AlreadyFilled: true},
		getOrder:  models.OrderDetails{OrderID: "7", State: models.StatusFilled, FillPrice: 1.09995},
	}
	sink := &memSink{}
	c := newTestController(gw, defaultFeed(), sink)

	_, err := c.PlaceEntry(context.Background(), models.EntryLimit, models.DirectionLong)
	require.NoError(t, err)

	require.NoError(t, c.Cancel(context.Background()))

	// гонку выиграл fill: Open/filled, не Cancelled
	assert.Equal(t, StateOpen, c.State())
	active := c.Active()
	require.NotNil(t, active)
	assert.True(t, active.Filled)
	assert.InDelta(t, 1.09995, active.Entry, 1e-9)
	assert.Contains(t, sink.kinds(), models.EventReconciled)
	assert.NotContains(t, sink.kinds(), models.EventOrderCancel)
}

func TestCancelMarketPositionRefused(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "1", Filled: true, FillPrice: 1.1},
	}
	c := newTestController(gw, defaultFeed(), &memSink{})

	_, err := c.PlaceEntry(context.Background(), models.EntryMarket, models.DirectionLong)
	require.NoError(t, err)

	require.ErrorIs(t, c.Cancel(context.Background()), ErrInvalidStateTransition)
	assert.Equal(t, 0, gw.cancels)
}

func TestAdjustStopLoss(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "1", Filled: true, FillPrice: 1.10000},
	}
	sink := &memSink{}
	c := newTestController(gw, defaultFeed(), sink)

	_, err := c.PlaceEntry(context.Background(), models.EntryMarket, models.DirectionLong)
	require.NoError(t, err)

	require.NoError(t, c.AdjustStopLoss(context.Background(), 10))

	// стоп пересчитан от записанной цены входа
	assert.Equal(t, 1, gw.modifies)
	assert.InDelta(t, 1.09900, gw.lastModify, 1e-9)
	assert.InDelta(t, 1.09900, c.Active().StopLoss, 1e-9)
	assert.Equal(t, StateOpen, c.State())
	assert.Contains(t, sink.kinds(), models.EventStopAdjusted)
}

func TestAdjustStopLossInIdleRefusedWithoutGatewayCall(t *testing.T) {
	gw := &fakeGateway{equity: 10000}
	c := newTestController(gw, defaultFeed(), &memSink{})

	err := c.AdjustStopLoss(context.Background(), 10)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, 0, gw.modifies)
}

func TestAdjustStopLossBadPips(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "1", Filled: true, FillPrice: 1.1},
	}
	c := newTestController(gw, defaultFeed(), &memSink{})

	_, err := c.PlaceEntry(context.Background(), models.EntryMarket, models.DirectionLong)
	require.NoError(t, err)

	require.ErrorIs(t, c.AdjustStopLoss(context.Background(), -3), risk.ErrInvalidRiskInput)
	assert.Equal(t, 0, gw.modifies)
}

func TestReconcileLimitFill(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "7"},
		getOrder:  models.OrderDetails{OrderID: "7", State: models.StatusFilled, FillPrice: 1.09980},
	}
	sink := &memSink{}
	c := newTestController(gw, defaultFeed(), sink)

	_, err := c.PlaceEntry(context.Background(), models.EntryLimit, models.DirectionLong)
	require.NoError(t, err)

	// одна итерация поллинга: брокер говорит FILLED
	keep := c.reconcileOnce(context.Background(), "7")
	assert.False(t, keep)

	active := c.Active()
	require.NotNil(t, active)
	assert.True(t, active.Filled)
	assert.InDelta(t, 1.09980, active.Entry, 1e-9)
	assert.Contains(t, sink.kinds(), models.EventOrderFilled)
}

func TestReconcileBrokerCancel(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "7"},
		getOrder:  models.OrderDetails{OrderID: "7", State: models.StatusCancelled},
	}
	c := newTestController(gw, defaultFeed(), &memSink{})

	_, err := c.PlaceEntry(context.Background(), models.EntryLimit, models.DirectionLong)
	require.NoError(t, err)

	keep := c.reconcileOnce(context.Background(), "7")
	assert.False(t, keep)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Active())
}

func TestSingleActiveOrderInvariant(t *testing.T) {
	gw := &fakeGateway{
		equity:    10000,
		submitRes: models.SubmitResult{OrderID: "7"},
		cancelRes: models.CancelResult{Cancelled: true},
		getOrder:  models.OrderDetails{OrderID: "7", State: models.StatusPending},
	}
	c := newTestController(gw, defaultFeed(), &memSink{})

	// произвольная последовательность команд; после каждой — не больше
	// одного активного ордера, и только в Open/Closing
	commands := []func() error{
		func() error { _, err := c.PlaceEntry(context.Background(), models.EntryLimit, models.DirectionLong); return err },
		func() error { _, err := c.PlaceEntry(context.Background(), models.EntryMarket, models.DirectionShort); return err },
		func() error { return c.AdjustStopLoss(context.Background(), 15) },
		func() error { return c.Cancel(context.Background()) },
		func() error { return c.Cancel(context.Background()) },
		func() error { _, err := c.PlaceEntry(context.Background(), models.EntryLimit, models.DirectionShort); return err },
	}
	for i, cmd := range commands {
		_ = cmd() // часть команд обязана отклониться — это и проверяем трейсом

		active := c.Active()
		state := c.State()
		if active == nil {
			assert.NotEqual(t, StateOpen, state, "command %d", i)
		} else {
			assert.Contains(t, []State{StateOpen, StateClosing}, state, "command %d", i)
		}
	}

	// в трейсе никогда нет двух PendingSubmit подряд без возврата в Idle
	trace := c.Trace()
	for i := 0; i < len(trace)-1; i++ {
		if trace[i] == StatePendingSubmit {
			assert.NotEqual(t, StatePendingSubmit, trace[i+1])
		}
	}
}

func TestPlaceEntryWithoutPrice(t *testing.T) {
	gw := &fakeGateway{equity: 10000}
	c := newTestController(gw, &fakeFeed{}, &memSink{})

	_, err := c.PlaceEntry(context.Background(), models.EntryMarket, models.DirectionLong)
	require.Error(t, err)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, gw.submitted)
}

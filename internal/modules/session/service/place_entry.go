package service

import (
	"context"
	"fmt"
	"time"

	"trade_terminal/internal/models"
	"trade_terminal/internal/risk"

	"github.com/google/uuid"
)

// PlaceEntry — вход limit/market. Разрешён только из Idle: пока живёт
// ActiveOrder, второй вход невозможен (центральный инвариант сессии).
func (c *Controller) PlaceEntry(ctx context.Context, typ models.EntryType, dir models.Direction) (*models.ActiveOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle || c.active != nil {
		return nil, fmt.Errorf("%w: placeEntry in state %s", ErrInvalidStateTransition, c.state)
	}
	inst := c.params.Instrument
	if inst.Symbol == "" {
		return nil, fmt.Errorf("placeEntry: instrument is not selected")
	}

	started := time.Now()

	// 1. Текущий тик — какой успели увидеть к моменту команды
	tick, err := c.feed.WaitForTick(ctx, c.cfg.GatewayTimeout)
	if err != nil {
		return nil, fmt.Errorf("placeEntry: %w", err)
	}

	// 2. Депозит с брокера
	gctx, cancel := c.gatewayCtx(ctx)
	equity, err := c.gw.AccountEquity(gctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("placeEntry: %w", err)
	}

	// 3. Сайзинг по риску
	units, err := risk.ComputeSize(equity, c.params.RiskPct, c.params.StopLossPips, inst,
		risk.Limits{MinUnits: c.cfg.MinUnits, MaxUnits: c.cfg.MaxUnits})
	if err != nil {
		return nil, fmt.Errorf("placeEntry: %w", err)
	}

	// 4. Цены входа/стопа/тейка от текущего тика
	entry := risk.RoundToPrecision(tick.PriceFor(dir), inst.Precision)
	sl := risk.StopPrice(dir, entry, c.params.StopLossPips, inst)
	tp := risk.TakeProfitPrice(dir, entry, c.params.StopLossPips, c.cfg.TakeProfitRR, inst)

	intent := models.OrderIntent{
		ClientID:   uuid.NewString(),
		Symbol:     inst.Symbol,
		Type:       typ,
		Direction:  dir,
		Units:      units,
		StopLoss:   sl,
		TakeProfit: tp,
	}
	if typ == models.EntryLimit {
		intent.Price = entry
	}

	// 5. Сабмит. Ошибка/таймаут — Rejected и назад в Idle, без ретраев.
	c.setState(StatePendingSubmit)

	gctx, cancel = c.gatewayCtx(ctx)
	res, err := c.gw.SubmitOrder(gctx, intent, inst.Precision)
	cancel()
	if err != nil {
		c.clearActive(StateRejected)
		c.emit(ctx, models.EventOrderRejected, map[string]any{
			"symbol": inst.Symbol,
			"type":   string(typ),
			"error":  err.Error(),
		})
		c.notifyf("❌ [%s] вход отклонён: %v", inst.Symbol, err)
		return nil, fmt.Errorf("placeEntry: %w", err)
	}

	filled := res.Filled || typ == models.EntryMarket
	entryPx := entry
	if res.FillPrice > 0 {
		entryPx = res.FillPrice
	}

	active := &models.ActiveOrder{
		OrderID:    res.OrderID,
		ClientID:   intent.ClientID,
		Symbol:     inst.Symbol,
		Type:       typ,
		Direction:  dir,
		Units:      units,
		Entry:      entryPx,
		StopLoss:   sl,
		TakeProfit: tp,
		Status:     models.StatusOpen,
		Filled:     filled,
		PlacedAt:   started,
	}
	c.active = active
	c.setState(StateOpen)

	execMs := time.Since(started).Milliseconds()
	c.emit(ctx, models.EventEntryPlaced, map[string]any{
		"orderId": active.OrderID,
		"symbol":  active.Symbol,
		"type":    string(typ),
		"dir":     string(dir),
		"units":   units,
		"entry":   entryPx,
		"sl":      sl,
		"tp":      tp,
		"execMs":  execMs,
	})
	if filled {
		c.emit(ctx, models.EventOrderFilled, map[string]any{
			"orderId": active.OrderID,
			"price":   entryPx,
		})
	}

	c.notifyf("✅ [%s] %s %s @ %.5f | SL=%.5f TP=%.5f units=%d (%dms)",
		active.Symbol, typ, dir, entryPx, sl, tp, units, execMs)

	// лимитка висит у брокера — поллим её статус в фоне
	if typ == models.EntryLimit && !filled {
		go c.pollOrder(c.baseCtx, active.OrderID)
	}

	cp := *active
	return &cp, nil
}

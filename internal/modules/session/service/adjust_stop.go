package service

import (
	"context"
	"fmt"

	"trade_terminal/internal/models"
	"trade_terminal/internal/risk"
)

// AdjustStopLoss — перестановка стопа живого ордера. Новый стоп
// считается от ЗАПИСАННОЙ цены входа, не от текущего тика.
func (c *Controller) AdjustStopLoss(ctx context.Context, newPips float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.active == nil {
		// никакого вызова шлюза из невалидного состояния
		return fmt.Errorf("%w: adjustStopLoss in state %s", ErrInvalidStateTransition, c.state)
	}
	if newPips <= 0 {
		return fmt.Errorf("%w: slPips <= 0 (%.2f)", risk.ErrInvalidRiskInput, newPips)
	}

	inst := c.params.Instrument
	newStop := risk.StopPrice(c.active.Direction, c.active.Entry, newPips, inst)
	oldStop := c.active.StopLoss
	orderID := c.active.OrderID

	gctx, cancel := c.gatewayCtx(ctx)
	err := c.gw.ModifyStopLoss(gctx, orderID, newStop, inst.Precision)
	cancel()
	if err != nil {
		c.clearActive(StateError)
		c.emit(ctx, models.EventError, map[string]any{
			"op":      "adjust_stop",
			"orderId": orderID,
			"error":   err.Error(),
		})
		return fmt.Errorf("adjustStopLoss: %w", err)
	}

	c.active.StopLoss = newStop
	c.params.StopLossPips = newPips

	c.emit(ctx, models.EventStopAdjusted, map[string]any{
		"orderId": orderID,
		"oldStop": oldStop,
		"newStop": newStop,
		"pips":    newPips,
	})
	c.notifyf("🔁 [%s] стоп переставлен %.5f -> %.5f (%.1f pips)", c.active.Symbol, oldStop, newStop, newPips)
	return nil
}

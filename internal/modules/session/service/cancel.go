package service

import (
	"context"
	"fmt"

	"trade_terminal/internal/models"
)

// Cancel — отмена ещё не исполненной лимитки. Успех не предполагаем,
// пока шлюз не подтвердил: если ордер успел исполниться, ответ брокера
// выигрывает гонку и мы реконсилимся в Open/filled, а не в Cancelled.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.active == nil {
		return fmt.Errorf("%w: cancel in state %s", ErrInvalidStateTransition, c.state)
	}
	if c.active.Type != models.EntryLimit || c.active.Filled {
		return fmt.Errorf("%w: only an unfilled limit order can be cancelled", ErrInvalidStateTransition)
	}

	orderID := c.active.OrderID
	c.setState(StateClosing)

	gctx, cancel := c.gatewayCtx(ctx)
	res, err := c.gw.CancelOrder(gctx, orderID)
	cancel()
	if err != nil {
		c.clearActive(StateError)
		c.emit(ctx, models.EventError, map[string]any{
			"op":      "cancel",
			"orderId": orderID,
			"error":   err.Error(),
		})
		return fmt.Errorf("cancel: %w", err)
	}

	if res.AlreadyFilled {
		// гонка cancel/fill: брокер сказал "исполнен" — верим ему
		fillPx := res.FillPrice
		if fillPx <= 0 {
			gctx, cancel := c.gatewayCtx(ctx)
			det, derr := c.gw.GetOrder(gctx, orderID)
			cancel()
			if derr == nil && det.FillPrice > 0 {
				fillPx = det.FillPrice
			}
		}
		c.active.Filled = true
		if fillPx > 0 {
			c.active.Entry = fillPx
		}
		c.setState(StateOpen)
		c.emit(ctx, models.EventReconciled, map[string]any{
			"orderId": orderID,
			"price":   c.active.Entry,
			"note":    "cancel raced fill, broker reports filled",
		})
		c.notifyf("⚠️ [%s] отмена опоздала — ордер исполнен @ %.5f", c.active.Symbol, c.active.Entry)
		return nil
	}

	symbol := c.active.Symbol
	c.clearActive(StateCancelled)
	c.emit(ctx, models.EventOrderCancel, map[string]any{
		"orderId": orderID,
		"reason":  "operator request",
	})
	c.notifyf("🚫 [%s] лимитка %s отменена", symbol, orderID)
	return nil
}

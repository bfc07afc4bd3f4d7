package service

import (
	"context"
	"time"

	"trade_terminal/internal/models"
	"trade_terminal/pkg/logger"
)

// pollOrder — фоновый поллинг висящей лимитки, как советует брокер:
// раз в секунду спрашиваем статус, пока ордер не станет терминальным.
// Каждая итерация проходит через общий мьютекс — с командами не
// пересекаемся.
func (c *Controller) pollOrder(ctx context.Context, orderID string) {
	t := time.NewTicker(c.cfg.OrderPollEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !c.reconcileOnce(ctx, orderID) {
				return
			}
		}
	}
}

// reconcileOnce возвращает false, когда поллить больше нечего.
func (c *Controller) reconcileOnce(ctx context.Context, orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// ордер уже снят/исполнен/заменён другой командой
	if c.state != StateOpen || c.active == nil || c.active.OrderID != orderID || c.active.Filled {
		return false
	}

	gctx, cancel := c.gatewayCtx(ctx)
	det, err := c.gw.GetOrder(gctx, orderID)
	cancel()
	if err != nil {
		// поллинг терпим к транзиентным ошибкам, команду он не роняет
		logger.Warn("[SESSION] poll order %s: %v", orderID, err)
		return true
	}

	switch det.State {
	case models.StatusFilled:
		c.active.Filled = true
		if det.FillPrice > 0 {
			c.active.Entry = det.FillPrice
		}
		c.emit(ctx, models.EventOrderFilled, map[string]any{
			"orderId": orderID,
			"price":   c.active.Entry,
		})
		c.notifyf("✅ [%s] лимитка исполнена @ %.5f", c.active.Symbol, c.active.Entry)
		return false

	case models.StatusCancelled:
		// брокер снял ордер сам (margin check, expiry)
		symbol := c.active.Symbol
		c.clearActive(StateCancelled)
		c.emit(ctx, models.EventOrderCancel, map[string]any{
			"orderId": orderID,
			"reason":  "cancelled by broker",
		})
		c.notifyf("🚫 [%s] лимитка %s снята брокером", symbol, orderID)
		return false

	default:
		return true
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"trade_terminal/internal/models"

	"github.com/opentracing/opentracing-go"
)

// CancelOrder — best-effort отмена лимитки. Если ордер успел исполниться
// до обработки отмены, брокер отвечает reject'ом ORDER_ALREADY_FILLED —
// гонку резолвит его ответ, не мы.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (models.CancelResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "broker.CancelOrder")
	defer span.Finish()

	var res models.CancelResult

	url := fmt.Sprintf("%s/v3/accounts/%s/orders/%s/cancel", c.restURL, c.AccountID(), orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return res, fmt.Errorf("CancelOrder new request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("CancelOrder do: %w: %w", err, ErrGateway)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode/100 == 2 {
		res.Cancelled = true
		return res, nil
	}

	// reject может означать "уже исполнен" — это не ошибка, а исход гонки
	var r struct {
		OrderCancelRejectTransaction *struct {
			RejectReason string `json:"rejectReason"`
		} `json:"orderCancelRejectTransaction"`
		ErrorCode string `json:"errorCode"`
	}
	_ = json.Unmarshal(data, &r)

	reason := r.ErrorCode
	if r.OrderCancelRejectTransaction != nil {
		reason = r.OrderCancelRejectTransaction.RejectReason
	}
	if reason == "ORDER_ALREADY_FILLED" || reason == "ORDER_FILLED" {
		res.AlreadyFilled = true
		return res, nil
	}

	return res, wrapStatus("CancelOrder", resp.StatusCode, data)
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"trade_terminal/internal/helper"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
)

// ModifyStopLoss переставляет серверный стоп живого ордера/позиции.
func (c *Client) ModifyStopLoss(ctx context.Context, orderID string, newStop float64, precision int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "broker.ModifyStopLoss")
	defer span.Finish()

	body := map[string]any{
		"stopLoss": map[string]string{
			"price":       helper.FormatPrice(newStop, precision),
			"timeInForce": "GTC",
		},
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return fmt.Errorf("ModifyStopLoss marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v3/accounts/%s/orders/%s/stop-loss", c.restURL, c.AccountID(), orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ModifyStopLoss new request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ModifyStopLoss do: %w: %w", err, ErrGateway)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return wrapStatus("ModifyStopLoss", resp.StatusCode, data)
	}

	var r struct {
		StopLossTransaction *struct {
			ID string `json:"id"`
		} `json:"stopLossTransaction"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("ModifyStopLoss decode: %w; body=%s", err, string(data))
	}
	if r.StopLossTransaction == nil {
		return fmt.Errorf("ModifyStopLoss: no transaction in response; body=%s: %w", string(data), ErrGateway)
	}

	return nil
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"trade_terminal/internal/models"

	"github.com/opentracing/opentracing-go"
)

// GetOrder — текущее состояние ордера у брокера (поллинг лимиток
// и reconcile после гонки cancel/fill).
func (c *Client) GetOrder(ctx context.Context, orderID string) (models.OrderDetails, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "broker.GetOrder")
	defer span.Finish()

	var det models.OrderDetails

	url := fmt.Sprintf("%s/v3/accounts/%s/orders/%s", c.restURL, c.AccountID(), orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return det, fmt.Errorf("GetOrder new request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return det, fmt.Errorf("GetOrder do: %w: %w", err, ErrGateway)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return det, wrapStatus("GetOrder", resp.StatusCode, data)
	}

	var r struct {
		Order struct {
			ID           string `json:"id"`
			State        string `json:"state"` // PENDING | FILLED | CANCELLED
			AvgFillPrice string `json:"avgFillPrice"`
			Price        string `json:"price"`
		} `json:"order"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return det, fmt.Errorf("GetOrder decode: %w; body=%s", err, string(data))
	}

	det.OrderID = r.Order.ID
	switch r.Order.State {
	case "PENDING":
		det.State = models.StatusPending
	case "FILLED":
		det.State = models.StatusFilled
	case "CANCELLED":
		det.State = models.StatusCancelled
	default:
		return det, fmt.Errorf("GetOrder: unknown state %q: %w", r.Order.State, ErrGateway)
	}

	px := r.Order.AvgFillPrice
	if px == "" {
		px = r.Order.Price
	}
	det.FillPrice, _ = strconv.ParseFloat(px, 64)

	return det, nil
}

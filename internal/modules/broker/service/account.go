package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/opentracing/opentracing-go"
)

// AccountEquity — баланс счёта, исходная величина для сайзинга.
func (c *Client) AccountEquity(ctx context.Context) (float64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "broker.AccountEquity")
	defer span.Finish()

	url := fmt.Sprintf("%s/v3/accounts/%s/summary", c.restURL, c.AccountID())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("AccountEquity new request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("AccountEquity do: %w: %w", err, ErrGateway)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, wrapStatus("AccountEquity", resp.StatusCode, data)
	}

	var r struct {
		Account struct {
			Balance string `json:"balance"`
		} `json:"account"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return 0, fmt.Errorf("AccountEquity decode: %w; body=%s", err, string(data))
	}

	balance, err := strconv.ParseFloat(r.Account.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("AccountEquity parse balance %q: %w", r.Account.Balance, err)
	}
	if balance <= 0 {
		return 0, fmt.Errorf("AccountEquity: balance <= 0 (%.2f): %w", balance, ErrGateway)
	}

	return balance, nil
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"trade_terminal/internal/helper"
	"trade_terminal/internal/models"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
)

type orderRequest struct {
	Order orderBody `json:"order"`
}

type orderBody struct {
	Type             string        `json:"type"` // LIMIT | MARKET
	Instrument       string        `json:"instrument"`
	Units            string        `json:"units"`
	Price            string        `json:"price,omitempty"` // только LIMIT
	TimeInForce      string        `json:"timeInForce"`
	PositionFill     string        `json:"positionFill"`
	ClientExtensions clientExt     `json:"clientExtensions"`
	StopLossOnFill   *priceOnFill  `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill *takeProfitOF `json:"takeProfitOnFill,omitempty"`
}

type clientExt struct {
	ID string `json:"id"`
}

type priceOnFill struct {
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce"`
}

type takeProfitOF struct {
	Price string `json:"price"`
}

// SubmitOrder размещает ордер со стопом и тейком атомарно с входом
// (stopLossOnFill/takeProfitOnFill) — стоп дальше ведёт сервер брокера.
func (c *Client) SubmitOrder(ctx context.Context, intent models.OrderIntent, precision int) (models.SubmitResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "broker.SubmitOrder")
	defer span.Finish()

	var res models.SubmitResult

	body := orderBody{
		Instrument:       intent.Symbol,
		Units:            helper.FormatUnits(intent.Units, intent.Direction),
		PositionFill:     "DEFAULT",
		ClientExtensions: clientExt{ID: intent.ClientID},
		StopLossOnFill: &priceOnFill{
			Price:       helper.FormatPrice(intent.StopLoss, precision),
			TimeInForce: "GTC",
		},
	}
	if intent.TakeProfit > 0 {
		body.TakeProfitOnFill = &takeProfitOF{
			Price: helper.FormatPrice(intent.TakeProfit, precision),
		}
	}

	switch intent.Type {
	case models.EntryLimit:
		body.Type = "LIMIT"
		body.TimeInForce = "GTC"
		body.Price = helper.FormatPrice(intent.Price, precision)
	case models.EntryMarket:
		body.Type = "MARKET"
		body.TimeInForce = "FOK"
	default:
		return res, fmt.Errorf("SubmitOrder: unsupported entry type %q", intent.Type)
	}

	payload, err := sonic.Marshal(orderRequest{Order: body})
	if err != nil {
		return res, fmt.Errorf("SubmitOrder marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v3/accounts/%s/orders", c.restURL, c.AccountID())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return res, fmt.Errorf("SubmitOrder new request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("SubmitOrder do: %w: %w", err, ErrGateway)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return res, wrapStatus("SubmitOrder", resp.StatusCode, data)
	}

	var r struct {
		OrderCreateTransaction struct {
			ID string `json:"id"`
		} `json:"orderCreateTransaction"`
		OrderFillTransaction *struct {
			Price string `json:"price"`
		} `json:"orderFillTransaction"`
		OrderRejectTransaction *struct {
			RejectReason string `json:"rejectReason"`
		} `json:"orderRejectTransaction"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return res, fmt.Errorf("SubmitOrder decode: %w; body=%s", err, string(data))
	}

	if r.OrderRejectTransaction != nil {
		return res, fmt.Errorf("SubmitOrder rejected: %s: %w",
			r.OrderRejectTransaction.RejectReason, ErrGateway)
	}
	if r.OrderCreateTransaction.ID == "" {
		return res, fmt.Errorf("SubmitOrder: empty order id; body=%s: %w", string(data), ErrGateway)
	}

	res.OrderID = r.OrderCreateTransaction.ID
	// маркет исполняется сразу — fill приходит в том же ответе
	if r.OrderFillTransaction != nil {
		res.Filled = true
		res.FillPrice, _ = strconv.ParseFloat(r.OrderFillTransaction.Price, 64)
	}

	return res, nil
}

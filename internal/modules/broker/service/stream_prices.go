package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"trade_terminal/internal/models"
)

// StreamPrices — одно websocket-подключение к ценовому стриму брокера.
// Тики уходят в out, функция живёт до обрыва соединения (возвращает
// ошибку) или отмены ctx (возвращает nil). Реконнект и backoff — забота
// прайсфида, здесь только одно соединение.
func (c *Client) StreamPrices(ctx context.Context, symbol string, out chan<- models.PriceTick) error {
	url := c.streamURL + "/v3/prices/stream"

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.wsDialer.DialContext(ctx, url, hdr)
	if err != nil {
		// 401 на хендшейке — фатально, ретраить бессмысленно
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("StreamPrices dial http %d: %w", resp.StatusCode, ErrAuth)
		}
		return fmt.Errorf("StreamPrices dial: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{
		"op": "subscribe",
		"args": []map[string]string{{
			"channel": "prices",
			"instId":  symbol,
		}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("StreamPrices subscribe: %w", err)
	}

	// keepalive ping — иначе брокер рвёт тихое соединение
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(c.cfg.FeedPingHold)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopPing:
				return
			case <-t.C:
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("StreamPrices read: %w", err)
		}

		var frame struct {
			Arg struct {
				Channel string `json:"channel"`
				InstID  string `json:"instId"`
			} `json:"arg"`
			Data []struct {
				Bid string `json:"bid"`
				Ask string `json:"ask"`
				TS  string `json:"ts"` // unix ms
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Arg.Channel != "prices" || frame.Arg.InstID != symbol || len(frame.Data) == 0 {
			continue
		}

		for _, row := range frame.Data {
			bid, err1 := strconv.ParseFloat(row.Bid, 64)
			ask, err2 := strconv.ParseFloat(row.Ask, 64)
			if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
				continue
			}

			ts := time.Now()
			if ms, err := strconv.ParseInt(row.TS, 10, 64); err == nil && ms > 0 {
				ts = time.UnixMilli(ms)
			}

			tick := models.PriceTick{
				Bid:    bid,
				Ask:    ask,
				Spread: math.Abs(ask - bid),
				Time:   ts,
			}

			select {
			case out <- tick:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

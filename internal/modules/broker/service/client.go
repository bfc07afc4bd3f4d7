package service

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"trade_terminal/internal/modules/config"

	"github.com/gorilla/websocket"
)

var (
	// ErrAuth — фатально: токен не принят, сессия завершается.
	ErrAuth = errors.New("broker: authentication failed")
	// ErrGateway — сетевая/брокерская ошибка. Не ретраим автоматически:
	// повтор неоднозначного сабмита — риск дублированного ордера.
	ErrGateway = errors.New("broker: gateway error")
)

type Client struct {
	cfg *config.Config

	http     *http.Client
	wsDialer *websocket.Dialer

	restURL   string
	streamURL string
	token     string

	mu        sync.RWMutex
	accountID string
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: 15 * time.Second},
		wsDialer:  &websocket.Dialer{},
		restURL:   cfg.Broker.RestURL,
		streamURL: cfg.Broker.StreamURL,
		token:     cfg.Broker.Token,
		accountID: cfg.Broker.PrimaryAccount,
	}
}

// SelectAccount — переключение primary/secondary до начала торговли.
func (c *Client) SelectAccount(kind string) error {
	var id string
	switch kind {
	case "primary":
		id = c.cfg.Broker.PrimaryAccount
	case "secondary":
		id = c.cfg.Broker.SecondaryAccount
	default:
		return fmt.Errorf("SelectAccount: unknown account %q", kind)
	}
	if id == "" {
		return fmt.Errorf("SelectAccount: account %q is not configured", kind)
	}

	c.mu.Lock()
	c.accountID = id
	c.mu.Unlock()
	return nil
}

func (c *Client) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

// wrapStatus — 401 всегда ErrAuth, остальные не-2xx — ErrGateway.
func wrapStatus(op string, status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%s http %d: %w", op, status, ErrAuth)
	}
	return fmt.Errorf("%s http %d: %s: %w", op, status, string(body), ErrGateway)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trade_terminal/internal/models"
	"trade_terminal/internal/modules/config"
	"trade_terminal/internal/risk"
	"trade_terminal/pkg/logger"
)

// ErrInvalidStateTransition — команда конфликтует с текущим состоянием
// жизненного цикла. Состояние при этом не меняется.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// State — состояние единственного ордера сессии.
type State string

const (
	StateIdle          State = "IDLE"
	StatePendingSubmit State = "PENDING_SUBMIT"
	StateOpen          State = "OPEN"
	StateClosing       State = "CLOSING"
	StateCancelled     State = "CANCELLED"
	StateRejected      State = "REJECTED"
	StateError         State = "ERROR"
)

// Gateway — брокерский шлюз. Все вызовы с bounded timeout, таймаут =
// GatewayError (не ретраим: повтор неоднозначного сабмита — дубль ордера).
type Gateway interface {
	AccountEquity(ctx context.Context) (float64, error)
	SubmitOrder(ctx context.Context, intent models.OrderIntent, precision int) (models.SubmitResult, error)
	CancelOrder(ctx context.Context, orderID string) (models.CancelResult, error)
	ModifyStopLoss(ctx context.Context, orderID string, newStop float64, precision int) error
	GetOrder(ctx context.Context, orderID string) (models.OrderDetails, error)
	SelectAccount(kind string) error
	AccountID() string
}

// PriceSource — ячейка последнего тика.
type PriceSource interface {
	Last() (models.PriceTick, bool)
	WaitForTick(ctx context.Context, timeout time.Duration) (models.PriceTick, error)
}

// EventSink — журнал сессии.
type EventSink interface {
	Append(ctx context.Context, ev models.SessionEvent)
}

// Notifier — опциональные уведомления (телеграм). Может быть nil.
type Notifier interface {
	Sendf(format string, args ...any)
}

// Controller — стейт-машина жизненного цикла ордера. Владеет
// единственным ActiveOrder и SessionParameters; все команды идут через
// один мьютекс (single-writer), тики — только чтение ячейки фида.
type Controller struct {
	cfg  *config.Config
	gw   Gateway
	feed PriceSource
	sink EventSink
	n    Notifier

	// базовый контекст сессии для фонового поллинга лимиток
	baseCtx context.Context

	mu     sync.Mutex
	params models.SessionParameters
	state  State
	active *models.ActiveOrder
	trace  []State
}

func NewController(ctx context.Context, cfg *config.Config, gw Gateway, feed PriceSource, sink EventSink, n Notifier) *Controller {
	c := &Controller{
		cfg:     cfg,
		gw:      gw,
		feed:    feed,
		sink:    sink,
		n:       n,
		baseCtx: ctx,
		state:   StateIdle,
		params: models.SessionParameters{
			RiskPct:      cfg.DefaultRiskPct,
			StopLossPips: cfg.DefaultStopLossPips,
		},
	}
	c.params.AccountID = gw.AccountID()
	c.trace = append(c.trace, StateIdle)
	return c
}

// setState — единственная точка смены состояния; под c.mu.
func (c *Controller) setState(next State) {
	logger.Info("[SESSION] %s -> %s", c.state, next)
	c.state = next
	if len(c.trace) < 1024 {
		c.trace = append(c.trace, next)
	}
}

// State — текущее состояние (для статуса и тестов).
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Trace — копия трейса переходов (инвариант-чеки в тестах).
func (c *Controller) Trace() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]State, len(c.trace))
	copy(out, c.trace)
	return out
}

// Active — копия активного ордера, nil если его нет.
func (c *Controller) Active() *models.ActiveOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	cp := *c.active
	return &cp
}

// Params — копия параметров сессии.
func (c *Controller) Params() models.SessionParameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// SelectAccount — primary/secondary, только в Idle.
func (c *Controller) SelectAccount(kind string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("%w: select account in state %s", ErrInvalidStateTransition, c.state)
	}
	if err := c.gw.SelectAccount(kind); err != nil {
		return err
	}
	c.params.AccountID = c.gw.AccountID()
	return nil
}

// SelectInstrument — смена инструмента, только в Idle (активный ордер
// привязан к инструменту).
func (c *Controller) SelectInstrument(inst models.Instrument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("%w: select instrument in state %s", ErrInvalidStateTransition, c.state)
	}
	c.params.Instrument = inst
	return nil
}

// SetRisk — риск на сделку в процентах от депозита.
func (c *Controller) SetRisk(pct float64) error {
	if pct <= 0 {
		return fmt.Errorf("%w: riskPct <= 0 (%.4f)", risk.ErrInvalidRiskInput, pct)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.RiskPct = pct
	return nil
}

// SetStopLossPips — дефолтная дистанция стопа для следующих входов.
func (c *Controller) SetStopLossPips(pips float64) error {
	if pips <= 0 {
		return fmt.Errorf("%w: slPips <= 0 (%.2f)", risk.ErrInvalidRiskInput, pips)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.StopLossPips = pips
	return nil
}

// gatewayCtx — bounded timeout на каждый вызов шлюза.
func (c *Controller) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.GatewayTimeout)
}

// clearActive — сброс ордера и возврат в Idle (через переданное
// терминальное состояние, для трейса).
func (c *Controller) clearActive(via State) {
	c.active = nil
	c.setState(via)
	c.setState(StateIdle)
}

func (c *Controller) emit(ctx context.Context, kind models.EventKind, payload map[string]any) {
	c.sink.Append(ctx, models.NewEvent(kind, payload))
}

func (c *Controller) notifyf(format string, args ...any) {
	if c.n != nil {
		c.n.Sendf(format, args...)
	}
}

// EndSession — финальное событие журнала (вызывает координатор).
func (c *Controller) EndSession(ctx context.Context, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit(ctx, models.EventSessionEnd, map[string]any{
		"reason": reason,
		"state":  string(c.state),
	})
}

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"trade_terminal/internal/models"
	brokersvc "trade_terminal/internal/modules/broker/service"
	"trade_terminal/internal/modules/config"
	healthsvc "trade_terminal/internal/modules/health/service"
	"trade_terminal/pkg/logger"
)

// Streamer — одно соединение к ценовому стриму (обрыв = ошибка).
type Streamer interface {
	StreamPrices(ctx context.Context, symbol string, out chan<- models.PriceTick) error
}

// EventSink — журнал сессии, только запись.
type EventSink interface {
	Append(ctx context.Context, ev models.SessionEvent)
}

// Feed держит подписку на тики одного инструмента и публикует последний
// тик в одну ячейку (last-write-wins). Реконнект с экспоненциальным
// backoff, feed_degraded/feed_restored в журнал. Транзиентные обрывы
// наружу не выходят, AuthError — фатален и завершает стрим.
type Feed struct {
	cfg      *config.Config
	streamer Streamer
	sink     EventSink
	state    *healthsvc.State

	// единственная структура с конкурентными писателем (стрим) и
	// читателем (контроллер) — атомарный указатель, без torn reads
	cur atomic.Pointer[models.PriceTick]

	mu     sync.Mutex
	recent []models.PriceTick // кольцо последних тиков для status

	runMu  sync.Mutex
	cancel context.CancelFunc
	symbol string

	// после реконнекта первый свежий тик сбрасывает backoff
	attempt  int
	degraded bool

	fatal chan error
}

func New(cfg *config.Config, streamer Streamer, sink EventSink, state *healthsvc.State) *Feed {
	return &Feed{
		cfg:      cfg,
		streamer: streamer,
		sink:     sink,
		state:    state,
		fatal:    make(chan error, 1),
	}
}

// Fatal — канал фатальной ошибки фида (AuthError). Координатор по нему
// гасит сессию.
func (f *Feed) Fatal() <-chan error { return f.fatal }

// Last — последний наблюдаемый тик. false, пока тиков не было
// (или ячейка сброшена после обрыва).
func (f *Feed) Last() (models.PriceTick, bool) {
	p := f.cur.Load()
	if p == nil {
		return models.PriceTick{}, false
	}
	return *p, true
}

// WaitForTick ждёт появления тика в ячейке, не дольше timeout.
func (f *Feed) WaitForTick(ctx context.Context, timeout time.Duration) (models.PriceTick, error) {
	deadline := time.Now().Add(timeout)
	for {
		if tick, ok := f.Last(); ok {
			return tick, nil
		}
		if time.Now().After(deadline) {
			return models.PriceTick{}, errors.New("no price data received within timeout")
		}
		select {
		case <-ctx.Done():
			return models.PriceTick{}, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Recent — копия кольца последних тиков (для status).
func (f *Feed) Recent() []models.PriceTick {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PriceTick, len(f.recent))
	copy(out, f.recent)
	return out
}

// Symbol — инструмент текущей подписки.
func (f *Feed) Symbol() string {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	return f.symbol
}

// Start поднимает фоновую подписку на symbol. Повторный Start
// перезапускает подписку на новый инструмент.
func (f *Feed) Start(ctx context.Context, symbol string) {
	f.runMu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.symbol = symbol
	f.runMu.Unlock()

	f.clear()

	go f.run(runCtx, symbol)
}

// Stop гасит подписку (идемпотентно).
func (f *Feed) Stop() {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *Feed) run(ctx context.Context, symbol string) {
	f.attempt = 0
	f.degraded = false

	for {
		out := make(chan models.PriceTick)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for tick := range out {
				f.publish(ctx, tick)
			}
		}()

		err := f.streamer.StreamPrices(ctx, symbol, out)
		close(out)
		<-done

		if ctx.Err() != nil {
			f.setConnected(false)
			return
		}

		if errors.Is(err, brokersvc.ErrAuth) {
			// фатально: стрим не переживает плохой токен
			logger.Error("[FEED] %s auth failure: %v", symbol, err)
			f.setConnected(false)
			f.sink.Append(ctx, models.NewEvent(models.EventError, map[string]any{
				"scope":  "feed",
				"symbol": symbol,
				"error":  err.Error(),
			}))
			select {
			case f.fatal <- err:
			default:
			}
			return
		}

		// транзиентный обрыв: чистим ячейку (старые тики не реплеим),
		// ждём backoff и пробуем снова
		f.setConnected(false)
		f.clear()
		f.attempt++
		f.degraded = true

		delay := backoffDelay(f.attempt, f.cfg.FeedBackoffBase, f.cfg.FeedBackoffMax)
		logger.Warn("[FEED] %s stream dropped (attempt %d, retry in %s): %v", symbol, f.attempt, delay, err)
		f.sink.Append(ctx, models.NewEvent(models.EventFeedDegraded, map[string]any{
			"symbol":  symbol,
			"attempt": f.attempt,
			"retryIn": delay.String(),
			"error":   errString(err),
		}))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (f *Feed) publish(ctx context.Context, tick models.PriceTick) {
	f.cur.Store(&tick)
	f.setConnected(true)

	f.mu.Lock()
	f.recent = append(f.recent, tick)
	if max := f.cfg.TickCacheSize; max > 0 && len(f.recent) > max {
		f.recent = f.recent[len(f.recent)-max:]
	}
	f.mu.Unlock()

	if f.degraded {
		f.degraded = false
		f.attempt = 0
		logger.Info("[FEED] stream restored")
		f.sink.Append(ctx, models.NewEvent(models.EventFeedRestored, nil))
	}
}

func (f *Feed) clear() {
	f.cur.Store(nil)
}

func (f *Feed) setConnected(v bool) {
	if f.state == nil {
		return
	}
	f.state.SetWSConnected(v)
	if v {
		f.state.SetReady(true)
		f.state.TouchTick(time.Now())
	}
}

// backoffDelay — base * 2^(attempt-1), cap на max. Состояние backoff —
// просто номер попытки, без скрытой рекурсии.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		return base
	}
	if attempt > 30 {
		return max
	}
	d := base * time.Duration(1<<(attempt-1))
	if d > max {
		return max
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

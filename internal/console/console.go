package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"trade_terminal/internal/helper"
	"trade_terminal/internal/models"
	"trade_terminal/internal/modules/config"
	feedsvc "trade_terminal/internal/modules/pricefeed/service"
	sessionsvc "trade_terminal/internal/modules/session/service"
	"trade_terminal/pkg/logger"
)

// Sink — журнал сессии (session_start/session_end и ошибки операторских команд).
type Sink interface {
	Append(ctx context.Context, ev models.SessionEvent)
}

// Coordinator — тонкая обвязка: читает команды оператора из in,
// диспатчит в контроллер, пишет ответы в out. Своего состояния,
// кроме проводки, нет.
type Coordinator struct {
	cfg     *config.Config
	catalog *config.Catalog
	ctrl    *sessionsvc.Controller
	feed    *feedsvc.Feed
	sink    Sink

	in  io.Reader
	out io.Writer
}

func NewCoordinator(
	cfg *config.Config,
	catalog *config.Catalog,
	ctrl *sessionsvc.Controller,
	feed *feedsvc.Feed,
	sink Sink,
	in io.Reader,
	out io.Writer,
) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		catalog: catalog,
		ctrl:    ctrl,
		feed:    feed,
		sink:    sink,
		in:      in,
		out:     out,
	}
}

// Run — цикл команд. Блокируется до quit, EOF или отмены ctx; фид при
// этом живёт своей фоновой задачей и не блокируется вводом.
func (co *Coordinator) Run(ctx context.Context) {
	co.sink.Append(ctx, models.NewEvent(models.EventSessionStart, map[string]any{
		"account": co.ctrl.Params().AccountID,
	}))

	co.printf("trade terminal | команды: account, inst, risk, sl, buy, sell, cancel, adjust, status, quit")

	scanner := bufio.NewScanner(co.in)
	for {
		co.printf("> ")
		if !scanner.Scan() {
			break
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if co.dispatch(ctx, line) {
			return
		}
	}
}

// dispatch возвращает true, когда пора выходить.
func (co *Coordinator) dispatch(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(strings.ToLower(line))
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true

	case "account":
		if len(args) != 1 {
			co.printf("usage: account primary|secondary")
			return false
		}
		co.report(co.ctrl.SelectAccount(args[0]),
			fmt.Sprintf("счёт: %s", args[0]))

	case "inst":
		if len(args) != 1 {
			co.printf("usage: inst <alias> (%s)", strings.Join(co.catalog.Aliases(), ", "))
			return false
		}
		inst, ok := co.catalog.Lookup(args[0])
		if !ok {
			co.printf("неизвестный инструмент %q, доступны: %s", args[0], strings.Join(co.catalog.Aliases(), ", "))
			return false
		}
		if err := co.ctrl.SelectInstrument(inst); err != nil {
			co.report(err, "")
			return false
		}
		// подписка фида переезжает на новый инструмент
		co.feed.Start(ctx, inst.Symbol)
		co.printf("инструмент: %s (pip=%.5f, precision=%d)", inst.Symbol, inst.PipValue, inst.Precision)

	case "risk":
		pct, err := parseFloatArg(args)
		if err != nil {
			co.printf("usage: risk <pct>")
			return false
		}
		co.report(co.ctrl.SetRisk(pct), fmt.Sprintf("риск: %.2f%%", pct))

	case "sl":
		pips, err := parseFloatArg(args)
		if err != nil {
			co.printf("usage: sl <pips>")
			return false
		}
		co.report(co.ctrl.SetStopLossPips(pips), fmt.Sprintf("стоп: %.1f pips", pips))

	case "buy", "sell", "long", "short":
		dir, _ := helper.ParseDirection(cmd)
		typ := models.EntryMarket
		if len(args) > 0 {
			var ok bool
			typ, ok = helper.ParseEntryType(args[0])
			if !ok {
				co.printf("usage: %s [limit|market]", cmd)
				return false
			}
		}
		active, err := co.ctrl.PlaceEntry(ctx, typ, dir)
		if err != nil {
			co.report(err, "")
			return false
		}
		co.printf("ордер %s: %s %s %d @ %.5f SL=%.5f TP=%.5f",
			active.OrderID, active.Type, active.Direction, active.Units,
			active.Entry, active.StopLoss, active.TakeProfit)

	case "cancel":
		co.report(co.ctrl.Cancel(ctx), "отмена отправлена")

	case "adjust":
		pips, err := parseFloatArg(args)
		if err != nil {
			co.printf("usage: adjust <pips>")
			return false
		}
		co.report(co.ctrl.AdjustStopLoss(ctx, pips), "")

	case "status":
		co.printStatus()

	default:
		co.printf("неизвестная команда %q", cmd)
	}

	return false
}

func (co *Coordinator) printStatus() {
	params := co.ctrl.Params()
	co.printf("state=%s account=%s inst=%s risk=%.2f%% sl=%.1f pips",
		co.ctrl.State(), params.AccountID, params.Instrument.Symbol,
		params.RiskPct, params.StopLossPips)

	if tick, ok := co.feed.Last(); ok {
		co.printf("tick: bid=%.5f ask=%.5f spread=%.5f (%s)",
			tick.Bid, tick.Ask, tick.Spread, tick.Time.Format("15:04:05.000"))
	} else {
		co.printf("tick: нет данных (фид не подключен или реконнект)")
	}
	co.printf("ticks cached: %d", len(co.feed.Recent()))

	if active := co.ctrl.Active(); active != nil {
		co.printf("order %s: %s %s %d @ %.5f SL=%.5f filled=%v",
			active.OrderID, active.Type, active.Direction, active.Units,
			active.Entry, active.StopLoss, active.Filled)
	}
}

// report — ошибка оператору и в лог, либо ок-строка.
func (co *Coordinator) report(err error, okMsg string) {
	if err != nil {
		logger.Error("[CONSOLE] %v", err)
		co.printf("ошибка: %v", err)
		return
	}
	if okMsg != "" {
		co.printf("%s", okMsg)
	}
}

func (co *Coordinator) printf(format string, args ...any) {
	fmt.Fprintf(co.out, format+"\n", args...)
}

func parseFloatArg(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one argument")
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}

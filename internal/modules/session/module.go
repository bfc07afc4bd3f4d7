package session

import (
	"context"

	"trade_terminal/internal/journal"
	"trade_terminal/internal/modules/config"
	"trade_terminal/internal/notify"
	"trade_terminal/pkg/db"

	brokersvc "trade_terminal/internal/modules/broker/service"
	feedsvc "trade_terminal/internal/modules/pricefeed/service"
	"trade_terminal/internal/modules/session/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("session",
		fx.Provide(
			notify.New,
			func(txm *db.PgTxManager) *journal.Journal {
				// типизированный nil в интерфейсе не равен nil
				if txm == nil {
					return journal.New(nil)
				}
				return journal.New(txm)
			},
			func(
				ctx context.Context,
				cfg *config.Config,
				gw *brokersvc.Client,
				feed *feedsvc.Feed,
				j *journal.Journal,
				n *notify.Telegram,
			) *service.Controller {
				return service.NewController(ctx, cfg, gw, feed, j, n)
			},
		),
	)
}

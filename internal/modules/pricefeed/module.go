package pricefeed

import (
	"context"

	"trade_terminal/internal/journal"
	brokersvc "trade_terminal/internal/modules/broker/service"
	"trade_terminal/internal/modules/config"
	healthsvc "trade_terminal/internal/modules/health/service"
	"trade_terminal/internal/modules/pricefeed/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("pricefeed",
		fx.Provide(
			func(cfg *config.Config, c *brokersvc.Client, j *journal.Journal, st *healthsvc.State) *service.Feed {
				return service.New(cfg, c, j, st)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, f *service.Feed) {
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					f.Stop()
					return nil
				},
			})
		}),
	)
}

package console

import (
	"context"
	"os"

	"trade_terminal/internal/journal"
	"trade_terminal/internal/modules/config"
	feedsvc "trade_terminal/internal/modules/pricefeed/service"
	sessionsvc "trade_terminal/internal/modules/session/service"
	"trade_terminal/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("console",
		fx.Provide(
			func(
				cfg *config.Config,
				catalog *config.Catalog,
				ctrl *sessionsvc.Controller,
				feed *feedsvc.Feed,
				j *journal.Journal,
			) *Coordinator {
				return NewCoordinator(cfg, catalog, ctrl, feed, j, os.Stdin, os.Stdout)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			sh fx.Shutdowner,
			ctx context.Context,
			co *Coordinator,
			ctrl *sessionsvc.Controller,
			feed *feedsvc.Feed,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					// командный цикл оператора
					go func() {
						co.Run(ctx)
						ctrl.EndSession(ctx, "operator quit")
						_ = sh.Shutdown()
					}()

					// фатальная ошибка фида (AuthError) гасит сессию,
					// журнал при этом успевает дописаться
					go func() {
						select {
						case <-ctx.Done():
						case err := <-feed.Fatal():
							logger.Error("[SESSION] fatal feed error: %v", err)
							ctrl.EndSession(ctx, "feed auth failure")
							_ = sh.Shutdown()
						}
					}()
					return nil
				},
			})
		}),
	)
}

package main

import (
	"context"
	"log"

	"trade_terminal/internal/console"
	"trade_terminal/internal/modules/broker"
	"trade_terminal/internal/modules/config"
	"trade_terminal/internal/modules/health"
	"trade_terminal/internal/modules/postgres"
	"trade_terminal/internal/modules/pricefeed"
	"trade_terminal/internal/modules/session"
	"trade_terminal/pkg/logger"
	"trade_terminal/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	logger.SetServiceName("trade_terminal")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		health.Module(),
		broker.Module(),
		pricefeed.Module(),
		session.Module(),
		console.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			if cfg.Jaeger.Host == "" {
				return nil
			}
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
	)
	app.Run()
}

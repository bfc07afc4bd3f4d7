package config

import "go.uber.org/fx"

// Module регистрируем конфиг и каталог инструментов как fx-провайдеры.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			NewCatalog,
		),
	)
}

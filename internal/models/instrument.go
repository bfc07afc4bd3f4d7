package models

import "time"

// Instrument — торговый инструмент из каталога (configs/instruments.yaml).
// Иммутабельный после загрузки, поиск по короткому алиасу ("EU" -> "EUR_USD").
type Instrument struct {
	Alias     string  `mapstructure:"alias"`
	Symbol    string  `mapstructure:"symbol"`
	PipValue  float64 `mapstructure:"pip_value"`
	Precision int     `mapstructure:"precision"`
	// котировка в JPY — pip_value делится на 100 при сайзинге
	QuoteJPY bool `mapstructure:"quote_jpy"`
}

// PriceTick — снапшот последней цены. История в ядре не хранится,
// каждый новый тик вытесняет предыдущий (last-write-wins).
type PriceTick struct {
	Bid    float64
	Ask    float64
	Spread float64
	Time   time.Time
}

// PriceFor возвращает сторону тика, по которой входим:
// long покупаем по ask, short продаём по bid.
func (t PriceTick) PriceFor(dir Direction) float64 {
	if dir == DirectionShort {
		return t.Bid
	}
	return t.Ask
}

package config

import (
	"fmt"
	"strings"

	"trade_terminal/internal/models"

	"github.com/spf13/viper"
)

// Catalog — каталог инструментов. Читается один раз на старте,
// дальше только lookup по алиасу.
type Catalog struct {
	byAlias map[string]models.Instrument
}

// NewCatalog грузит configs/instruments.yaml:
//
//	instruments:
//	  EU:
//	    symbol: EUR_USD
//	    pip_value: 0.0001
//	    precision: 5
func NewCatalog() (*Catalog, error) {
	v := viper.New()
	v.SetConfigName("instruments")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read instruments config: %w", err)
	}

	var raw map[string]models.Instrument
	if err := v.UnmarshalKey("instruments", &raw); err != nil {
		return nil, fmt.Errorf("unmarshal instruments: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("instruments config is empty")
	}

	byAlias := make(map[string]models.Instrument, len(raw))
	for alias, inst := range raw {
		alias = strings.ToUpper(alias)
		inst.Alias = alias
		if inst.Symbol == "" || inst.PipValue <= 0 || inst.Precision < 0 {
			return nil, fmt.Errorf("instrument %s: bad symbol/pip_value/precision", alias)
		}
		// JPY-котировки определяем по символу, как и везде
		inst.QuoteJPY = strings.HasSuffix(inst.Symbol, "JPY")
		byAlias[alias] = inst
	}

	return &Catalog{byAlias: byAlias}, nil
}

// Lookup — инструмент по алиасу (регистр не важен).
func (c *Catalog) Lookup(alias string) (models.Instrument, bool) {
	inst, ok := c.byAlias[strings.ToUpper(strings.TrimSpace(alias))]
	return inst, ok
}

// Aliases — список алиасов для подсказки оператору.
func (c *Catalog) Aliases() []string {
	out := make([]string, 0, len(c.byAlias))
	for a := range c.byAlias {
		out = append(out, a)
	}
	return out
}

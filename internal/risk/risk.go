package risk

import (
	"errors"
	"fmt"
	"math"

	"trade_terminal/internal/models"
)

// ErrInvalidRiskInput — локальная валидация параметров сайзинга,
// до сети такие ошибки не доходят.
var ErrInvalidRiskInput = errors.New("invalid risk input")

// Limits — границы размера позиции: минимальный торгуемый лот и
// потолок по марже брокера.
type Limits struct {
	MinUnits int
	MaxUnits int
}

// ComputeSize считает размер позиции в юнитах:
//
//	riskAmount = equity * riskPct/100
//	pipRisk    = slPips * pipValue
//	units      = round(riskAmount / pipRisk), клампы по Limits
//
// Детерминированная чистая функция, без сайд-эффектов.
func ComputeSize(equity, riskPct, slPips float64, inst models.Instrument, lim Limits) (int, error) {
	if equity <= 0 {
		return 0, fmt.Errorf("%w: equity <= 0 (%.2f)", ErrInvalidRiskInput, equity)
	}
	if riskPct <= 0 {
		return 0, fmt.Errorf("%w: riskPct <= 0 (%.4f)", ErrInvalidRiskInput, riskPct)
	}
	if slPips <= 0 {
		return 0, fmt.Errorf("%w: slPips <= 0 (%.2f)", ErrInvalidRiskInput, slPips)
	}

	pipValue := inst.PipValue
	// для JPY-котировок пип — вторая цифра после запятой
	if inst.QuoteJPY {
		pipValue /= 100
	}
	if pipValue <= 0 {
		return 0, fmt.Errorf("%w: pipValue <= 0", ErrInvalidRiskInput)
	}

	riskAmount := equity * (riskPct / 100.0)
	pipRisk := slPips * pipValue

	raw := riskAmount / pipRisk
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: raw units invalid", ErrInvalidRiskInput)
	}

	units := int(math.Round(raw))

	minUnits := lim.MinUnits
	if minUnits <= 0 {
		minUnits = 1
	}
	if units < minUnits {
		units = minUnits
	}
	if lim.MaxUnits > 0 && units > lim.MaxUnits {
		units = lim.MaxUnits
	}

	return units, nil
}

// StopPrice — цена стопа от цены входа: long -> entry - slPips*pipValue,
// short — зеркально. Округление к precision, half away from zero.
// Дистанция считается в ценовом пространстве, JPY-поправка тут не нужна —
// она только про денежный риск в ComputeSize.
func StopPrice(dir models.Direction, entry, slPips float64, inst models.Instrument) float64 {
	dist := slPips * inst.PipValue
	var px float64
	if dir == models.DirectionShort {
		px = entry + dist
	} else {
		px = entry - dist
	}
	return RoundToPrecision(px, inst.Precision)
}

// TakeProfitPrice — тейк на rr*дистанция стопа от входа (rr=1 — "один к одному").
func TakeProfitPrice(dir models.Direction, entry, slPips, rr float64, inst models.Instrument) float64 {
	if rr <= 0 {
		rr = 1
	}
	dist := slPips * inst.PipValue * rr
	var px float64
	if dir == models.DirectionShort {
		px = entry - dist
	} else {
		px = entry + dist
	}
	return RoundToPrecision(px, inst.Precision)
}

// RoundToPrecision — округление до precision знаков, half away from zero
// (math.Round так и работает; отдельная обёртка ради масштабирования).
func RoundToPrecision(px float64, precision int) float64 {
	if precision < 0 {
		return px
	}
	scale := math.Pow10(precision)
	return math.Round(px*scale) / scale
}

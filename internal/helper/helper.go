package helper

import (
	"strconv"
	"strings"

	"trade_terminal/internal/models"
)

// FormatPrice — цена строкой с точностью инструмента (брокер принимает строки).
func FormatPrice(px float64, precision int) string {
	if precision < 0 {
		precision = 5
	}
	return strconv.FormatFloat(px, 'f', precision, 64)
}

// FormatUnits — юниты строкой со знаком: short уходит брокеру отрицательным.
func FormatUnits(units int, dir models.Direction) string {
	if dir == models.DirectionShort {
		units = -units
	}
	return strconv.Itoa(units)
}

// ParseDirection — "l"/"long"/"buy" -> long, "s"/"short"/"sell" -> short.
func ParseDirection(raw string) (models.Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "l", "long", "buy", "b":
		return models.DirectionLong, true
	case "s", "short", "sell":
		return models.DirectionShort, true
	default:
		return "", false
	}
}

// ParseEntryType — "limit"/"lmt" или "market"/"mkt".
func ParseEntryType(raw string) (models.EntryType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "limit", "lmt", "l":
		return models.EntryLimit, true
	case "market", "mkt", "m":
		return models.EntryMarket, true
	default:
		return "", false
	}
}

package helper

import (
	"testing"

	"trade_terminal/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1.10000", FormatPrice(1.1, 5))
	assert.Equal(t, "151.085", FormatPrice(151.085, 3))
	assert.Equal(t, "2345.60", FormatPrice(2345.6, 2))
	// отрицательная точность — дефолт 5 знаков
	assert.Equal(t, "1.23450", FormatPrice(1.2345, -1))
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "50000", FormatUnits(50000, models.DirectionLong))
	assert.Equal(t, "-50000", FormatUnits(50000, models.DirectionShort))
}

func TestParseDirection(t *testing.T) {
	for _, raw := range []string{"l", "long", "buy", "B", " LONG "} {
		dir, ok := ParseDirection(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, models.DirectionLong, dir, raw)
	}
	for _, raw := range []string{"s", "short", "SELL"} {
		dir, ok := ParseDirection(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, models.DirectionShort, dir, raw)
	}
	_, ok := ParseDirection("hold")
	assert.False(t, ok)
}

func TestParseEntryType(t *testing.T) {
	typ, ok := ParseEntryType("limit")
	assert.True(t, ok)
	assert.Equal(t, models.EntryLimit, typ)

	typ, ok = ParseEntryType("MKT")
	assert.True(t, ok)
	assert.Equal(t, models.EntryMarket, typ)

	_, ok = ParseEntryType("stop")
	assert.False(t, ok)
}

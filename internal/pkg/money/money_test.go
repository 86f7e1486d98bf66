package money

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEqualWithinTolerance(t *testing.T) {
	assert.True(t, Equal(decimal.NewFromFloat(100), decimal.NewFromFloat(100)))
	assert.True(t, Equal(decimal.NewFromFloat(100.001), decimal.NewFromFloat(100)))
	assert.True(t, Equal(decimal.NewFromFloat(99.996), decimal.NewFromFloat(100)))
	assert.False(t, Equal(decimal.NewFromFloat(100.01), decimal.NewFromFloat(100)))
	assert.False(t, Equal(decimal.NewFromFloat(100), decimal.NewFromFloat(120)))
}

func TestPercentChange(t *testing.T) {
	assert.True(t, PercentChange(decimal.NewFromInt(100), decimal.NewFromInt(120)).Equal(decimal.NewFromInt(20)))
	assert.True(t, PercentChange(decimal.NewFromInt(120), decimal.NewFromInt(100)).Equal(decimal.RequireFromString("16.7")))
	assert.True(t, PercentChange(decimal.Zero, decimal.NewFromInt(50)).IsZero(), "zero base yields zero, not a division error")
}

func TestFormatRUB(t *testing.T) {
	assert.Equal(t, "500 ₽", FormatRUB(decimal.NewFromInt(500)))

	// Kopecks appear only for fractional prices; the Russian locale uses a
	// decimal comma.
	withKopecks := FormatRUB(decimal.NewFromFloat(10.5))
	assert.True(t, strings.HasSuffix(withKopecks, " ₽"))
	assert.Contains(t, withKopecks, "10,50")

	// Thousands are grouped in the Russian locale.
	grouped := FormatRUB(decimal.NewFromInt(4500))
	assert.Contains(t, grouped, "4")
	assert.Contains(t, grouped, "500")
	assert.NotContains(t, grouped, ",")
}

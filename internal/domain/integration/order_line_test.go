package integration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderLine_ComputeDerived(t *testing.T) {
	tests := []struct {
		name      string
		unitPrice string
		quantity  int64
		discount  string
		expected  string
	}{
		{"no discount", "1000", 2, "0", "2000"},
		{"partial coupon", "1000", 2, "500", "1500"},
		{"coupon exceeds line", "1000", 2, "2500", "-500"},
		{"fractional price", "99.5", 3, "0.5", "298"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := OrderLine{
				ItemID:    "item",
				SubCode:   "-red",
				Quantity:  tt.quantity,
				UnitPrice: decimal.RequireFromString(tt.unitPrice),
				Discount:  decimal.RequireFromString(tt.discount),
			}
			l.ComputeDerived()
			assert.True(t, decimal.RequireFromString(tt.expected).Equal(l.LineTotal), "got %s", l.LineTotal)
			assert.Equal(t, "item-red", l.SKU)
		})
	}
}

func TestOrderLine_SetField(t *testing.T) {
	var l OrderLine
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, l.SetField(CanonicalOrderID, "o-1"))
	require.NoError(t, l.SetField(CanonicalLineID, int64(7)))
	require.NoError(t, l.SetField(CanonicalQuantity, int64(3)))
	require.NoError(t, l.SetField(CanonicalUnitPrice, int64(1200)))
	require.NoError(t, l.SetField(CanonicalTaxRate, decimal.RequireFromString("0.1")))
	require.NoError(t, l.SetField(CanonicalOrderTime, ts))

	assert.Equal(t, "o-1", l.OrderID)
	assert.Equal(t, "7", l.LineID)
	assert.Equal(t, int64(3), l.Quantity)
	assert.True(t, decimal.NewFromInt(1200).Equal(l.UnitPrice))
	assert.Equal(t, ts, l.OrderTime)
}

func TestOrderLine_SetField_Errors(t *testing.T) {
	var l OrderLine
	assert.Error(t, l.SetField(CanonicalField("nope"), "x"))
	assert.Error(t, l.SetField(CanonicalOrderTime, "2026-01-01"))
	assert.Error(t, l.SetField(CanonicalQuantity, decimal.RequireFromString("1.5")))
	assert.Error(t, l.SetField(CanonicalUnitPrice, true))
}

func TestIsCanonicalField(t *testing.T) {
	assert.True(t, IsCanonicalField(CanonicalShipName))
	assert.False(t, IsCanonicalField(CanonicalField("sku")))
}

func TestFieldMap_Accessors(t *testing.T) {
	m := FieldMap{
		"s": "x",
		"i": int64(4),
		"d": decimal.NewFromInt(2),
		"b": true,
		"t": time.Unix(0, 0),
	}
	s, ok := m.String("s")
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	_, ok = m.String("i")
	assert.False(t, ok)
	i, _ := m.Int("i")
	assert.Equal(t, int64(4), i)
	b, _ := m.Bool("b")
	assert.True(t, b)
	assert.Equal(t, []string{"b", "d", "i", "s", "t"}, m.Keys())
	assert.False(t, m.Has("missing"))
}

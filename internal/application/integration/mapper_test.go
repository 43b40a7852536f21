package integration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
)

var jst = time.FixedZone("JST", 9*60*60)

type shipTo struct {
	zip, prefecture, city, address1, last, first string
}

var tokyoHome = shipTo{zip: "100-0001", prefecture: "東京都", city: "千代田区", address1: "千代田1-1", last: "佐藤", first: "花子"}

func yahooOrder(orderID string, orderTime time.Time, ship shipTo, items ...integration.FieldMap) *integration.OrderEnvelope {
	env := &integration.OrderEnvelope{
		Marketplace: integration.MarketplaceYahoo,
		Level:       integration.EnvelopeLevelDetail,
		OrderID:     orderID,
		Groups: map[string]integration.FieldMap{
			schema.YahooGroupOrder:  {"OrderId": orderID, "OrderTime": orderTime},
			schema.YahooGroupSeller: {"SellerId": "store"},
			schema.YahooGroupShip: {
				"ShipZipCode":    ship.zip,
				"ShipPrefecture": ship.prefecture,
				"ShipCity":       ship.city,
				"ShipAddress1":   ship.address1,
				"ShipLastName":   ship.last,
				"ShipFirstName":  ship.first,
			},
		},
	}
	for _, fields := range items {
		env.Items = append(env.Items, integration.ItemRecord{Fields: fields})
	}
	return env
}

func yahooItem(lineID int64, itemID string, qty int64, price int64) integration.FieldMap {
	return integration.FieldMap{
		"LineId":    lineID,
		"ItemId":    itemID,
		"Quantity":  qty,
		"UnitPrice": decimal.NewFromInt(price),
	}
}

func storeSellers() integration.SellerLookup {
	return integration.SellerLookupFunc(func(sellerID string) (string, bool) {
		if sellerID == "store" {
			return "shop-1", true
		}
		return "", false
	})
}

func newTestMapper(t *testing.T) *Mapper {
	t.Helper()
	m, err := NewMapper(schema.Default())
	require.NoError(t, err)
	return m
}

func TestMapper_Map_LineFields(t *testing.T) {
	item := yahooItem(1, "tea", 2, 1200)
	item["SubCode"] = "-red"
	item["Title"] = "Green tea"
	item["ItemTaxRatio"] = int64(8)
	item["CouponDiscount"] = decimal.NewFromInt(100)

	orderTime := time.Date(2026, 3, 1, 10, 0, 0, 0, jst)
	lines, rowErrors := newTestMapper(t).Map([]*integration.OrderEnvelope{yahooOrder("store-1", orderTime, tokyoHome, item)}, storeSellers())
	require.Empty(t, rowErrors)
	require.Len(t, lines, 1)

	l := lines[0]
	assert.NotEqual(t, "", l.ID.String())
	assert.Equal(t, "shop-1", l.ShopCode)
	assert.Equal(t, "store", l.SellerID)
	assert.Equal(t, "store-1", l.OrderID)
	assert.Equal(t, "1", l.LineID)
	assert.Equal(t, "tea-red", l.SKU)
	assert.Equal(t, "Green tea", l.Title)
	assert.Equal(t, int64(2), l.Quantity)
	assert.True(t, decimal.RequireFromString("0.08").Equal(l.TaxRate), l.TaxRate.String())
	assert.True(t, decimal.NewFromInt(2300).Equal(l.LineTotal), l.LineTotal.String())
	assert.Equal(t, "1000001", l.ShipZip)
	assert.Equal(t, "佐藤 花子", l.ShipName)
	assert.True(t, orderTime.Equal(l.OrderTime))
	assert.True(t, orderTime.Equal(l.LastOrderDate))
}

func TestMapper_Map_NegativeLineTotal(t *testing.T) {
	item := yahooItem(1, "cup", 1, 1000)
	item["CouponDiscount"] = decimal.NewFromInt(1500)

	lines, rowErrors := newTestMapper(t).Map([]*integration.OrderEnvelope{
		yahooOrder("store-1", time.Now(), tokyoHome, item),
	}, storeSellers())
	require.Empty(t, rowErrors)
	require.Len(t, lines, 1)
	assert.True(t, decimal.NewFromInt(-500).Equal(lines[0].LineTotal), lines[0].LineTotal.String())
}

func TestMapper_Map_LastOrderDatePerShippingIdentity(t *testing.T) {
	early := time.Date(2026, 2, 1, 9, 0, 0, 0, jst)
	late := time.Date(2026, 2, 20, 18, 30, 0, 0, jst)
	other := time.Date(2026, 2, 10, 12, 0, 0, 0, jst)

	// same person spelled with full-width digits and a doubled space
	fullWidth := tokyoHome
	fullWidth.zip = "１００－０００１"
	fullWidth.address1 = "千代田１-１"
	fullWidth.first = "花子 "

	elsewhere := tokyoHome
	elsewhere.city = "港区"

	records := []*integration.OrderEnvelope{
		yahooOrder("store-1", early, tokyoHome, yahooItem(1, "tea", 1, 500), yahooItem(2, "cup", 1, 800)),
		yahooOrder("store-2", other, elsewhere, yahooItem(1, "tea", 1, 500)),
		yahooOrder("store-3", late, fullWidth, yahooItem(1, "pot", 1, 3000)),
	}

	lines, rowErrors := newTestMapper(t).Map(records, storeSellers())
	require.Empty(t, rowErrors)
	require.Len(t, lines, 4)

	assert.Equal(t, []string{"store-1", "store-1", "store-2", "store-3"},
		[]string{lines[0].OrderID, lines[1].OrderID, lines[2].OrderID, lines[3].OrderID})
	assert.True(t, late.Equal(lines[0].LastOrderDate))
	assert.True(t, late.Equal(lines[1].LastOrderDate))
	assert.True(t, other.Equal(lines[2].LastOrderDate))
	assert.True(t, late.Equal(lines[3].LastOrderDate))
	assert.Equal(t, lines[0].ShippingIdentity(), lines[3].ShippingIdentity())
}

func TestMapper_Map_RowErrors(t *testing.T) {
	noQuantity := yahooItem(2, "cup", 0, 800)
	delete(noQuantity, "Quantity")

	badSeller := yahooOrder("store-9", time.Now(), tokyoHome, yahooItem(1, "tea", 1, 500))
	badSeller.Groups[schema.YahooGroupSeller] = integration.FieldMap{"SellerId": "stranger"}

	records := []*integration.OrderEnvelope{
		yahooOrder("store-1", time.Now(), tokyoHome, yahooItem(1, "tea", 1, 500), noQuantity, yahooItem(3, "pot", 1, 3000)),
	}

	t.Run("missing required field skips only that row", func(t *testing.T) {
		lines, rowErrors := newTestMapper(t).Map(records, storeSellers())
		require.Len(t, rowErrors, 1)
		assert.Equal(t, "store-1", rowErrors[0].OrderID)
		assert.Equal(t, "2", rowErrors[0].LineID)
		assert.Equal(t, integration.CanonicalQuantity, rowErrors[0].Field)
		assert.ErrorIs(t, rowErrors[0], integration.ErrRowMapping)

		require.Len(t, lines, 2)
		assert.Equal(t, "1", lines[0].LineID)
		assert.Equal(t, "3", lines[1].LineID)
	})

	t.Run("unknown seller", func(t *testing.T) {
		lines, rowErrors := newTestMapper(t).Map([]*integration.OrderEnvelope{badSeller}, storeSellers())
		assert.Empty(t, lines)
		require.Len(t, rowErrors, 1)
		assert.Equal(t, integration.CanonicalSellerID, rowErrors[0].Field)
	})

	t.Run("wrong value type", func(t *testing.T) {
		item := yahooItem(1, "tea", 1, 500)
		item["UnitPrice"] = true
		_, rowErrors := newTestMapper(t).Map([]*integration.OrderEnvelope{
			yahooOrder("store-1", time.Now(), tokyoHome, item),
		}, storeSellers())
		require.Len(t, rowErrors, 1)
		assert.Equal(t, integration.CanonicalUnitPrice, rowErrors[0].Field)
	})
}

func TestMapper_Map_OptionsAndInscriptions(t *testing.T) {
	env := yahooOrder("store-1", time.Now(), tokyoHome, yahooItem(1, "tea", 1, 500))
	env.Items[0].Options = []integration.FieldMap{
		{"Index": int64(1), "Name": "Size", "Value": "L", "Price": decimal.NewFromInt(200)},
		{"Index": int64(0), "Name": "Wrap", "Value": "Yes"},
	}
	env.Items[0].Inscriptions = []integration.FieldMap{
		{"Index": int64(1), "Name": "Name", "Value": "Sato"},
	}

	lines, rowErrors := newTestMapper(t).Map([]*integration.OrderEnvelope{env}, storeSellers())
	require.Empty(t, rowErrors)
	require.Len(t, lines, 1)

	require.Len(t, lines[0].Options, 2)
	assert.Equal(t, int64(1), lines[0].Options[0].Index)
	assert.Equal(t, "Size", lines[0].Options[0].Name)
	assert.True(t, decimal.NewFromInt(200).Equal(lines[0].Options[0].Price))
	assert.Equal(t, int64(0), lines[0].Options[1].Index)
	assert.Equal(t, "Wrap", lines[0].Options[1].Name)

	require.Len(t, lines[0].Inscriptions, 1)
	assert.Equal(t, "Sato", lines[0].Inscriptions[0].Value)
}

func TestMapper_Map_UnmappedMarketplace(t *testing.T) {
	m := &Mapper{mappings: map[integration.Marketplace]*resolvedMapping{}}
	lines, rowErrors := m.Map([]*integration.OrderEnvelope{{Marketplace: integration.MarketplaceYahoo, OrderID: "x"}}, storeSellers())
	assert.Empty(t, lines)
	require.Len(t, rowErrors, 1)
	assert.Equal(t, "x", rowErrors[0].OrderID)
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"東京都", "東京都"},
		{"  千代田１-１  ", "千代田1-1"},
		{"佐藤　花子", "佐藤 花子"},
		{"ＡＢＣ", "ABC"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeText(tt.in))
		})
	}
}

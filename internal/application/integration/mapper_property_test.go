package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
)

var propertyAddresses = []shipTo{
	tokyoHome,
	{zip: "530-0001", prefecture: "大阪府", city: "大阪市北区", address1: "梅田1-1", last: "田中", first: "一郎"},
	{zip: "460-0002", prefecture: "愛知県", city: "名古屋市中区", address1: "丸の内2-2", last: "鈴木", first: "次郎"},
}

func TestMapperProperties(t *testing.T) {
	mapper, err := NewMapper(schema.Default())
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, jst)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("lastOrderDate is the latest order time of the shipping identity", prop.ForAll(
		func(addresses, hours []int) bool {
			n := min(len(addresses), len(hours))
			records := make([]*integration.OrderEnvelope, n)
			latest := make(map[int]time.Time)
			for i := 0; i < n; i++ {
				at := base.Add(time.Duration(hours[i]) * time.Hour)
				records[i] = yahooOrder(fmt.Sprintf("store-%d", i), at, propertyAddresses[addresses[i]], yahooItem(1, "tea", 1, 500))
				if at.After(latest[addresses[i]]) {
					latest[addresses[i]] = at
				}
			}

			lines, rowErrors := mapper.Map(records, storeSellers())
			if len(rowErrors) != 0 || len(lines) != n {
				return false
			}
			for i, l := range lines {
				if !l.LastOrderDate.Equal(latest[addresses[i]]) || l.LastOrderDate.Before(l.OrderTime) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(propertyAddresses)-1)),
		gen.SliceOf(gen.IntRange(0, 24*60)),
	))

	properties.Property("line total is price times quantity minus discount, unclamped", prop.ForAll(
		func(qty, price, coupon int64) bool {
			item := yahooItem(1, "tea", qty, price)
			item["CouponDiscount"] = decimal.NewFromInt(coupon)

			lines, rowErrors := mapper.Map([]*integration.OrderEnvelope{yahooOrder("store-1", base, tokyoHome, item)}, storeSellers())
			if len(rowErrors) != 0 || len(lines) != 1 {
				return false
			}
			return lines[0].LineTotal.Equal(decimal.NewFromInt(qty*price - coupon))
		},
		gen.Int64Range(1, 99),
		gen.Int64Range(0, 100000),
		gen.Int64Range(0, 200000),
	))

	properties.TestingRun(t)
}

package integration

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Canonical fields
// ---------------------------------------------------------------------------

// CanonicalField names a settable field of OrderLine
type CanonicalField string

const (
	CanonicalSellerID       CanonicalField = "seller_id"
	CanonicalOrderID        CanonicalField = "order_id"
	CanonicalOrderTime      CanonicalField = "order_time"
	CanonicalShipZip        CanonicalField = "ship_zip"
	CanonicalShipPrefecture CanonicalField = "ship_prefecture"
	CanonicalShipCity       CanonicalField = "ship_city"
	CanonicalShipAddress1   CanonicalField = "ship_address1"
	CanonicalShipAddress2   CanonicalField = "ship_address2"
	CanonicalShipName       CanonicalField = "ship_name"
	CanonicalLineID         CanonicalField = "line_id"
	CanonicalItemID         CanonicalField = "item_id"
	CanonicalSubCode        CanonicalField = "sub_code"
	CanonicalTitle          CanonicalField = "title"
	CanonicalQuantity       CanonicalField = "quantity"
	CanonicalTaxRate        CanonicalField = "tax_rate"
	CanonicalUnitPrice      CanonicalField = "unit_price"
	CanonicalDiscount       CanonicalField = "discount"
)

type lineSetter func(l *OrderLine, v any) error

// lineSetters is the only write path from decoded values into an OrderLine
var lineSetters = map[CanonicalField]lineSetter{
	CanonicalSellerID:       stringSetter(func(l *OrderLine) *string { return &l.SellerID }),
	CanonicalOrderID:        stringSetter(func(l *OrderLine) *string { return &l.OrderID }),
	CanonicalShipZip:        stringSetter(func(l *OrderLine) *string { return &l.ShipZip }),
	CanonicalShipPrefecture: stringSetter(func(l *OrderLine) *string { return &l.ShipPrefecture }),
	CanonicalShipCity:       stringSetter(func(l *OrderLine) *string { return &l.ShipCity }),
	CanonicalShipAddress1:   stringSetter(func(l *OrderLine) *string { return &l.ShipAddress1 }),
	CanonicalShipAddress2:   stringSetter(func(l *OrderLine) *string { return &l.ShipAddress2 }),
	CanonicalShipName:       stringSetter(func(l *OrderLine) *string { return &l.ShipName }),
	CanonicalLineID:         stringSetter(func(l *OrderLine) *string { return &l.LineID }),
	CanonicalItemID:         stringSetter(func(l *OrderLine) *string { return &l.ItemID }),
	CanonicalSubCode:        stringSetter(func(l *OrderLine) *string { return &l.SubCode }),
	CanonicalTitle:          stringSetter(func(l *OrderLine) *string { return &l.Title }),
	CanonicalTaxRate:        decimalSetter(func(l *OrderLine) *decimal.Decimal { return &l.TaxRate }),
	CanonicalUnitPrice:      decimalSetter(func(l *OrderLine) *decimal.Decimal { return &l.UnitPrice }),
	CanonicalDiscount:       decimalSetter(func(l *OrderLine) *decimal.Decimal { return &l.Discount }),
	CanonicalQuantity: func(l *OrderLine, v any) error {
		n, err := asInt(v)
		if err != nil {
			return err
		}
		l.Quantity = n
		return nil
	},
	CanonicalOrderTime: func(l *OrderLine, v any) error {
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected datetime, got %T", v)
		}
		l.OrderTime = t
		return nil
	},
}

// IsCanonicalField reports whether f has a registered setter
func IsCanonicalField(f CanonicalField) bool {
	_, ok := lineSetters[f]
	return ok
}

// SetField assigns a decoded value to the canonical field f
func (l *OrderLine) SetField(f CanonicalField, v any) error {
	set, ok := lineSetters[f]
	if !ok {
		return fmt.Errorf("unknown canonical field %q", f)
	}
	return set(l, v)
}

// ---------------------------------------------------------------------------
// OrderLine
// ---------------------------------------------------------------------------

// OptionValue is one option or inscription attached to a line
type OptionValue struct {
	Index int64           `json:"index"`
	Name  string          `json:"name"`
	Value string          `json:"value"`
	Price decimal.Decimal `json:"price"`
}

// OrderLine is the canonical, append-only order line
type OrderLine struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	ShopCode    string
	Marketplace Marketplace
	SellerID    string

	ShipZip        string
	ShipPrefecture string
	ShipCity       string
	ShipAddress1   string
	ShipAddress2   string
	ShipName       string

	OrderID   string
	LineID    string
	SKU       string
	ItemID    string
	SubCode   string
	Title     string
	Quantity  int64
	TaxRate   decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	LineTotal decimal.Decimal

	OrderTime     time.Time
	LastOrderDate time.Time

	Options      []OptionValue
	Inscriptions []OptionValue
	IngestedAt   time.Time
}

// ComputeDerived sets SKU and LineTotal.
// The line total is not clamped: a coupon larger than the line yields a negative total.
func (l *OrderLine) ComputeDerived() {
	l.SKU = l.ItemID + l.SubCode
	l.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)).Sub(l.Discount)
}

// ShippingIdentity is the grouping key for last-order-date derivation
type ShippingIdentity struct {
	ShopCode   string
	Zip        string
	Prefecture string
	City       string
	Address1   string
	Address2   string
	Name       string
}

// ShippingIdentity returns the grouping key of the line as stored
func (l *OrderLine) ShippingIdentity() ShippingIdentity {
	return ShippingIdentity{
		ShopCode:   l.ShopCode,
		Zip:        l.ShipZip,
		Prefecture: l.ShipPrefecture,
		City:       l.ShipCity,
		Address1:   l.ShipAddress1,
		Address2:   l.ShipAddress2,
		Name:       l.ShipName,
	}
}

// ---------------------------------------------------------------------------
// value coercion
// ---------------------------------------------------------------------------

func stringSetter(field func(*OrderLine) *string) lineSetter {
	return func(l *OrderLine, v any) error {
		s, err := AsString(v)
		if err != nil {
			return err
		}
		*field(l) = s
		return nil
	}
}

func decimalSetter(field func(*OrderLine) *decimal.Decimal) lineSetter {
	return func(l *OrderLine, v any) error {
		d, err := AsDecimal(v)
		if err != nil {
			return err
		}
		*field(l) = d
		return nil
	}
}

// AsString renders a decoded scalar as a string
func AsString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case decimal.Decimal:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

// AsDecimal converts a decoded numeric value to decimal
func AsDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case int64:
		return decimal.NewFromInt(x), nil
	case string:
		return decimal.NewFromString(x)
	default:
		return decimal.Zero, fmt.Errorf("expected decimal, got %T", v)
	}
}

func asInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case decimal.Decimal:
		if !x.Equal(x.Truncate(0)) {
			return 0, fmt.Errorf("expected integer, got %s", x)
		}
		return x.IntPart(), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("expected int, got %T", v)
	}
}

package schema

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

func TestDefault_BuildsBuiltInTables(t *testing.T) {
	r := Default()
	assert.Equal(t, []integration.Marketplace{integration.MarketplaceRakuten, integration.MarketplaceYahoo}, r.Marketplaces())
	assert.Same(t, r, Default())
}

func TestRegistry_Validate(t *testing.T) {
	r := Default()

	tests := []struct {
		name        string
		marketplace integration.Marketplace
		fields      []string
		unknown     []string
	}{
		{"yahoo declared", integration.MarketplaceYahoo, []string{"OrderId", "ShipZipCode", "LineId", "Index"}, nil},
		{"yahoo unknown", integration.MarketplaceYahoo, []string{"OrderId", "Bogus", "Alpha", "Bogus"}, []string{"Alpha", "Bogus"}},
		{"rakuten case sensitive", integration.MarketplaceRakuten, []string{"orderNumber", "OrderNumber"}, []string{"OrderNumber"}},
		{"empty request", integration.MarketplaceRakuten, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.marketplace, tt.fields)
			if tt.unknown == nil {
				assert.NoError(t, err)
				return
			}
			var ufe *integration.UnknownFieldError
			require.True(t, errors.As(err, &ufe))
			assert.Equal(t, tt.unknown, ufe.Fields)
			assert.Equal(t, tt.marketplace, ufe.Marketplace)
		})
	}
}

func TestRegistry_Validate_UnknownMarketplace(t *testing.T) {
	err := Default().Validate("amazon", []string{"x"})
	assert.ErrorIs(t, err, integration.ErrUnknownMarketplace)
}

func TestRegistry_GroupOf_FirstDeclaringGroupWins(t *testing.T) {
	r := Default()

	g, ok := r.GroupOf(integration.MarketplaceYahoo, "OrderId")
	require.True(t, ok)
	assert.Equal(t, YahooGroupOrder, g)

	g, ok = r.GroupOf(integration.MarketplaceYahoo, "Index")
	require.True(t, ok)
	assert.Equal(t, YahooGroupItemOption, g)

	g, ok = r.GroupOf(integration.MarketplaceRakuten, "zipCode1")
	require.True(t, ok)
	assert.Equal(t, RakutenGroupSender, g)

	_, ok = r.GroupOf(integration.MarketplaceYahoo, "Nope")
	assert.False(t, ok)
}

func TestRegistry_AllFields_ReturnsCopy(t *testing.T) {
	r := Default()
	all := r.AllFields(integration.MarketplaceYahoo)
	assert.Equal(t, integration.FieldTypeDateTime, all["OrderTime"])
	assert.Equal(t, integration.FieldTypeInt, all["TotalCount"])

	all["OrderTime"] = integration.FieldTypeBool
	assert.Equal(t, integration.FieldTypeDateTime, r.AllFields(integration.MarketplaceYahoo)["OrderTime"])
	assert.Nil(t, r.AllFields("unknown"))
}

func TestRegistry_SourceGroup(t *testing.T) {
	r := Default()

	g, field, err := r.SourceGroup(integration.MarketplaceRakuten, "Sender.city")
	require.NoError(t, err)
	assert.Equal(t, RakutenGroupSender, g.Name)
	assert.Equal(t, "city", field)

	_, _, err = r.SourceGroup(integration.MarketplaceRakuten, "city")
	assert.ErrorContains(t, err, "ambiguous")

	g, _, err = r.SourceGroup(integration.MarketplaceYahoo, "LineId")
	require.NoError(t, err)
	assert.Equal(t, integration.GroupScopeItem, g.Scope)
}

func TestRegistry_GroupDefaults(t *testing.T) {
	g, ok := Default().Group(integration.MarketplaceYahoo, YahooGroupItemOption)
	require.True(t, ok)
	assert.Equal(t, int64(0), g.Defaults["Index"])
}

func TestNew_RejectsInconsistentTables(t *testing.T) {
	str := integration.FieldTypeString
	tests := []struct {
		name string
		def  Definition
		msg  string
	}{
		{
			name: "type conflict",
			def: Definition{Marketplace: integration.MarketplaceYahoo, Groups: []*integration.FieldGroup{
				integration.NewFieldGroup("A", integration.GroupScopeHeader, defs(str, "X"), nil),
				integration.NewFieldGroup("B", integration.GroupScopeItem, defs(integration.FieldTypeInt, "X"), nil),
			}},
			msg: "declared as",
		},
		{
			name: "duplicate group",
			def: Definition{Marketplace: integration.MarketplaceYahoo, Groups: []*integration.FieldGroup{
				integration.NewFieldGroup("A", integration.GroupScopeHeader, defs(str, "X"), nil),
				integration.NewFieldGroup("A", integration.GroupScopeHeader, defs(str, "Y"), nil),
			}},
			msg: "duplicate group",
		},
		{
			name: "default for undeclared field",
			def: Definition{Marketplace: integration.MarketplaceYahoo, Groups: []*integration.FieldGroup{
				integration.NewFieldGroup("A", integration.GroupScopeItemChild, defs(str, "X"), integration.FieldMap{"Index": int64(0)}),
			}},
			msg: "undeclared field",
		},
		{
			name: "ambiguous binding",
			def: Definition{
				Marketplace: integration.MarketplaceYahoo,
				Groups: []*integration.FieldGroup{
					integration.NewFieldGroup("A", integration.GroupScopeHeader, defs(str, "X"), nil),
					integration.NewFieldGroup("B", integration.GroupScopeHeader, defs(str, "X"), nil),
				},
				Mapping: &integration.MappingSpec{Bindings: []integration.CanonicalBinding{
					{Field: integration.CanonicalOrderID, Sources: []string{"X"}},
				}},
			},
			msg: "ambiguous",
		},
		{
			name: "unknown canonical field",
			def: Definition{
				Marketplace: integration.MarketplaceYahoo,
				Groups:      []*integration.FieldGroup{integration.NewFieldGroup("A", integration.GroupScopeHeader, defs(str, "X"), nil)},
				Mapping: &integration.MappingSpec{Bindings: []integration.CanonicalBinding{
					{Field: "colour", Sources: []string{"X"}},
				}},
			},
			msg: "unknown canonical field",
		},
		{
			name: "binding to search group",
			def: Definition{
				Marketplace: integration.MarketplaceYahoo,
				Groups:      []*integration.FieldGroup{integration.NewFieldGroup("S", integration.GroupScopeSearch, defs(str, "X"), nil)},
				Mapping: &integration.MappingSpec{Bindings: []integration.CanonicalBinding{
					{Field: integration.CanonicalOrderID, Sources: []string{"S.X"}},
				}},
			},
			msg: "search group",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.def)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestPercentToRate(t *testing.T) {
	v, err := percentToRate(int64(8))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.08").Equal(v.(decimal.Decimal)))

	_, err = percentToRate("8")
	assert.Error(t, err)
}

func TestRakutenShopID(t *testing.T) {
	v, err := rakutenShopID("338459-20260301-0000000123")
	require.NoError(t, err)
	assert.Equal(t, "338459", v)

	_, err = rakutenShopID("nodash")
	assert.Error(t, err)
}

func TestFieldsOfScope(t *testing.T) {
	fields := Default().FieldsOfScope(integration.MarketplaceYahoo, integration.GroupScopeItemChild)
	assert.Equal(t, []string{"Index", "Name", "Value", "Price"}, fields)
}

package decoder

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
)

func testGroup() *integration.FieldGroup {
	return integration.NewFieldGroup("Item", integration.GroupScopeItem, []integration.FieldDef{
		{Name: "LineId", Type: integration.FieldTypeInt},
		{Name: "Title", Type: integration.FieldTypeString},
		{Name: "UnitPrice", Type: integration.FieldTypeDecimal},
		{Name: "IsUsed", Type: integration.FieldTypeBool},
		{Name: "ReleaseDate", Type: integration.FieldTypeDateTime},
	}, nil)
}

// ---------------------------------------------------------------------------
// Decode
// ---------------------------------------------------------------------------

func TestDecode_XML_DeclaredAndPresentOnly(t *testing.T) {
	node, err := ParseXML([]byte(`<Item>
		<LineId>3</LineId>
		<Title> Green tea </Title>
		<UnitPrice>1080.50</UnitPrice>
		<NewField>ignored</NewField>
	</Item>`))
	require.NoError(t, err)

	fm, err := Decode(node, testGroup())
	require.NoError(t, err)

	assert.Equal(t, []string{"LineId", "Title", "UnitPrice"}, fm.Keys())
	assert.Equal(t, int64(3), fm["LineId"])
	assert.Equal(t, "Green tea", fm["Title"])
	price, _ := fm.Decimal("UnitPrice")
	assert.True(t, decimal.RequireFromString("1080.5").Equal(price))
}

func TestDecode_JSON(t *testing.T) {
	node, err := ParseJSON([]byte(`{"LineId": 12, "IsUsed": true, "ReleaseDate": "2026-02-01T10:00:00+0900", "Title": null, "extra": {"a": 1}}`))
	require.NoError(t, err)

	fm, err := Decode(node, testGroup())
	require.NoError(t, err)

	assert.Equal(t, []string{"IsUsed", "LineId", "ReleaseDate"}, fm.Keys())
	assert.Equal(t, true, fm["IsUsed"])
	ts, _ := fm.Time("ReleaseDate")
	assert.True(t, ts.Equal(time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC)))
}

func TestDecode_EmptyNonStringIsAbsent(t *testing.T) {
	tests := []struct {
		name  string
		parse func([]byte) (*Node, error)
		body  string
	}{
		{"xml empty", ParseXML, `<Item><LineId></LineId><UnitPrice/><Title></Title></Item>`},
		{"xml blank", ParseXML, `<Item><LineId>  </LineId><UnitPrice>
			</UnitPrice><Title></Title></Item>`},
		{"json empty", ParseJSON, `{"LineId": "", "UnitPrice": "", "Title": ""}`},
		{"json blank", ParseJSON, `{"LineId": "  ", "UnitPrice": "\t", "Title": ""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := tt.parse([]byte(tt.body))
			require.NoError(t, err)

			fm, err := Decode(node, testGroup())
			require.NoError(t, err)
			assert.Equal(t, []string{"Title"}, fm.Keys())
			assert.Equal(t, "", fm["Title"])
		})
	}
}

func TestDecode_Defaults(t *testing.T) {
	g, ok := schema.Default().Group(integration.MarketplaceYahoo, schema.YahooGroupItemOption)
	require.True(t, ok)

	node, err := ParseXML([]byte(`<ItemOption><Name>Color</Name><Value>Red</Value></ItemOption>`))
	require.NoError(t, err)

	fm, err := Decode(node, g)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fm["Index"])
	assert.False(t, fm.Has("Price"))

	node, err = ParseXML([]byte(`<ItemOption><Index>2</Index></ItemOption>`))
	require.NoError(t, err)
	fm, err = Decode(node, g)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fm["Index"])
}

func TestDecode_CoercionFailure(t *testing.T) {
	tests := []struct {
		name  string
		xml   string
		field string
		raw   string
	}{
		{"int", `<Item><LineId>3a</LineId></Item>`, "LineId", "3a"},
		{"decimal", `<Item><UnitPrice>1,000</UnitPrice></Item>`, "UnitPrice", "1,000"},
		{"bool", `<Item><IsUsed>maybe</IsUsed></Item>`, "IsUsed", "maybe"},
		{"datetime", `<Item><ReleaseDate>yesterday</ReleaseDate></Item>`, "ReleaseDate", "yesterday"},
		{"structured", `<Item><Title><Part>x</Part></Title></Item>`, "Title", "<structured>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseXML([]byte(tt.xml))
			require.NoError(t, err)

			_, err = Decode(node, testGroup())
			var de *integration.DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.field, de.Field)
			assert.Equal(t, tt.raw, de.Raw)
			assert.Equal(t, "Item", de.Group)
		})
	}
}

func TestParseTime(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	tests := []struct {
		raw      string
		expected time.Time
	}{
		{"2026-03-01T10:00:00+09:00", time.Date(2026, 3, 1, 10, 0, 0, 0, jst)},
		{"2026-03-01T10:00:00+0900", time.Date(2026, 3, 1, 10, 0, 0, 0, jst)},
		{"2026-03-01 10:00:00", time.Date(2026, 3, 1, 10, 0, 0, 0, jst)},
		{"20260301100000", time.Date(2026, 3, 1, 10, 0, 0, 0, jst)},
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, jst)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTime(tt.raw)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "got %s", got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := ParseXML([]byte(`<Result><Open></Result>`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParseXML([]byte(``))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParseJSON([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParseJSON([]byte(`{"a": `))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNode_FindAll(t *testing.T) {
	node, err := ParseJSON([]byte(`{"PackageModelList":[
		{"ItemModelList":[{"itemDetailId":1},{"itemDetailId":2}]},
		{"ItemModelList":[{"itemDetailId":3}]}
	], "orderNumberList": ["a", "b"]}`))
	require.NoError(t, err)

	items := node.FindAll("PackageModelList/ItemModelList")
	require.Len(t, items, 3)
	for i, it := range items {
		raw, _, _ := it.Value("itemDetailId")
		assert.Equal(t, []string{"1", "2", "3"}[i], raw)
	}

	ids := node.FindAll("orderNumberList")
	require.Len(t, ids, 2)
	assert.Equal(t, "b", ids[1].Text)
	assert.Nil(t, node.Find("Missing/Path"))
}

func TestNode_AttributeValue(t *testing.T) {
	node, err := ParseXML([]byte(`<Result totalResultsAvailable="42"><Status>OK</Status></Result>`))
	require.NoError(t, err)
	raw, present, scalar := node.Value("totalResultsAvailable")
	assert.True(t, present)
	assert.True(t, scalar)
	assert.Equal(t, "42", raw)
}

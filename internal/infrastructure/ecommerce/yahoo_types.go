package ecommerce

import (
	"encoding/xml"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/decoder"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
)

// ---------------------------------------------------------------------------
// orderList request
// ---------------------------------------------------------------------------

// YahooOrderListRequest is the XML body of an orderList call
type YahooOrderListRequest struct {
	XMLName  xml.Name          `xml:"Req"`
	Search   YahooSearchParams `xml:"Search"`
	SellerID string            `xml:"SellerId"`
}

// YahooSearchParams selects and pages orderList results
type YahooSearchParams struct {
	Result    int                  `xml:"Result"`
	Start     int                  `xml:"Start"`
	Sort      string               `xml:"Sort"`
	Condition YahooSearchCondition `xml:"Condition"`
	Field     string               `xml:"Field"`
}

// YahooSearchCondition filters orders by order time and status
type YahooSearchCondition struct {
	OrderTimeFrom string `xml:"OrderTimeFrom,omitempty"`
	OrderTimeTo   string `xml:"OrderTimeTo,omitempty"`
	OrderStatus   string `xml:"OrderStatus,omitempty"`
}

// ---------------------------------------------------------------------------
// orderInfo request
// ---------------------------------------------------------------------------

// YahooOrderInfoRequest is the XML body of an orderInfo call
type YahooOrderInfoRequest struct {
	XMLName  xml.Name         `xml:"Req"`
	Target   YahooOrderTarget `xml:"Target"`
	SellerID string           `xml:"SellerId"`
}

// YahooOrderTarget names the order and fields to return
type YahooOrderTarget struct {
	OrderID string `xml:"OrderId"`
	Field   string `xml:"Field"`
}

// ---------------------------------------------------------------------------
// Token endpoint
// ---------------------------------------------------------------------------

// YahooTokenResponse is the JSON body returned by the token endpoint
type YahooTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
}

// YahooTokenError is the JSON error body returned by the token endpoint
type YahooTokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ---------------------------------------------------------------------------
// Payload layouts
// ---------------------------------------------------------------------------

const (
	yahooTimeLayout = "20060102150405"
	yahooSort       = "+order_time"
)

// yahooSearchLayout locates one OrderInfo summary of an orderList response
var yahooSearchLayout = decoder.EnvelopeLayout{
	Level:    integration.EnvelopeLevelSearch,
	KeyGroup: schema.YahooGroupSearch,
	KeyField: "OrderId",
	Headers:  []decoder.GroupPath{{Group: schema.YahooGroupSearch}},
}

// yahooDetailLayout locates the groups of an orderInfo OrderInfo element
var yahooDetailLayout = decoder.EnvelopeLayout{
	Level:    integration.EnvelopeLevelDetail,
	KeyGroup: schema.YahooGroupOrder,
	KeyField: "OrderId",
	Headers: []decoder.GroupPath{
		{Group: schema.YahooGroupOrder},
		{Group: schema.YahooGroupPay, Path: "Pay"},
		{Group: schema.YahooGroupShip, Path: "Ship"},
		{Group: schema.YahooGroupSeller, Path: "Seller"},
		{Group: schema.YahooGroupBuyer, Path: "Buyer"},
		{Group: schema.YahooGroupDetail, Path: "Detail"},
	},
	ItemsPath:        "Item",
	ItemGroup:        schema.YahooGroupItem,
	OptionsPath:      "ItemOption",
	OptionGroup:      schema.YahooGroupItemOption,
	InscriptionsPath: "Inscription",
	InscriptionGroup: schema.YahooGroupInscription,
}

package schema

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// Yahoo group names
const (
	YahooGroupOrder       = "Order"
	YahooGroupPay         = "Pay"
	YahooGroupShip        = "Ship"
	YahooGroupSeller      = "Seller"
	YahooGroupBuyer       = "Buyer"
	YahooGroupDetail      = "Detail"
	YahooGroupItem        = "Item"
	YahooGroupItemOption  = "ItemOption"
	YahooGroupInscription = "Inscription"
	YahooGroupSearch      = "Search"
	YahooGroupSearchMeta  = "SearchMeta"
)

// YahooDefinition returns the XML-family schema.
// Header groups come first so GroupOf resolves shared names like OrderId to Order.
func YahooDefinition() Definition {
	const (
		s  = integration.FieldTypeString
		i  = integration.FieldTypeInt
		d  = integration.FieldTypeDecimal
		b  = integration.FieldTypeBool
		dt = integration.FieldTypeDateTime
	)

	order := integration.NewFieldGroup(YahooGroupOrder, integration.GroupScopeHeader, join(
		defs(s, "OrderId", "ParentOrderId", "ChildOrderId", "DeviceType", "MobileCarrierName",
			"CancelReasonDetail", "SuspectMessage", "BuyerComments", "SellerComments", "Notes",
			"OperationUser", "Referer", "EntryPoint", "HistoryId", "UsageId", "UseCouponData",
			"MultiShipId", "YahooAuctionMerchantId", "YahooAuctionId", "LineGiftOrderId", "GiftMessage"),
		defs(i, "Version", "CancelReason", "Suspect", "OrderStatus", "StoreStatus",
			"CampaignPoints", "FraudHoldStatus", "YamatoCoopStatus", "YahooAuctionCategoryType",
			"YahooAuctionBidType", "YahooAuctionBundleType", "GoodStoreStatus"),
		defs(b, "IsSeen", "IsSplit", "IsRoyalty", "IsRoyaltyFix", "IsSeller", "IsAffiliate",
			"IsRatingB2s", "NeedSnl", "ShippingCouponFlg", "IsMultiShip", "IsReadOnly",
			"IsFirstClassDrugIncludes", "IsFirstClassDrugAgreement", "IsWelcomeGiftIncludes",
			"IsYahooAuctionOrder", "IsYahooAuctionDeferred", "IsLineGiftOrder"),
		defs(d, "TotalCouponDiscount", "ShippingCouponDiscount"),
		defs(dt, "OrderTime", "LastUpdateTime", "RoyaltyFixTime", "SendConfirmTime", "SendPayTime",
			"PrintSlipTime", "PrintDeliveryTime", "PrintBillTime", "PublicationTime"),
	), nil)

	pay := integration.NewFieldGroup(YahooGroupPay, integration.GroupScopeHeader, join(
		defs(s, "PayType", "PayKind", "PayMethod", "PayMethodName", "PayNotes", "SettleId",
			"CardBrand", "CardNumberLast4", "CardPayType", "CardHolderName", "PayNo",
			"ConfirmNumber", "PaymentTerm", "BillAddressFrom",
			"BillFirstName", "BillFirstNameKana", "BillLastName", "BillLastNameKana",
			"BillZipCode", "BillPrefecture", "BillPrefectureKana", "BillCity", "BillCityKana",
			"BillAddress1", "BillAddress1Kana", "BillAddress2", "BillAddress2Kana",
			"BillPhoneNumber", "BillEmgPhoneNumber", "BillMailAddress",
			"BillSection1Field", "BillSection1Value", "BillSection2Field", "BillSection2Value"),
		defs(i, "PayStatus", "SettleStatus", "CardPayCount"),
		defs(d, "SellerHandlingCharge"),
		defs(b, "UseYahooCard", "UseWallet", "NeedBillSlip", "NeedDetailedSlip", "NeedReceipt", "IsApplePay"),
		defs(dt, "PayActionTime", "PayDate", "PayNoIssueDate"),
	), nil)

	ship := integration.NewFieldGroup(YahooGroupShip, integration.GroupScopeHeader, join(
		defs(s, "ShipMethod", "ShipMethodName", "ShipRequestTime", "ShipNotes", "ShipCompanyCode",
			"ReceiveShopCode", "ShipInvoiceNumber1", "ShipInvoiceNumber2", "ShipInvoiceNumberEmptyReason",
			"ShipUrl", "GiftWrapCode", "GiftWrapType", "GiftWrapMessage", "GiftWrapPaperType",
			"GiftWrapName", "Option1Field", "Option1Type", "Option1Value", "Option2Field",
			"Option2Type", "Option2Value",
			"ShipFirstName", "ShipFirstNameKana", "ShipLastName", "ShipLastNameKana",
			"ShipZipCode", "ShipPrefecture", "ShipPrefectureKana", "ShipCity", "ShipCityKana",
			"ShipAddress1", "ShipAddress1Kana", "ShipAddress2", "ShipAddress2Kana",
			"ShipPhoneNumber", "ShipEmgPhoneNumber",
			"ShipSection1Field", "ShipSection1Value", "ShipSection2Field", "ShipSection2Value",
			"ReceiveSatelliteName"),
		defs(i, "ShipStatus", "ArriveType", "ReceiveSatelliteType"),
		defs(b, "NeedGiftWrap", "NeedGiftWrapPaper"),
		defs(dt, "ShipRequestDate", "ShipDate", "ArrivalDate", "ReceiveSatelliteSetDate"),
	), nil)

	seller := integration.NewFieldGroup(YahooGroupSeller, integration.GroupScopeHeader, join(
		defs(s, "SellerId", "FspLicenseCode", "FspLicenseName", "GuestAuthId"),
		defs(b, "IsLogin"),
	), nil)

	buyer := integration.NewFieldGroup(YahooGroupBuyer, integration.GroupScopeHeader, join(
		defs(s, "BuyerId"),
		defs(b, "IsPremiumMember", "IsEbookMember"),
	), nil)

	detail := integration.NewFieldGroup(YahooGroupDetail, integration.GroupScopeHeader, join(
		defs(d, "PayCharge", "ShipCharge", "GiftWrapCharge", "Discount", "Adjustments",
			"SettleAmount", "UsePoint", "GiftCardDiscount", "TotalPrice", "SettlePayAmount",
			"TotalMallCouponDiscount", "LineGiftCharge", "TotalImmediateBonusAmount"),
		defs(i, "TotalImmediateBonusRatio"),
		defs(b, "IsGetPointFixAll", "IsGetStoreBonusFixAll"),
	), nil)

	item := integration.NewFieldGroup(YahooGroupItem, integration.GroupScopeItem, join(
		defs(s, "ItemId", "Title", "SubCode", "SubCodeOption", "ImageId", "Jan", "ProductId",
			"PointFspCode", "CouponData", "LeadTimeText", "PickAndDeliveryCode", "StoreCouponCode",
			"YamatoUndeliverableReason"),
		defs(i, "LineId", "ItemTaxRatio", "CategoryId", "AffiliateRatio", "Quantity",
			"PointAvailQuantity", "PointRatioY", "PointRatioSeller", "UnitGetPoint",
			"CouponUseNum", "OriginalNum", "PriceType", "PickAndDeliveryTransportRuleType"),
		defs(d, "UnitPrice", "NonTaxUnitPrice", "CouponDiscount", "OriginalPrice", "StoreCouponDiscount"),
		defs(b, "IsUsed", "IsTaxable", "IsGetPointFix"),
		defs(dt, "ReleaseDate", "GetPointFixDate", "LeadTimeStart", "LeadTimeEnd"),
	), nil)

	option := integration.NewFieldGroup(YahooGroupItemOption, integration.GroupScopeItemChild, join(
		defs(i, "Index"),
		defs(s, "Name", "Value"),
		defs(d, "Price"),
	), integration.FieldMap{"Index": int64(0)})

	inscription := integration.NewFieldGroup(YahooGroupInscription, integration.GroupScopeItemChild, join(
		defs(i, "Index"),
		defs(s, "Name", "Value"),
	), integration.FieldMap{"Index": int64(0)})

	// orderList returns a flat summary record per order
	search := integration.NewFieldGroup(YahooGroupSearch, integration.GroupScopeSearch, join(
		defs(s, "OrderId", "ShipInvoiceNumber1", "BuyerComments", "ShipFirstName", "ShipLastName",
			"ShipPrefecture", "PayMethod", "ShipMethod"),
		defs(i, "Index", "Version", "OrderStatus", "StoreStatus", "PayStatus", "ShipStatus", "Suspect"),
		defs(d, "TotalPrice"),
		defs(b, "IsSeen", "IsSplit", "IsRoyalty", "IsMultiShip"),
		defs(dt, "OrderTime", "LastUpdateTime", "ShipDate"),
	), nil)

	searchMeta := integration.NewFieldGroup(YahooGroupSearchMeta, integration.GroupScopeSearch,
		defs(i, "TotalCount"), nil)

	return Definition{
		Marketplace: integration.MarketplaceYahoo,
		Groups:      []*integration.FieldGroup{order, pay, ship, seller, buyer, detail, item, option, inscription, search, searchMeta},
		Mapping: &integration.MappingSpec{
			Bindings: []integration.CanonicalBinding{
				{Field: integration.CanonicalSellerID, Sources: []string{"SellerId"}, Required: true},
				{Field: integration.CanonicalOrderID, Sources: []string{"Order.OrderId"}, Required: true},
				{Field: integration.CanonicalOrderTime, Sources: []string{"Order.OrderTime"}, Required: true},
				{Field: integration.CanonicalShipZip, Sources: []string{"Ship.ShipZipCode"}, Required: true},
				{Field: integration.CanonicalShipPrefecture, Sources: []string{"Ship.ShipPrefecture"}, Required: true},
				{Field: integration.CanonicalShipCity, Sources: []string{"Ship.ShipCity"}, Required: true},
				{Field: integration.CanonicalShipAddress1, Sources: []string{"Ship.ShipAddress1"}, Required: true},
				{Field: integration.CanonicalShipAddress2, Sources: []string{"Ship.ShipAddress2"}},
				{Field: integration.CanonicalShipName, Sources: []string{"Ship.ShipLastName", "Ship.ShipFirstName"}, Separator: " ", Required: true},
				{Field: integration.CanonicalLineID, Sources: []string{"LineId"}, Required: true},
				{Field: integration.CanonicalItemID, Sources: []string{"ItemId"}, Required: true},
				{Field: integration.CanonicalSubCode, Sources: []string{"SubCode"}},
				{Field: integration.CanonicalTitle, Sources: []string{"Title"}},
				{Field: integration.CanonicalQuantity, Sources: []string{"Quantity"}, Required: true},
				{Field: integration.CanonicalTaxRate, Sources: []string{"ItemTaxRatio"}, Convert: percentToRate},
				{Field: integration.CanonicalUnitPrice, Sources: []string{"UnitPrice"}, Required: true},
				{Field: integration.CanonicalDiscount, Sources: []string{"CouponDiscount"}},
			},
			Options:      &integration.ChildBinding{Group: YahooGroupItemOption, Index: "Index", Name: "Name", Value: "Value", Price: "Price"},
			Inscriptions: &integration.ChildBinding{Group: YahooGroupInscription, Index: "Index", Name: "Name", Value: "Value"},
		},
	}
}

var hundred = decimal.NewFromInt(100)

// percentToRate turns an integer percentage (10) into a fraction (0.1)
func percentToRate(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return decimal.NewFromInt(x).Div(hundred), nil
	case decimal.Decimal:
		return x.Div(hundred), nil
	default:
		return nil, fmt.Errorf("tax ratio: unexpected %T", v)
	}
}

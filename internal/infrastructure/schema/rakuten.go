package schema

import (
	"fmt"
	"strings"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// Rakuten group names. Field names are case-sensitive lowerCamel.
const (
	RakutenGroupOrder      = "Order"
	RakutenGroupSender     = "Sender"
	RakutenGroupOrderer    = "Orderer"
	RakutenGroupSettlement = "Settlement"
	RakutenGroupDelivery   = "Delivery"
	RakutenGroupPackage    = "Package"
	RakutenGroupItem       = "Item"
	RakutenGroupSku        = "Sku"
	RakutenGroupSearch     = "Search"
	RakutenGroupSearchMeta = "SearchMeta"
)

// RakutenDefinition returns the JSON-family schema.
// Sender and Orderer share address field names, so bindings use qualified sources.
func RakutenDefinition() Definition {
	const (
		s  = integration.FieldTypeString
		i  = integration.FieldTypeInt
		d  = integration.FieldTypeDecimal
		dt = integration.FieldTypeDateTime
	)

	address := func(extra ...string) []integration.FieldDef {
		return defs(s, append([]string{"zipCode1", "zipCode2", "prefecture", "city", "subAddress",
			"familyName", "firstName", "familyNameKana", "firstNameKana",
			"phoneNumber1", "phoneNumber2", "phoneNumber3"}, extra...)...)
	}

	order := integration.NewFieldGroup(RakutenGroupOrder, integration.GroupScopeHeader, join(
		defs(s, "orderNumber", "remarks", "memo", "operator", "mailPlugSentence", "deliveryDate",
			"shippingTerm", "reserveNumber"),
		defs(i, "orderProgress", "subStatusId", "giftCheckFlag", "severalSenderFlag", "equalSenderFlag",
			"isolatedIslandFlag", "rakutenMemberFlag", "carrierCode", "emailCarrierCode", "orderType",
			"reserveDeliveryCount", "cautionDisplayType", "rakutenConfirmFlag", "asurakuFlag",
			"drugFlag", "dealFlag", "membershipType", "modifyFlag", "receiptIssueCount"),
		defs(d, "goodsPrice", "goodsTax", "postagePrice", "deliveryPrice", "paymentCharge",
			"paymentChargeTaxRate", "totalPrice", "requestPrice", "couponAllTotalPrice",
			"couponShopPrice", "couponOtherPrice", "additionalFeeOccurAmountToUser",
			"additionalFeeOccurAmountToShop"),
		defs(dt, "orderDatetime", "shopOrderCfmDatetime", "orderFixDatetime", "shippingInstDatetime",
			"shippingCmplRptDatetime", "cancelDueDate"),
	), nil)

	sender := integration.NewFieldGroup(RakutenGroupSender, integration.GroupScopeHeader, address(), nil)

	orderer := integration.NewFieldGroup(RakutenGroupOrderer, integration.GroupScopeHeader, join(
		address("emailAddress", "sex", "nickname"),
		defs(i, "birthYear", "birthMonth", "birthDay"),
	), nil)

	settlement := integration.NewFieldGroup(RakutenGroupSettlement, integration.GroupScopeHeader, join(
		defs(s, "settlementMethod", "cardName", "cardOwner", "cardYm", "cardInstallmentDesc"),
		defs(i, "settlementMethodCode", "rpaySettlementFlag", "cardPayType"),
	), nil)

	delivery := integration.NewFieldGroup(RakutenGroupDelivery, integration.GroupScopeHeader, join(
		defs(s, "deliveryName"),
		defs(i, "deliveryClass"),
	), nil)

	pkg := integration.NewFieldGroup(RakutenGroupPackage, integration.GroupScopeHeader, join(
		defs(s, "noshi", "defaultDeliveryCompanyCode"),
		defs(i, "basketId", "packageDeleteFlag"),
		defs(d, "postageTaxRate", "deliveryTaxRate"),
	), nil)

	item := integration.NewFieldGroup(RakutenGroupItem, integration.GroupScopeItem, join(
		defs(s, "itemName", "itemId", "itemNumber", "manageNumber", "selectedChoice", "delvdateInfo"),
		defs(i, "itemDetailId", "units", "includePostageFlag", "includeTaxFlag",
			"includeCashOnDeliveryPostageFlag", "pointType", "inventoryType", "restoreInventoryFlag",
			"deleteItemFlag", "isSingleItemShipping"),
		defs(d, "price", "priceTaxIncl", "taxRate", "pointRate"),
	), nil)

	sku := integration.NewFieldGroup(RakutenGroupSku, integration.GroupScopeItemChild, join(
		defs(s, "variantId", "merchantDefinedSkuId", "skuInfo"),
	), nil)

	search := integration.NewFieldGroup(RakutenGroupSearch, integration.GroupScopeSearch,
		defs(s, "orderNumber"), nil)

	searchMeta := integration.NewFieldGroup(RakutenGroupSearchMeta, integration.GroupScopeSearch,
		defs(i, "totalRecordsAmount", "totalPages", "requestPage"), nil)

	return Definition{
		Marketplace: integration.MarketplaceRakuten,
		Groups: []*integration.FieldGroup{
			order, sender, orderer, settlement, delivery, pkg, item, sku, search, searchMeta,
		},
		Mapping: &integration.MappingSpec{
			Bindings: []integration.CanonicalBinding{
				{Field: integration.CanonicalSellerID, Sources: []string{"Order.orderNumber"}, Required: true, Convert: rakutenShopID},
				{Field: integration.CanonicalOrderID, Sources: []string{"Order.orderNumber"}, Required: true},
				{Field: integration.CanonicalOrderTime, Sources: []string{"orderDatetime"}, Required: true},
				{Field: integration.CanonicalShipZip, Sources: []string{"Sender.zipCode1", "Sender.zipCode2"}, Required: true},
				{Field: integration.CanonicalShipPrefecture, Sources: []string{"Sender.prefecture"}, Required: true},
				{Field: integration.CanonicalShipCity, Sources: []string{"Sender.city"}, Required: true},
				{Field: integration.CanonicalShipAddress1, Sources: []string{"Sender.subAddress"}, Required: true},
				{Field: integration.CanonicalShipName, Sources: []string{"Sender.familyName", "Sender.firstName"}, Separator: " ", Required: true},
				{Field: integration.CanonicalLineID, Sources: []string{"itemDetailId"}, Required: true},
				{Field: integration.CanonicalItemID, Sources: []string{"manageNumber"}, Required: true},
				{Field: integration.CanonicalTitle, Sources: []string{"itemName"}},
				{Field: integration.CanonicalQuantity, Sources: []string{"units"}, Required: true},
				{Field: integration.CanonicalTaxRate, Sources: []string{"taxRate"}},
				{Field: integration.CanonicalUnitPrice, Sources: []string{"price"}, Required: true},
			},
			Options: &integration.ChildBinding{Group: RakutenGroupSku, Name: "merchantDefinedSkuId", Value: "skuInfo"},
		},
	}
}

// rakutenShopID extracts the shop id prefix of an order number ("338459-20260301-0000000123")
func rakutenShopID(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("order number: unexpected %T", v)
	}
	prefix, _, found := strings.Cut(s, "-")
	if !found || prefix == "" {
		return nil, fmt.Errorf("order number %q has no shop prefix", s)
	}
	return prefix, nil
}

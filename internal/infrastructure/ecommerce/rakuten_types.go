package ecommerce

import (
	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/decoder"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
)

// RakutenSearchOrderRequest is the JSON body of a searchOrder call
type RakutenSearchOrderRequest struct {
	DateType               int                      `json:"dateType"`
	StartDatetime          string                   `json:"startDatetime"`
	EndDatetime            string                   `json:"endDatetime"`
	OrderProgressList      []int                    `json:"orderProgressList,omitempty"`
	PaginationRequestModel RakutenPaginationRequest `json:"PaginationRequestModel"`
}

// RakutenPaginationRequest pages searchOrder results
type RakutenPaginationRequest struct {
	RequestRecordsAmount int                `json:"requestRecordsAmount"`
	RequestPage          int                `json:"requestPage"`
	SortModelList        []RakutenSortModel `json:"SortModelList,omitempty"`
}

// RakutenSortModel orders searchOrder results
type RakutenSortModel struct {
	SortColumn    int `json:"sortColumn"`
	SortDirection int `json:"sortDirection"`
}

// RakutenGetOrderRequest is the JSON body of a getOrder call
type RakutenGetOrderRequest struct {
	OrderNumberList []string `json:"orderNumberList"`
	Version         int      `json:"version"`
}

const (
	rakutenTimeLayout = "2006-01-02T15:04:05-0700"
	// sort by order datetime ascending
	rakutenSortOrderDatetime = 1
	rakutenSortAscending     = 1
)

// rakutenSearchLayout reads each entry of orderNumberList as a bare order number
var rakutenSearchLayout = decoder.EnvelopeLayout{
	Level:     integration.EnvelopeLevelSearch,
	KeyGroup:  schema.RakutenGroupSearch,
	KeyField:  "orderNumber",
	TextField: "orderNumber",
	Headers:   []decoder.GroupPath{{Group: schema.RakutenGroupSearch}},
}

// rakutenDetailLayout locates the groups of an OrderModelList entry.
// Only the first package's sender is read.
var rakutenDetailLayout = decoder.EnvelopeLayout{
	Level:    integration.EnvelopeLevelDetail,
	KeyGroup: schema.RakutenGroupOrder,
	KeyField: "orderNumber",
	Headers: []decoder.GroupPath{
		{Group: schema.RakutenGroupOrder},
		{Group: schema.RakutenGroupOrderer, Path: "OrdererModel"},
		{Group: schema.RakutenGroupSettlement, Path: "SettlementModel"},
		{Group: schema.RakutenGroupDelivery, Path: "DeliveryModel"},
		{Group: schema.RakutenGroupPackage, Path: "PackageModelList"},
		{Group: schema.RakutenGroupSender, Path: "PackageModelList/SenderModel"},
	},
	ItemsPath:   "PackageModelList/ItemModelList",
	ItemGroup:   schema.RakutenGroupItem,
	OptionsPath: "SkuModelList",
	OptionGroup: schema.RakutenGroupSku,
}

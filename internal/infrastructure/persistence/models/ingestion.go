package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Credential
// ---------------------------------------------------------------------------

// CredentialModel is the persistence model for a shop's marketplace credential
type CredentialModel struct {
	ShopCode          string                  `gorm:"type:varchar(64);primaryKey"`
	Marketplace       integration.Marketplace `gorm:"type:varchar(20);not null"`
	SellerID          string                  `gorm:"type:varchar(64);not null;default:''"`
	AuthMode          integration.AuthMode    `gorm:"type:varchar(20);not null"`
	AccessToken       string                  `gorm:"type:text;not null;default:''"`
	AccessExpiresAt   *time.Time
	RefreshToken      string `gorm:"type:text;not null;default:''"`
	RefreshExpiresAt  *time.Time
	AuthorizationCode string    `gorm:"type:text;not null;default:''"`
	ClientID          string    `gorm:"type:varchar(255);not null;default:''"`
	ClientSecret      string    `gorm:"type:varchar(255);not null;default:''"`
	RedirectURI       string    `gorm:"type:varchar(512);not null;default:''"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CredentialModel) TableName() string {
	return "marketplace_credentials"
}

// ToDomain converts the persistence model to a domain Credential
func (m *CredentialModel) ToDomain() *integration.Credential {
	return &integration.Credential{
		ShopCode:          m.ShopCode,
		Marketplace:       m.Marketplace,
		SellerID:          m.SellerID,
		AuthMode:          m.AuthMode,
		AccessToken:       m.AccessToken,
		AccessExpiresAt:   derefTime(m.AccessExpiresAt),
		RefreshToken:      m.RefreshToken,
		RefreshExpiresAt:  derefTime(m.RefreshExpiresAt),
		AuthorizationCode: m.AuthorizationCode,
		ClientID:          m.ClientID,
		ClientSecret:      m.ClientSecret,
		RedirectURI:       m.RedirectURI,
		UpdatedAt:         m.UpdatedAt,
	}
}

// CredentialModelFromDomain creates a persistence model from a domain Credential
func CredentialModelFromDomain(c *integration.Credential) *CredentialModel {
	return &CredentialModel{
		ShopCode:          c.ShopCode,
		Marketplace:       c.Marketplace,
		SellerID:          c.SellerID,
		AuthMode:          c.AuthMode,
		AccessToken:       c.AccessToken,
		AccessExpiresAt:   timePtr(c.AccessExpiresAt),
		RefreshToken:      c.RefreshToken,
		RefreshExpiresAt:  timePtr(c.RefreshExpiresAt),
		AuthorizationCode: c.AuthorizationCode,
		ClientID:          c.ClientID,
		ClientSecret:      c.ClientSecret,
		RedirectURI:       c.RedirectURI,
		UpdatedAt:         c.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Order line
// ---------------------------------------------------------------------------

// OrderLineModel is the persistence model for an append-only canonical order line
type OrderLineModel struct {
	ID             uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	RunID          uuid.UUID                 `gorm:"type:uuid;not null;index:idx_order_lines_run"`
	ShopCode       string                    `gorm:"type:varchar(64);not null;index:idx_order_lines_shop_order,priority:1"`
	Marketplace    integration.Marketplace   `gorm:"type:varchar(20);not null"`
	SellerID       string                    `gorm:"type:varchar(64);not null"`
	ShipZip        string                    `gorm:"type:varchar(16)"`
	ShipPrefecture string                    `gorm:"type:varchar(64)"`
	ShipCity       string                    `gorm:"type:varchar(255)"`
	ShipAddress1   string                    `gorm:"type:varchar(255)"`
	ShipAddress2   string                    `gorm:"type:varchar(255)"`
	ShipName       string                    `gorm:"type:varchar(255)"`
	OrderID        string                    `gorm:"type:varchar(100);not null;index:idx_order_lines_shop_order,priority:2"`
	LineID         string                    `gorm:"type:varchar(64);not null"`
	SKU            string                    `gorm:"column:sku;type:varchar(255)"`
	ItemID         string                    `gorm:"type:varchar(255)"`
	SubCode        string                    `gorm:"type:varchar(255)"`
	Title          string                    `gorm:"type:text"`
	Quantity       int64                     `gorm:"not null"`
	TaxRate        decimal.Decimal           `gorm:"type:decimal(6,4);not null"`
	UnitPrice      decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Discount       decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	LineTotal      decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	OrderTime      time.Time                 `gorm:"not null"`
	LastOrderDate  time.Time                 `gorm:"not null"`
	Options        []integration.OptionValue `gorm:"type:jsonb;serializer:json"`
	Inscriptions   []integration.OptionValue `gorm:"type:jsonb;serializer:json"`
	IngestedAt     time.Time                 `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderLineModel) TableName() string {
	return "order_lines"
}

// ToDomain converts the persistence model to a domain OrderLine
func (m *OrderLineModel) ToDomain() integration.OrderLine {
	return integration.OrderLine{
		ID:             m.ID,
		RunID:          m.RunID,
		ShopCode:       m.ShopCode,
		Marketplace:    m.Marketplace,
		SellerID:       m.SellerID,
		ShipZip:        m.ShipZip,
		ShipPrefecture: m.ShipPrefecture,
		ShipCity:       m.ShipCity,
		ShipAddress1:   m.ShipAddress1,
		ShipAddress2:   m.ShipAddress2,
		ShipName:       m.ShipName,
		OrderID:        m.OrderID,
		LineID:         m.LineID,
		SKU:            m.SKU,
		ItemID:         m.ItemID,
		SubCode:        m.SubCode,
		Title:          m.Title,
		Quantity:       m.Quantity,
		TaxRate:        m.TaxRate,
		UnitPrice:      m.UnitPrice,
		Discount:       m.Discount,
		LineTotal:      m.LineTotal,
		OrderTime:      m.OrderTime,
		LastOrderDate:  m.LastOrderDate,
		Options:        m.Options,
		Inscriptions:   m.Inscriptions,
		IngestedAt:     m.IngestedAt,
	}
}

// OrderLineModelFromDomain creates a persistence model from a domain OrderLine.
// A missing ID is generated.
func OrderLineModelFromDomain(l *integration.OrderLine) *OrderLineModel {
	id := l.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &OrderLineModel{
		ID:             id,
		RunID:          l.RunID,
		ShopCode:       l.ShopCode,
		Marketplace:    l.Marketplace,
		SellerID:       l.SellerID,
		ShipZip:        l.ShipZip,
		ShipPrefecture: l.ShipPrefecture,
		ShipCity:       l.ShipCity,
		ShipAddress1:   l.ShipAddress1,
		ShipAddress2:   l.ShipAddress2,
		ShipName:       l.ShipName,
		OrderID:        l.OrderID,
		LineID:         l.LineID,
		SKU:            l.SKU,
		ItemID:         l.ItemID,
		SubCode:        l.SubCode,
		Title:          l.Title,
		Quantity:       l.Quantity,
		TaxRate:        l.TaxRate,
		UnitPrice:      l.UnitPrice,
		Discount:       l.Discount,
		LineTotal:      l.LineTotal,
		OrderTime:      l.OrderTime,
		LastOrderDate:  l.LastOrderDate,
		Options:        l.Options,
		Inscriptions:   l.Inscriptions,
		IngestedAt:     l.IngestedAt,
	}
}

// ---------------------------------------------------------------------------
// Ingestion run
// ---------------------------------------------------------------------------

// IngestionRunModel is the persistence model for an ingestion run
type IngestionRunModel struct {
	ID              uuid.UUID               `gorm:"type:uuid;primaryKey"`
	ShopCode        string                  `gorm:"type:varchar(64);not null;index:idx_ingestion_runs_shop_created,priority:1"`
	Marketplace     integration.Marketplace `gorm:"type:varchar(20);not null"`
	Mode            integration.RunMode     `gorm:"type:varchar(20);not null"`
	UserTag         string                  `gorm:"type:varchar(64)"`
	Status          integration.RunStatus   `gorm:"type:varchar(20);not null;index"`
	WindowFrom      time.Time               `gorm:"not null"`
	WindowTo        time.Time               `gorm:"not null"`
	ReportedTotal   int                     `gorm:"not null;default:0"`
	PagesFetched    int                     `gorm:"not null;default:0"`
	RecordsFetched  int                     `gorm:"not null;default:0"`
	RecordsRejected int                     `gorm:"not null;default:0"`
	DetailsFetched  int                     `gorm:"not null;default:0"`
	LinesWritten    int                     `gorm:"not null;default:0"`
	RowErrors       int                     `gorm:"not null;default:0"`
	Complete        bool                    `gorm:"not null;default:false"`
	ErrorKind       integration.ErrorKind   `gorm:"type:varchar(32)"`
	Error           string                  `gorm:"type:text"`
	CreatedAt       time.Time               `gorm:"not null;index:idx_ingestion_runs_shop_created,priority:2"`
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// TableName returns the table name for GORM
func (IngestionRunModel) TableName() string {
	return "ingestion_runs"
}

// ToDomain converts the persistence model to a domain IngestionRun
func (m *IngestionRunModel) ToDomain() *integration.IngestionRun {
	return &integration.IngestionRun{
		ID:          m.ID,
		ShopCode:    m.ShopCode,
		Marketplace: m.Marketplace,
		Mode:        m.Mode,
		UserTag:     m.UserTag,
		Status:      m.Status,
		WindowFrom:  m.WindowFrom,
		WindowTo:    m.WindowTo,
		Stats: integration.RunStats{
			ReportedTotal:   m.ReportedTotal,
			PagesFetched:    m.PagesFetched,
			RecordsFetched:  m.RecordsFetched,
			RecordsRejected: m.RecordsRejected,
			DetailsFetched:  m.DetailsFetched,
			LinesWritten:    m.LinesWritten,
			RowErrors:       m.RowErrors,
			Complete:        m.Complete,
		},
		ErrorKind:  m.ErrorKind,
		Error:      m.Error,
		CreatedAt:  m.CreatedAt,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

// IngestionRunModelFromDomain creates a persistence model from a domain IngestionRun
func IngestionRunModelFromDomain(r *integration.IngestionRun) *IngestionRunModel {
	return &IngestionRunModel{
		ID:              r.ID,
		ShopCode:        r.ShopCode,
		Marketplace:     r.Marketplace,
		Mode:            r.Mode,
		UserTag:         r.UserTag,
		Status:          r.Status,
		WindowFrom:      r.WindowFrom,
		WindowTo:        r.WindowTo,
		ReportedTotal:   r.Stats.ReportedTotal,
		PagesFetched:    r.Stats.PagesFetched,
		RecordsFetched:  r.Stats.RecordsFetched,
		RecordsRejected: r.Stats.RecordsRejected,
		DetailsFetched:  r.Stats.DetailsFetched,
		LinesWritten:    r.Stats.LinesWritten,
		RowErrors:       r.Stats.RowErrors,
		Complete:        r.Stats.Complete,
		ErrorKind:       r.ErrorKind,
		Error:           r.Error,
		CreatedAt:       r.CreatedAt,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
}

// ---------------------------------------------------------------------------
// Error report
// ---------------------------------------------------------------------------

// ErrorReportModel is the persistence model for an error sink entry
type ErrorReportModel struct {
	ID         uuid.UUID             `gorm:"type:uuid;primaryKey"`
	Kind       integration.ErrorKind `gorm:"type:varchar(32);not null;index"`
	Endpoint   string                `gorm:"type:varchar(255)"`
	Method     string                `gorm:"type:varchar(16)"`
	UserTag    string                `gorm:"type:varchar(64)"`
	ShopCode   string                `gorm:"type:varchar(64);index"`
	RunID      *uuid.UUID            `gorm:"type:uuid;index"`
	Message    string                `gorm:"type:text"`
	Extra      map[string]any        `gorm:"type:jsonb;serializer:json"`
	OccurredAt time.Time             `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ErrorReportModel) TableName() string {
	return "error_reports"
}

// ToDomain converts the persistence model to a domain ErrorReport
func (m *ErrorReportModel) ToDomain() integration.ErrorReport {
	r := integration.ErrorReport{
		ID:         m.ID,
		Kind:       m.Kind,
		Endpoint:   m.Endpoint,
		Method:     m.Method,
		UserTag:    m.UserTag,
		ShopCode:   m.ShopCode,
		Message:    m.Message,
		Extra:      m.Extra,
		OccurredAt: m.OccurredAt,
	}
	if m.RunID != nil {
		r.RunID = *m.RunID
	}
	return r
}

// ErrorReportModelFromDomain creates a persistence model from a domain ErrorReport
func ErrorReportModelFromDomain(r integration.ErrorReport) *ErrorReportModel {
	m := &ErrorReportModel{
		ID:         r.ID,
		Kind:       r.Kind,
		Endpoint:   r.Endpoint,
		Method:     r.Method,
		UserTag:    r.UserTag,
		ShopCode:   r.ShopCode,
		Message:    r.Message,
		Extra:      r.Extra,
		OccurredAt: r.OccurredAt,
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if r.RunID != uuid.Nil {
		id := r.RunID
		m.RunID = &id
	}
	return m
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

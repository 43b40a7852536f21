package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/persistence/models"
)

// ErrorReportFilter narrows FindRecent. Zero values match everything.
type ErrorReportFilter struct {
	ShopCode string
	Kind     integration.ErrorKind
	Since    time.Time
	Limit    int
}

// GormErrorReportRepository stores error sink entries
type GormErrorReportRepository struct {
	db *gorm.DB
}

// NewGormErrorReportRepository creates a new GormErrorReportRepository
func NewGormErrorReportRepository(db *gorm.DB) *GormErrorReportRepository {
	return &GormErrorReportRepository{db: db}
}

// Save inserts one report
func (r *GormErrorReportRepository) Save(ctx context.Context, report integration.ErrorReport) error {
	return r.db.WithContext(ctx).Create(models.ErrorReportModelFromDomain(report)).Error
}

// FindRecent returns the newest reports matching filter
func (r *GormErrorReportRepository) FindRecent(ctx context.Context, filter ErrorReportFilter) ([]integration.ErrorReport, error) {
	limit := filter.Limit
	if limit <= 0 || limit > MaxRunListLimit {
		limit = MaxRunListLimit
	}
	query := r.db.WithContext(ctx).Order("occurred_at DESC").Limit(limit)
	if filter.ShopCode != "" {
		query = query.Where("shop_code = ?", filter.ShopCode)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if !filter.Since.IsZero() {
		query = query.Where("occurred_at >= ?", filter.Since)
	}

	var rows []models.ErrorReportModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.ErrorReport, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

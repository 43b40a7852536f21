package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/persistence/models"
)

// orderLineBatchSize bounds the rows of one INSERT statement
const orderLineBatchSize = 500

// GormOrderLineRepository implements integration.OrderLineRepository using GORM.
// Rows are only ever inserted.
type GormOrderLineRepository struct {
	db *gorm.DB
}

var _ integration.OrderLineRepository = (*GormOrderLineRepository)(nil)

// NewGormOrderLineRepository creates a new GormOrderLineRepository
func NewGormOrderLineRepository(db *gorm.DB) *GormOrderLineRepository {
	return &GormOrderLineRepository{db: db}
}

// AppendBatch inserts all lines in one transaction
func (r *GormOrderLineRepository) AppendBatch(ctx context.Context, lines []integration.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	rows := make([]*models.OrderLineModel, 0, len(lines))
	for i := range lines {
		rows = append(rows, models.OrderLineModelFromDomain(&lines[i]))
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, orderLineBatchSize).Error
	})
}

// FindByOrder returns the stored lines of one order, oldest ingestion first
func (r *GormOrderLineRepository) FindByOrder(ctx context.Context, shopCode, orderID string) ([]integration.OrderLine, error) {
	var rows []models.OrderLineModel
	err := r.db.WithContext(ctx).
		Where("shop_code = ? AND order_id = ?", shopCode, orderID).
		Order("ingested_at, line_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]integration.OrderLine, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// CountByRun counts the lines written by a run
func (r *GormOrderLineRepository) CountByRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OrderLineModel{}).Where("run_id = ?", runID).Count(&count).Error
	return count, err
}

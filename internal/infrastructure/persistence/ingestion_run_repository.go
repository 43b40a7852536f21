package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/persistence/models"
)

// MaxRunListLimit caps FindRecent
const MaxRunListLimit = 200

// GormIngestionRunRepository implements integration.IngestionRunRepository using GORM
type GormIngestionRunRepository struct {
	db *gorm.DB
}

var _ integration.IngestionRunRepository = (*GormIngestionRunRepository)(nil)

// NewGormIngestionRunRepository creates a new GormIngestionRunRepository
func NewGormIngestionRunRepository(db *gorm.DB) *GormIngestionRunRepository {
	return &GormIngestionRunRepository{db: db}
}

// Create inserts a new run
func (r *GormIngestionRunRepository) Create(ctx context.Context, run *integration.IngestionRun) error {
	return r.db.WithContext(ctx).Create(models.IngestionRunModelFromDomain(run)).Error
}

// Update overwrites the mutable columns of a run
func (r *GormIngestionRunRepository) Update(ctx context.Context, run *integration.IngestionRun) error {
	model := models.IngestionRunModelFromDomain(run)
	result := r.db.WithContext(ctx).
		Model(&models.IngestionRunModel{}).
		Where("id = ?", run.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrRunNotFound
	}
	return nil
}

// FindByID finds a run by its ID
func (r *GormIngestionRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.IngestionRun, error) {
	var model models.IngestionRunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRecent returns the newest runs, optionally for one shop
func (r *GormIngestionRunRepository) FindRecent(ctx context.Context, shopCode string, limit int) ([]integration.IngestionRun, error) {
	if limit <= 0 || limit > MaxRunListLimit {
		limit = MaxRunListLimit
	}
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if shopCode != "" {
		query = query.Where("shop_code = ?", shopCode)
	}
	var rows []models.IngestionRunModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.IngestionRun, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// LastSucceeded returns the succeeded run with the latest window end
func (r *GormIngestionRunRepository) LastSucceeded(ctx context.Context, shopCode string) (*integration.IngestionRun, error) {
	var model models.IngestionRunModel
	err := r.db.WithContext(ctx).
		Where("shop_code = ? AND status = ?", shopCode, integration.RunStatusSucceeded).
		Order("window_to DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

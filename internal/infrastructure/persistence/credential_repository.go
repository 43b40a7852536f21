package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/persistence/models"
)

// GormCredentialRepository implements integration.CredentialStore using GORM
type GormCredentialRepository struct {
	db *gorm.DB
}

var _ integration.CredentialStore = (*GormCredentialRepository)(nil)

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormCredentialRepository) WithTx(tx *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: tx}
}

// GetByShop finds the credential of a shop
func (r *GormCredentialRepository) GetByShop(ctx context.Context, shopCode string) (*integration.Credential, error) {
	var model models.CredentialModel
	if err := r.db.WithContext(ctx).Where("shop_code = ?", shopCode).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCredentialMissing
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert writes every column of the credential in a single statement,
// so a crash never leaves a half-rotated token pair behind
func (r *GormCredentialRepository) Upsert(ctx context.Context, cred *integration.Credential) error {
	model := models.CredentialModelFromDomain(cred)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop_code"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// List returns every stored credential ordered by shop code
func (r *GormCredentialRepository) List(ctx context.Context) ([]*integration.Credential, error) {
	var rows []models.CredentialModel
	if err := r.db.WithContext(ctx).Order("shop_code").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*integration.Credential, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

package license

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

//go:generate mockgen -source=repository.go -destination=mock_repository_test.go -package=license

// Repository is the license store. It owns no business rules.
type Repository interface {
	List(ctx context.Context) ([]*License, error)
	Create(ctx context.Context, license *License) error
	// UpdateValidUntil sets valid_until on every row of clientID and reports how many rows changed.
	UpdateValidUntil(ctx context.Context, clientID string, validUntil datatypes.Date) (int64, error)
	// FindByCredentials returns the matching row with the latest valid_until,
	// or gorm.ErrRecordNotFound.
	FindByCredentials(ctx context.Context, clientID, licenseKey string) (*License, error)
	Ping(ctx context.Context) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) List(ctx context.Context) ([]*License, error) {
	var licenses []*License
	if err := r.db.WithContext(ctx).
		Order("valid_until DESC").
		Find(&licenses).Error; err != nil {
		return nil, err
	}
	return licenses, nil
}

func (r *gormRepository) Create(ctx context.Context, license *License) error {
	return r.db.WithContext(ctx).Create(license).Error
}

func (r *gormRepository) UpdateValidUntil(ctx context.Context, clientID string, validUntil datatypes.Date) (int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&License{}).
		Where("client_id = ?", clientID).
		Update("valid_until", validUntil)
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}

func (r *gormRepository) FindByCredentials(ctx context.Context, clientID, licenseKey string) (*License, error) {
	var license License
	if err := r.db.WithContext(ctx).
		Where("client_id = ? AND license_key = ?", clientID, licenseKey).
		Order("valid_until DESC").
		First(&license).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

func (r *gormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

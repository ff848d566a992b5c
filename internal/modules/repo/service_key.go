package repo

import (
	"context"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"gorm.io/gorm"
)

type ServiceKeyRepo interface {
	GetByHMAC(ctx context.Context, lookup string) (*model.ServiceKey, error)
	GetRoot(ctx context.Context) (*model.ServiceKey, error)
	Create(ctx context.Context, k *model.ServiceKey) error
	UpdateSecret(ctx context.Context, id int64, lookup, phc string) error
}

type serviceKeyRepo struct{ db *gorm.DB }

func NewServiceKeyRepo(db *gorm.DB) ServiceKeyRepo {
	return &serviceKeyRepo{db: db}
}

func (r *serviceKeyRepo) GetByHMAC(ctx context.Context, lookup string) (*model.ServiceKey, error) {
	var k model.ServiceKey
	if err := r.db.WithContext(ctx).Where(&model.ServiceKey{SecretKeyHMAC: lookup}).First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *serviceKeyRepo) GetRoot(ctx context.Context) (*model.ServiceKey, error) {
	var k model.ServiceKey
	if err := r.db.WithContext(ctx).Where("is_root = ?", true).First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *serviceKeyRepo) Create(ctx context.Context, k *model.ServiceKey) error {
	return r.db.WithContext(ctx).Create(k).Error
}

func (r *serviceKeyRepo) UpdateSecret(ctx context.Context, id int64, lookup, phc string) error {
	return r.db.WithContext(ctx).
		Model(&model.ServiceKey{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"secret_key_hmac":     lookup,
			"secret_key_hash_phc": phc,
		}).Error
}

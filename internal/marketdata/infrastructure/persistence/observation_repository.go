// Package persistence 市场数据仓储实现
package persistence

import (
	"context"

	"github.com/wyfcoding/defitreasury/internal/marketdata/domain"
	"gorm.io/gorm"
)

type GormRateRecordRepository struct {
	db *gorm.DB
}

func NewGormRateRecordRepository(db *gorm.DB) domain.RateRecordRepository {
	return &GormRateRecordRepository{db: db}
}

func (r *GormRateRecordRepository) Save(ctx context.Context, record *domain.RateRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *GormRateRecordRepository) Latest(ctx context.Context, protocol domain.Protocol, asset string) (*domain.RateRecord, error) {
	var record domain.RateRecord
	err := r.db.WithContext(ctx).
		Where("protocol = ? AND asset = ?", string(protocol), asset).
		Order("observed_at DESC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *GormRateRecordRepository) ListRecent(ctx context.Context, protocol domain.Protocol, asset string, limit int) ([]*domain.RateRecord, error) {
	var records []*domain.RateRecord
	err := r.db.WithContext(ctx).
		Where("protocol = ? AND asset = ?", string(protocol), asset).
		Order("observed_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"parcel_ship_v1_202610/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ==================== RateQuoteRepository 报价缓存仓库 ====================

// RateQuoteRepository 报价缓存仓库，同时实现 QuoteStore
type RateQuoteRepository interface {
	FindValid(ctx context.Context, orderID, signatureHash string, now time.Time) (*model.RateQuoteCache, error)
	Upsert(ctx context.Context, entry *model.RateQuoteCache) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type rateQuoteRepository struct {
	db *gorm.DB
}

// NewRateQuoteRepository 创建报价缓存仓库
func NewRateQuoteRepository(db *gorm.DB) RateQuoteRepository {
	return &rateQuoteRepository{db: db}
}

// FindValid 未过期的缓存；不存在时返回 nil, nil
func (r *rateQuoteRepository) FindValid(ctx context.Context, orderID, signatureHash string, now time.Time) (*model.RateQuoteCache, error) {
	var entry model.RateQuoteCache
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND signature_hash = ? AND expires_at > ?", orderID, signatureHash, now).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Upsert ON CONFLICT (order_id, signature_hash) 覆盖报价和过期时间
func (r *rateQuoteRepository) Upsert(ctx context.Context, entry *model.RateQuoteCache) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "signature_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"rates", "expires_at", "updated_at"}),
	}).Create(entry).Error
}

// DeleteExpired 清理过期缓存
func (r *rateQuoteRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at <= ?", before).Delete(&model.RateQuoteCache{})
	return result.RowsAffected, result.Error
}

package repository

import (
	"context"

	"parcel_ship_v1_202610/internal/model"

	"gorm.io/gorm"
)

// ==================== OrderRepository 订单仓库（只读） ====================

// OrderRepository 订单仓库接口
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*model.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

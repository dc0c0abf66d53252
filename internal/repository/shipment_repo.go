package repository

import (
	"context"
	"errors"
	"time"

	"parcel_ship_v1_202610/internal/model"

	"gorm.io/gorm"
)

// ==================== OrderShipmentRepository 包裹仓库 ====================

// ErrShipmentLocked 包裹已购买或持有未过期的购买占位
var ErrShipmentLocked = errors.New("shipment is purchased or has an active purchase claim")

// OrderShipmentRepository 包裹仓库接口
type OrderShipmentRepository interface {
	Create(ctx context.Context, shipment *model.OrderShipment) error
	GetByID(ctx context.Context, id int64) (*model.OrderShipment, error)
	GetByEasyshipShipmentID(ctx context.Context, easyshipID string) (*model.OrderShipment, error)
	ListByOrderID(ctx context.Context, orderID string) ([]model.OrderShipment, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	UpdateUnlocked(ctx context.Context, id int64, fields map[string]interface{}, staleBefore time.Time) error
	Delete(ctx context.Context, id int64, staleBefore time.Time) error
	CountPurchasedByPreset(ctx context.Context, presetID int64) (int64, error)

	// 购买占位
	ClaimPurchase(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error)
	ReleasePurchaseClaim(ctx context.Context, id int64, fields map[string]interface{}) error
	MarkLabelGenerated(ctx context.Context, id int64, fields map[string]interface{}, now time.Time) error

	// 物流通知占位
	ClaimTrackingEmail(ctx context.Context, id int64, now time.Time) (bool, error)
	ReleaseTrackingEmailClaim(ctx context.Context, id int64, claimedAt time.Time) (bool, error)

	// 批量操作
	ListRefreshCandidates(ctx context.Context, limit int) ([]model.OrderShipment, error)
}

type orderShipmentRepository struct {
	db *gorm.DB
}

// NewOrderShipmentRepository 创建包裹仓库
func NewOrderShipmentRepository(db *gorm.DB) OrderShipmentRepository {
	return &orderShipmentRepository{db: db}
}

// Create 创建包裹，parcel_index 取该订单当前最大值 + 1
func (r *orderShipmentRepository) Create(ctx context.Context, shipment *model.OrderShipment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxIndex int
		err := tx.Model(&model.OrderShipment{}).
			Where("order_id = ?", shipment.OrderID).
			Select("COALESCE(MAX(parcel_index), 0)").
			Scan(&maxIndex).Error
		if err != nil {
			return err
		}
		shipment.ParcelIndex = maxIndex + 1
		if shipment.LabelState == "" {
			shipment.LabelState = model.LabelStatePending
		}
		return tx.Create(shipment).Error
	})
}

func (r *orderShipmentRepository) GetByID(ctx context.Context, id int64) (*model.OrderShipment, error) {
	var shipment model.OrderShipment
	err := r.db.WithContext(ctx).Preload("BoxPreset").First(&shipment, id).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *orderShipmentRepository) GetByEasyshipShipmentID(ctx context.Context, easyshipID string) (*model.OrderShipment, error) {
	var shipment model.OrderShipment
	err := r.db.WithContext(ctx).
		Preload("BoxPreset").
		Where("easyship_shipment_id = ?", easyshipID).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *orderShipmentRepository) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderShipment, error) {
	var shipments []model.OrderShipment
	err := r.db.WithContext(ctx).
		Preload("BoxPreset").
		Where("order_id = ?", orderID).
		Order("parcel_index ASC").
		Find(&shipments).Error
	return shipments, err
}

func (r *orderShipmentRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.OrderShipment{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateUnlocked 仅在包裹未购买且无有效购买占位时更新
func (r *orderShipmentRepository) UpdateUnlocked(ctx context.Context, id int64, fields map[string]interface{}, staleBefore time.Time) error {
	result := unlocked(r.db.WithContext(ctx).Model(&model.OrderShipment{}).Where("id = ?", id), staleBefore).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.lockedOrMissing(ctx, id)
	}
	return nil
}

// Delete 删除未锁定的包裹并把同订单后续包裹的序号前移，保持 1..N 连续
func (r *orderShipmentRepository) Delete(ctx context.Context, id int64, staleBefore time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target model.OrderShipment
		if err := tx.First(&target, id).Error; err != nil {
			return err
		}
		result := unlocked(tx.Where("id = ?", id), staleBefore).Delete(&model.OrderShipment{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrShipmentLocked
		}

		var rest []model.OrderShipment
		err := tx.Where("order_id = ? AND parcel_index > ?", target.OrderID, target.ParcelIndex).
			Order("parcel_index ASC").
			Find(&rest).Error
		if err != nil {
			return err
		}

		// 逐行升序更新，避免唯一索引 (order_id, parcel_index) 冲突
		for _, s := range rest {
			err := tx.Model(&model.OrderShipment{}).
				Where("id = ?", s.ID).
				Update("parcel_index", s.ParcelIndex-1).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *orderShipmentRepository) CountPurchasedByPreset(ctx context.Context, presetID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.OrderShipment{}).
		Where("box_preset_id = ?", presetID).
		Where("(label_state = ? OR purchased_at IS NOT NULL)", model.LabelStateGenerated).
		Count(&count).Error
	return count, err
}

// ==================== 购买占位 ====================

// ClaimPurchase 条件写入 purchase_claimed_at，只有未购买且无有效占位时成功
func (r *orderShipmentRepository) ClaimPurchase(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error) {
	result := unlocked(r.db.WithContext(ctx).Model(&model.OrderShipment{}).Where("id = ?", id), staleBefore).
		Update("purchase_claimed_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// unlocked 未购买且购买占位为空或已过期
func unlocked(tx *gorm.DB, staleBefore time.Time) *gorm.DB {
	return tx.Where("label_state <> ? AND purchased_at IS NULL", model.LabelStateGenerated).
		Where("(purchase_claimed_at IS NULL OR purchase_claimed_at < ?)", staleBefore)
}

func (r *orderShipmentRepository) lockedOrMissing(ctx context.Context, id int64) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.OrderShipment{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrShipmentLocked
}

// ReleasePurchaseClaim 释放购买占位，同时写入失败信息等字段
func (r *orderShipmentRepository) ReleasePurchaseClaim(ctx context.Context, id int64, fields map[string]interface{}) error {
	updates := map[string]interface{}{"purchase_claimed_at": nil}
	for k, v := range fields {
		updates[k] = v
	}
	return r.db.WithContext(ctx).Model(&model.OrderShipment{}).Where("id = ?", id).Updates(updates).Error
}

// MarkLabelGenerated 写入面单结果，purchased_at 只写一次
func (r *orderShipmentRepository) MarkLabelGenerated(ctx context.Context, id int64, fields map[string]interface{}, now time.Time) error {
	updates := map[string]interface{}{
		"label_state":         model.LabelStateGenerated,
		"purchased_at":        gorm.Expr("COALESCE(purchased_at, ?)", now),
		"purchase_claimed_at": nil,
		"error_message":       "",
	}
	for k, v := range fields {
		updates[k] = v
	}
	return r.db.WithContext(ctx).Model(&model.OrderShipment{}).Where("id = ?", id).Updates(updates).Error
}

// ==================== 物流通知占位 ====================

// ClaimTrackingEmail tracking_email_sent_at 从 NULL 改为 now，返回是否抢到
func (r *orderShipmentRepository) ClaimTrackingEmail(ctx context.Context, id int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.OrderShipment{}).
		Where("id = ? AND tracking_email_sent_at IS NULL", id).
		Update("tracking_email_sent_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseTrackingEmailClaim 仅当值仍为本次写入的 claimedAt 时清空
func (r *orderShipmentRepository) ReleaseTrackingEmailClaim(ctx context.Context, id int64, claimedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.OrderShipment{}).
		Where("id = ? AND tracking_email_sent_at = ?", id, claimedAt).
		Update("tracking_email_sent_at", nil)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ==================== 批量操作 ====================

// ListRefreshCandidates 已在服务商创建但还没有运单号的包裹
func (r *orderShipmentRepository) ListRefreshCandidates(ctx context.Context, limit int) ([]model.OrderShipment, error) {
	var shipments []model.OrderShipment
	err := r.db.WithContext(ctx).
		Where("easyship_shipment_id <> ''").
		Where("tracking_number = ''").
		Where("label_state <> ?", model.LabelStateFailed).
		Where("purchase_claimed_at IS NULL").
		Order("updated_at ASC").
		Limit(limit).
		Find(&shipments).Error
	return shipments, err
}

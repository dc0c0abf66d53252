package repository

import (
	"context"
	"errors"

	"parcel_ship_v1_202610/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ==================== ShipFromSettingsRepository 发货地仓库 ====================

// ShipFromSettingsRepository 发货地仓库接口
type ShipFromSettingsRepository interface {
	Get(ctx context.Context) (*model.ShipFromSettings, error)
	Save(ctx context.Context, settings *model.ShipFromSettings) error
}

type shipFromSettingsRepository struct {
	db *gorm.DB
}

// NewShipFromSettingsRepository 创建发货地仓库
func NewShipFromSettingsRepository(db *gorm.DB) ShipFromSettingsRepository {
	return &shipFromSettingsRepository{db: db}
}

// Get 读取单例，未配置时返回空记录
func (r *shipFromSettingsRepository) Get(ctx context.Context) (*model.ShipFromSettings, error) {
	var settings model.ShipFromSettings
	err := r.db.WithContext(ctx).First(&settings, model.ShipFromSettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.ShipFromSettings{ID: model.ShipFromSettingsID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save 整体覆盖单例
func (r *shipFromSettingsRepository) Save(ctx context.Context, settings *model.ShipFromSettings) error {
	settings.ID = model.ShipFromSettingsID
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(settings).Error
}

// ==================== BoxPresetRepository 箱规仓库 ====================

// BoxPresetRepository 箱规仓库接口
type BoxPresetRepository interface {
	Create(ctx context.Context, preset *model.BoxPreset) error
	GetByID(ctx context.Context, id int64) (*model.BoxPreset, error)
	List(ctx context.Context) ([]model.BoxPreset, error)
	Update(ctx context.Context, preset *model.BoxPreset) error
	DeleteAndDetach(ctx context.Context, id int64) error
}

type boxPresetRepository struct {
	db *gorm.DB
}

// NewBoxPresetRepository 创建箱规仓库
func NewBoxPresetRepository(db *gorm.DB) BoxPresetRepository {
	return &boxPresetRepository{db: db}
}

func (r *boxPresetRepository) Create(ctx context.Context, preset *model.BoxPreset) error {
	return r.db.WithContext(ctx).Create(preset).Error
}

func (r *boxPresetRepository) GetByID(ctx context.Context, id int64) (*model.BoxPreset, error) {
	var preset model.BoxPreset
	if err := r.db.WithContext(ctx).First(&preset, id).Error; err != nil {
		return nil, err
	}
	return &preset, nil
}

func (r *boxPresetRepository) List(ctx context.Context) ([]model.BoxPreset, error) {
	var presets []model.BoxPreset
	err := r.db.WithContext(ctx).Order("name ASC").Find(&presets).Error
	return presets, err
}

func (r *boxPresetRepository) Update(ctx context.Context, preset *model.BoxPreset) error {
	return r.db.WithContext(ctx).Save(preset).Error
}

// DeleteAndDetach 删除箱规，并把引用它的未购买包裹解除关联
func (r *boxPresetRepository) DeleteAndDetach(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.OrderShipment{}).
			Where("box_preset_id = ?", id).
			Update("box_preset_id", nil).Error
		if err != nil {
			return err
		}
		result := tx.Delete(&model.BoxPreset{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

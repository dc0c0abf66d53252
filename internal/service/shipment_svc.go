package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ShipmentService 发货地、箱规、包裹的维护
type ShipmentService struct {
	shipments repository.OrderShipmentRepository
	settings  repository.ShipFromSettingsRepository
	presets   repository.BoxPresetRepository
	orders    repository.OrderRepository
	claimTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewShipmentService 创建包裹维护服务
func NewShipmentService(
	shipments repository.OrderShipmentRepository,
	settings repository.ShipFromSettingsRepository,
	presets repository.BoxPresetRepository,
	orders repository.OrderRepository,
	purchaseClaimTTL time.Duration,
	logger *zap.Logger,
) *ShipmentService {
	if purchaseClaimTTL <= 0 {
		purchaseClaimTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShipmentService{
		shipments: shipments,
		settings:  settings,
		presets:   presets,
		orders:    orders,
		claimTTL:  purchaseClaimTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// ==================== 发货地 ====================

// SettingsView 发货地 + 缺失字段
type SettingsView struct {
	Settings      *model.ShipFromSettings `json:"settings"`
	MissingFields []string                `json:"missing_fields"`
}

// GetSettings 读取发货地
func (s *ShipmentService) GetSettings(ctx context.Context) (*SettingsView, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ship-from settings: %w", err)
	}
	return &SettingsView{Settings: settings, MissingFields: nonNil(settings.MissingFields())}, nil
}

// SaveSettings 覆盖发货地；允许保存不完整的地址，报价时再校验
func (s *ShipmentService) SaveSettings(ctx context.Context, addr model.Address) (*SettingsView, error) {
	addr.CountryCode = strings.ToUpper(strings.TrimSpace(addr.CountryCode))
	settings := &model.ShipFromSettings{Address: addr}
	if err := s.settings.Save(ctx, settings); err != nil {
		return nil, fmt.Errorf("save ship-from settings: %w", err)
	}
	return s.GetSettings(ctx)
}

// ==================== 箱规 ====================

// BoxPresetInput 箱规参数
type BoxPresetInput struct {
	Name            string   `json:"name"`
	LengthIn        float64  `json:"length_in"`
	WidthIn         float64  `json:"width_in"`
	HeightIn        float64  `json:"height_in"`
	DefaultWeightLb *float64 `json:"default_weight_lb"`
}

func (in BoxPresetInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errInvalidInput("箱规名称不能为空")
	}
	if in.LengthIn <= 0 || in.WidthIn <= 0 || in.HeightIn <= 0 {
		return errInvalidInput("箱规尺寸必须大于 0")
	}
	if in.DefaultWeightLb != nil && *in.DefaultWeightLb <= 0 {
		return errInvalidInput("默认重量必须大于 0")
	}
	return nil
}

func (s *ShipmentService) ListBoxPresets(ctx context.Context) ([]model.BoxPreset, error) {
	return s.presets.List(ctx)
}

func (s *ShipmentService) CreateBoxPreset(ctx context.Context, in BoxPresetInput) (*model.BoxPreset, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	preset := &model.BoxPreset{
		Name:            strings.TrimSpace(in.Name),
		LengthIn:        in.LengthIn,
		WidthIn:         in.WidthIn,
		HeightIn:        in.HeightIn,
		DefaultWeightLb: in.DefaultWeightLb,
	}
	if err := s.presets.Create(ctx, preset); err != nil {
		return nil, fmt.Errorf("create box preset: %w", err)
	}
	return preset, nil
}

// UpdateBoxPreset 被已购买包裹引用的箱规不可修改
func (s *ShipmentService) UpdateBoxPreset(ctx context.Context, id int64, in BoxPresetInput) (*model.BoxPreset, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	preset, err := s.loadPreset(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensurePresetNotInUse(ctx, id); err != nil {
		return nil, err
	}

	preset.Name = strings.TrimSpace(in.Name)
	preset.LengthIn = in.LengthIn
	preset.WidthIn = in.WidthIn
	preset.HeightIn = in.HeightIn
	preset.DefaultWeightLb = in.DefaultWeightLb
	if err := s.presets.Update(ctx, preset); err != nil {
		return nil, fmt.Errorf("update box preset %d: %w", id, err)
	}
	return preset, nil
}

// DeleteBoxPreset 被已购买包裹引用时拒绝；只被未购买包裹引用时解除关联后删除
func (s *ShipmentService) DeleteBoxPreset(ctx context.Context, id int64) error {
	if _, err := s.loadPreset(ctx, id); err != nil {
		return err
	}
	if err := s.ensurePresetNotInUse(ctx, id); err != nil {
		return err
	}
	err := s.presets.DeleteAndDetach(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errBoxPresetNotFound(id)
	}
	if err != nil {
		return fmt.Errorf("delete box preset %d: %w", id, err)
	}
	s.logger.Info("箱规已删除", zap.Int64("box_preset_id", id))
	return nil
}

func (s *ShipmentService) loadPreset(ctx context.Context, id int64) (*model.BoxPreset, error) {
	preset, err := s.presets.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errBoxPresetNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load box preset %d: %w", id, err)
	}
	return preset, nil
}

func (s *ShipmentService) ensurePresetNotInUse(ctx context.Context, id int64) error {
	count, err := s.shipments.CountPurchasedByPreset(ctx, id)
	if err != nil {
		return fmt.Errorf("count shipments using box preset %d: %w", id, err)
	}
	if count > 0 {
		return errBoxPresetInUse(id)
	}
	return nil
}

// ==================== 包裹 ====================

// ShipmentInput 包裹尺寸：箱规与自定义尺寸二选一
type ShipmentInput struct {
	BoxPresetID *int64   `json:"box_preset_id"`
	LengthIn    *float64 `json:"length_in"`
	WidthIn     *float64 `json:"width_in"`
	HeightIn    *float64 `json:"height_in"`
	WeightLb    *float64 `json:"weight_lb"`
}

func (in ShipmentInput) hasCustomDimensions() bool {
	return in.LengthIn != nil || in.WidthIn != nil || in.HeightIn != nil
}

func (in ShipmentInput) validate() error {
	if in.BoxPresetID != nil && in.hasCustomDimensions() {
		return errInvalidInput("box_preset_id 与自定义尺寸不能同时指定")
	}
	for name, v := range map[string]*float64{
		"length_in": in.LengthIn,
		"width_in":  in.WidthIn,
		"height_in": in.HeightIn,
		"weight_lb": in.WeightLb,
	} {
		if v != nil && *v <= 0 {
			return errInvalidInput("%s 必须大于 0", name)
		}
	}
	return nil
}

func (s *ShipmentService) ListShipments(ctx context.Context, orderID string) ([]model.OrderShipment, error) {
	return s.shipments.ListByOrderID(ctx, orderID)
}

func (s *ShipmentService) GetShipment(ctx context.Context, id int64) (*model.OrderShipment, error) {
	shipment, err := s.shipments.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errShipmentNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load shipment %d: %w", id, err)
	}
	return shipment, nil
}

// CreateShipment 为订单新增包裹，序号为当前最大值 + 1
func (s *ShipmentService) CreateShipment(ctx context.Context, orderID string, in ShipmentInput) (*model.OrderShipment, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, errInvalidInput("order_id 不能为空")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidInput("订单不存在: %s", orderID)
		}
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if in.BoxPresetID != nil {
		if _, err := s.loadPreset(ctx, *in.BoxPresetID); err != nil {
			return nil, err
		}
	}

	shipment := &model.OrderShipment{
		OrderID:     orderID,
		BoxPresetID: in.BoxPresetID,
		LengthIn:    in.LengthIn,
		WidthIn:     in.WidthIn,
		HeightIn:    in.HeightIn,
		WeightLb:    in.WeightLb,
		LabelState:  model.LabelStatePending,
	}
	if err := s.shipments.Create(ctx, shipment); err != nil {
		return nil, fmt.Errorf("create shipment for order %s: %w", orderID, err)
	}
	return s.GetShipment(ctx, shipment.ID)
}

// UpdateShipment 整体替换尺寸来源；已购买或购买中的包裹不可修改
func (s *ShipmentService) UpdateShipment(ctx context.Context, id int64, in ShipmentInput) (*model.OrderShipment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	shipment, err := s.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipment.IsPurchased() {
		return nil, errAlreadyPurchased(id)
	}
	if in.BoxPresetID != nil {
		if _, err := s.loadPreset(ctx, *in.BoxPresetID); err != nil {
			return nil, err
		}
	}

	fields := map[string]interface{}{
		"box_preset_id": in.BoxPresetID,
		"length_in":     in.LengthIn,
		"width_in":      in.WidthIn,
		"height_in":     in.HeightIn,
		"weight_lb":     in.WeightLb,
	}
	if err := s.shipments.UpdateUnlocked(ctx, id, fields, s.staleBefore()); err != nil {
		return nil, s.lockedError(ctx, id, err, "update")
	}
	return s.GetShipment(ctx, id)
}

// DeleteShipment 已购买或购买中的包裹不可删除，删除后同订单包裹序号重排
func (s *ShipmentService) DeleteShipment(ctx context.Context, id int64) error {
	shipment, err := s.GetShipment(ctx, id)
	if err != nil {
		return err
	}
	if shipment.IsPurchased() {
		return errAlreadyPurchased(id)
	}
	if err := s.shipments.Delete(ctx, id, s.staleBefore()); err != nil {
		return s.lockedError(ctx, id, err, "delete")
	}
	return nil
}

func (s *ShipmentService) staleBefore() time.Time {
	return s.now().UTC().Add(-s.claimTTL)
}

// lockedError 条件写入未命中时区分已删除、已购买和购买中
func (s *ShipmentService) lockedError(ctx context.Context, id int64, err error, op string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errShipmentNotFound(id)
	case errors.Is(err, repository.ErrShipmentLocked):
		current, getErr := s.GetShipment(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current.IsPurchased() {
			return errAlreadyPurchased(id)
		}
		return errPurchaseInProgress(id)
	default:
		return fmt.Errorf("%s shipment %d: %w", op, id, err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

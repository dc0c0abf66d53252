package model

import (
	"time"

	"gorm.io/datatypes"
)

// ==================== OrderShipment 订单包裹 ====================

// LabelState 面单状态
const (
	LabelStatePending   = "pending"   // 待购买
	LabelStateGenerated = "generated" // 已生成
	LabelStateFailed    = "failed"    // 失败（可重试）
)

// OrderShipment 订单下的一个包裹
type OrderShipment struct {
	BaseModel
	OrderID     string `gorm:"size:64;not null;uniqueIndex:idx_order_parcel,priority:1" json:"order_id"`
	ParcelIndex int    `gorm:"not null;uniqueIndex:idx_order_parcel,priority:2" json:"parcel_index"` // 1..N

	// 尺寸：箱规预设与自定义尺寸二选一
	BoxPresetID *int64     `gorm:"index" json:"box_preset_id"`
	BoxPreset   *BoxPreset `gorm:"foreignKey:BoxPresetID" json:"box_preset,omitempty"`
	LengthIn    *float64   `json:"length_in"`
	WidthIn     *float64   `json:"width_in"`
	HeightIn    *float64   `json:"height_in"`
	WeightLb    *float64   `json:"weight_lb"`

	// 服务商信息
	EasyshipShipmentID string `gorm:"size:64;index" json:"easyship_shipment_id"`
	ProviderSignature  string `gorm:"size:64" json:"-"` // 创建服务商运单时请求内容的哈希
	EasyshipLabelID    string `gorm:"size:64" json:"easyship_label_id"`
	Carrier            string `gorm:"size:128" json:"carrier"`
	Service            string `gorm:"size:255" json:"service"`
	TrackingNumber     string `gorm:"size:128;index" json:"tracking_number"`
	LabelURL           string `gorm:"size:1024" json:"label_url"`

	LabelCostAmountCents *int64 `json:"label_cost_amount_cents"`
	LabelCurrency        string `gorm:"size:3" json:"label_currency"`

	// 状态
	LabelState      string `gorm:"size:16;index;not null;default:pending" json:"label_state"`
	QuoteSelectedID string `gorm:"size:128" json:"quote_selected_id"`
	ErrorMessage    string `gorm:"type:text" json:"error_message"`

	// 条件写入列
	PurchaseClaimedAt   *time.Time `json:"-"`
	PurchasedAt         *time.Time `json:"purchased_at"`
	TrackingEmailSentAt *time.Time `json:"tracking_email_sent_at"`

	// 服务商最近一次响应（排查用）
	LastProviderPayload datatypes.JSON `gorm:"type:jsonb" json:"-"`
}

func (*OrderShipment) TableName() string {
	return "order_shipments"
}

// IsPurchased 已购买后尺寸与预设不可再修改
func (s *OrderShipment) IsPurchased() bool {
	return s.LabelState == LabelStateGenerated || s.PurchasedAt != nil
}

// HasCustomDimensions 是否填写了任意一个自定义尺寸
func (s *OrderShipment) HasCustomDimensions() bool {
	return s.LengthIn != nil || s.WidthIn != nil || s.HeightIn != nil
}

// ParcelDimensions 解析后的有效尺寸
type ParcelDimensions struct {
	LengthIn float64 `json:"length_in"`
	WidthIn  float64 `json:"width_in"`
	HeightIn float64 `json:"height_in"`
	WeightLb float64 `json:"weight_lb"`
}

// EffectiveDimensions 自定义尺寸优先，否则取箱规预设；返回缺失字段列表
// 调用前需预加载 BoxPreset
func (s *OrderShipment) EffectiveDimensions() (ParcelDimensions, []string) {
	var dims ParcelDimensions
	var missing []string

	positive := func(field string, v *float64, dst *float64) {
		if v == nil || *v <= 0 {
			missing = append(missing, field)
			return
		}
		*dst = *v
	}

	switch {
	case s.HasCustomDimensions():
		positive("length_in", s.LengthIn, &dims.LengthIn)
		positive("width_in", s.WidthIn, &dims.WidthIn)
		positive("height_in", s.HeightIn, &dims.HeightIn)
	case s.BoxPreset != nil:
		positive("length_in", &s.BoxPreset.LengthIn, &dims.LengthIn)
		positive("width_in", &s.BoxPreset.WidthIn, &dims.WidthIn)
		positive("height_in", &s.BoxPreset.HeightIn, &dims.HeightIn)
	default:
		missing = append(missing, "length_in", "width_in", "height_in")
	}

	weight := s.WeightLb
	if weight == nil && s.BoxPreset != nil && !s.HasCustomDimensions() {
		weight = s.BoxPreset.DefaultWeightLb
	}
	positive("weight_lb", weight, &dims.WeightLb)

	return dims, missing
}

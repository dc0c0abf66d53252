package model

import (
	"strings"
	"time"
)

// ==================== Address 地址 ====================

// Address 联系人 + 邮寄地址，作为嵌入字段复用
type Address struct {
	Name        string `gorm:"size:255" json:"name"`
	Company     string `gorm:"size:255" json:"company"`
	Street1     string `gorm:"size:255" json:"street1"`
	Street2     string `gorm:"size:255" json:"street2"`
	City        string `gorm:"size:128" json:"city"`
	State       string `gorm:"size:64" json:"state"`
	PostalCode  string `gorm:"size:32" json:"postal_code"`
	CountryCode string `gorm:"size:2" json:"country_code"` // ISO 3166-1 alpha-2
	Phone       string `gorm:"size:64" json:"phone"`
	Email       string `gorm:"size:255" json:"email"`
}

// stateRequired 需要州/省字段的国家
var stateRequired = map[string]bool{"US": true, "CA": true, "AU": true}

// MissingDestinationFields 收件地址缺失字段（不含电话）
func (a Address) MissingDestinationFields() []string {
	var missing []string
	check := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	check("name", a.Name)
	check("street1", a.Street1)
	check("city", a.City)
	check("postal_code", a.PostalCode)
	check("country_code", a.CountryCode)
	if stateRequired[strings.ToUpper(strings.TrimSpace(a.CountryCode))] {
		check("state", a.State)
	}
	return missing
}

// HasPhone 是否填写了电话
func (a Address) HasPhone() bool {
	return strings.TrimSpace(a.Phone) != ""
}

// ==================== ShipFromSettings 发货地址 ====================

// ShipFromSettingsID 单例记录主键
const ShipFromSettingsID = 1

// ShipFromSettings 发货地（单例）
type ShipFromSettings struct {
	ID        int64 `gorm:"primaryKey" json:"id"`
	Address   `gorm:"embedded"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*ShipFromSettings) TableName() string {
	return "ship_from_settings"
}

// MissingFields 报价/购买前必须填写的字段
func (s *ShipFromSettings) MissingFields() []string {
	if s == nil {
		return []string{"name", "street1", "city", "state", "postal_code", "country_code", "phone"}
	}
	var missing []string
	required := []struct {
		field string
		value string
	}{
		{"name", s.Name},
		{"street1", s.Street1},
		{"city", s.City},
		{"state", s.State},
		{"postal_code", s.PostalCode},
		{"country_code", s.CountryCode},
		{"phone", s.Phone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.field)
		}
	}
	return missing
}

// ==================== BoxPreset 箱规预设 ====================

// BoxPreset 常用包装箱尺寸（英寸/磅）
type BoxPreset struct {
	BaseModel
	Name            string   `gorm:"size:128;not null" json:"name"`
	LengthIn        float64  `gorm:"not null" json:"length_in"`
	WidthIn         float64  `gorm:"not null" json:"width_in"`
	HeightIn        float64  `gorm:"not null" json:"height_in"`
	DefaultWeightLb *float64 `json:"default_weight_lb"`
}

func (*BoxPreset) TableName() string {
	return "box_presets"
}

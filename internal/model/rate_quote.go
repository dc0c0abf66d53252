package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ==================== NormalizedRate 标准化报价 ====================

// NormalizedRate 服务商报价的统一结构
type NormalizedRate struct {
	ID          string          `json:"id"`
	Carrier     string          `json:"carrier"`
	Service     string          `json:"service"`
	AmountCents int64           `json:"amount_cents"`
	Currency    string          `json:"currency"`
	EtaDaysMin  *int            `json:"eta_days_min"`
	EtaDaysMax  *int            `json:"eta_days_max"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// ==================== RateQuoteCache 报价缓存 ====================

// RateQuoteCache 按 (order_id, signature_hash) 缓存的报价列表
type RateQuoteCache struct {
	BaseModel
	OrderID       string         `gorm:"size:64;not null;uniqueIndex:idx_quote_signature,priority:1"`
	SignatureHash string         `gorm:"size:64;not null;uniqueIndex:idx_quote_signature,priority:2"`
	Rates         datatypes.JSON `gorm:"type:jsonb"`
	ExpiresAt     time.Time      `gorm:"index;not null"`
}

func (*RateQuoteCache) TableName() string {
	return "rate_quote_cache"
}

// DecodeRates 解析缓存中的报价列表
func (c *RateQuoteCache) DecodeRates() ([]NormalizedRate, error) {
	var rates []NormalizedRate
	if len(c.Rates) == 0 {
		return rates, nil
	}
	if err := json.Unmarshal(c.Rates, &rates); err != nil {
		return nil, err
	}
	return rates, nil
}

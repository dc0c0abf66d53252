package dto

// ==================== 请求 DTO ====================

// AddressReq 地址（发货地）
type AddressReq struct {
	Name        string `json:"name"`
	Company     string `json:"company"`
	Street1     string `json:"street1"`
	Street2     string `json:"street2"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// BoxPresetReq 创建/更新箱规
type BoxPresetReq struct {
	Name            string   `json:"name" binding:"required"`
	LengthIn        float64  `json:"length_in" binding:"required"`
	WidthIn         float64  `json:"width_in" binding:"required"`
	HeightIn        float64  `json:"height_in" binding:"required"`
	DefaultWeightLb *float64 `json:"default_weight_lb"`
}

// ShipmentReq 创建/更新包裹，box_preset_id 与自定义尺寸二选一
type ShipmentReq struct {
	BoxPresetID *int64   `json:"box_preset_id"`
	LengthIn    *float64 `json:"length_in"`
	WidthIn     *float64 `json:"width_in"`
	HeightIn    *float64 `json:"height_in"`
	WeightLb    *float64 `json:"weight_lb"`
}

// QuoteReq 获取报价
type QuoteReq struct {
	QuoteSelectedID string `json:"quote_selected_id"`
}

// BuyReq 购买面单
type BuyReq struct {
	QuoteSelectedID string `json:"quote_selected_id"`
	Refresh         bool   `json:"refresh"` // 只刷新状态，不重新购买
}

// ==================== 响应 DTO ====================

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Detail        string   `json:"detail,omitempty"`
}

// DataResponse 成功响应
type DataResponse struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
}

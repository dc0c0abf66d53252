package easyship

import "math"

// ==========================================
// 请求体：报价使用 cm/kg，创建运单使用 in/lb
// ==========================================

// Address 地址
type Address struct {
	Line1         string `json:"line_1"`
	Line2         string `json:"line_2,omitempty"`
	City          string `json:"city"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postal_code"`
	CountryAlpha2 string `json:"country_alpha2"`
	ContactName   string `json:"contact_name"`
	CompanyName   string `json:"company_name,omitempty"`
	ContactPhone  string `json:"contact_phone,omitempty"`
	ContactEmail  string `json:"contact_email,omitempty"`
}

// Box 箱子尺寸
type Box struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Item 申报物品
type Item struct {
	Description          string  `json:"description"`
	Category             string  `json:"category"`
	Quantity             int     `json:"quantity"`
	ActualWeight         float64 `json:"actual_weight"`
	DeclaredCurrency     string  `json:"declared_currency"`
	DeclaredCustomsValue float64 `json:"declared_customs_value"`
}

// Parcel 包裹
type Parcel struct {
	Box               Box     `json:"box"`
	TotalActualWeight float64 `json:"total_actual_weight"`
	Items             []Item  `json:"items"`
}

// Units 计量单位
type Units struct {
	Weight     string `json:"weight"`
	Dimensions string `json:"dimensions"`
}

// RateRequest POST /rates
type RateRequest struct {
	OriginAddress      Address  `json:"origin_address"`
	DestinationAddress Address  `json:"destination_address"`
	Parcels            []Parcel `json:"parcels"`
}

// CourierSelection 指定物流方案
type CourierSelection struct {
	SelectedCourierID    string `json:"selected_courier_id,omitempty"`
	AllowCourierFallback bool   `json:"allow_courier_fallback"`
}

// ShippingSettings 创建运单选项
type ShippingSettings struct {
	Units    Units `json:"units"`
	BuyLabel bool  `json:"buy_label"`
}

// OrderData 平台订单信息
type OrderData struct {
	PlatformOrderNumber string `json:"platform_order_number,omitempty"`
}

// CreateShipmentRequest POST /shipments
type CreateShipmentRequest struct {
	OriginAddress      Address          `json:"origin_address"`
	DestinationAddress Address          `json:"destination_address"`
	Parcels            []Parcel         `json:"parcels"`
	CourierSelection   CourierSelection `json:"courier_selection"`
	ShippingSettings   ShippingSettings `json:"shipping_settings"`
	OrderData          *OrderData       `json:"order_data,omitempty"`
}

// ==========================================
// 单位换算与物品分摊
// ==========================================

const (
	cmPerInch = 2.54
	kgPerLb   = 0.45359237
)

// InchesToCm 英寸转厘米，保留两位小数
func InchesToCm(in float64) float64 { return round(in*cmPerInch, 2) }

// PoundsToKg 磅转千克，保留三位小数
func PoundsToKg(lb float64) float64 { return round(lb*kgPerLb, 3) }

// ItemLine 订单明细（数量 + 单价）
type ItemLine struct {
	Description string
	Quantity    int
	UnitValue   float64 // 申报单价，币种见 currency
}

// minDomesticValue 国内件申报价值下限（1 分）
const minDomesticValue = 0.01

// BuildItems 生成 items 数组：总重按件数平均分摊，国内件申报价值至少 1 分
func BuildItems(lines []ItemLine, totalWeight float64, category, currency string, domestic bool) []Item {
	if len(lines) == 0 {
		lines = []ItemLine{{Description: "Merchandise", Quantity: 1}}
	}

	totalQty := 0
	for _, l := range lines {
		totalQty += max(l.Quantity, 1)
	}
	perUnit := round(totalWeight/float64(totalQty), 3)

	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		value := round(l.UnitValue, 2)
		if domestic && value < minDomesticValue {
			value = minDomesticValue
		}
		desc := l.Description
		if desc == "" {
			desc = "Merchandise"
		}
		items = append(items, Item{
			Description:          desc,
			Category:             category,
			Quantity:             max(l.Quantity, 1),
			ActualWeight:         perUnit,
			DeclaredCurrency:     currency,
			DeclaredCustomsValue: value,
		})
	}
	return items
}

// NewRateParcel 报价用包裹（cm/kg）
func NewRateParcel(lengthIn, widthIn, heightIn, weightLb float64, lines []ItemLine, category, currency string, domestic bool) Parcel {
	weightKg := PoundsToKg(weightLb)
	return Parcel{
		Box: Box{
			Length: InchesToCm(lengthIn),
			Width:  InchesToCm(widthIn),
			Height: InchesToCm(heightIn),
		},
		TotalActualWeight: weightKg,
		Items:             BuildItems(lines, weightKg, category, currency, domestic),
	}
}

// NewShipmentParcel 创建运单用包裹（in/lb，需配合 ImperialUnits）
func NewShipmentParcel(lengthIn, widthIn, heightIn, weightLb float64, lines []ItemLine, category, currency string, domestic bool) Parcel {
	return Parcel{
		Box:               Box{Length: lengthIn, Width: widthIn, Height: heightIn},
		TotalActualWeight: weightLb,
		Items:             BuildItems(lines, weightLb, category, currency, domestic),
	}
}

// ImperialUnits 创建运单时声明的单位
var ImperialUnits = Units{Weight: "lb", Dimensions: "in"}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/pkg/easyship"
)

// ==================== 字段提取表 ====================

// fieldExtractor 候选路径 + 转换，按顺序取第一个有值的
type fieldExtractor struct {
	path      string
	transform func(v any) (any, bool)
}

func toString(v any) (any, bool) { return easyship.AsString(v) }

func toFloat(v any) (any, bool) { return easyship.AsFloat(v) }

func toDays(v any) (any, bool) {
	f, ok := easyship.AsFloat(v)
	if !ok || f < 0 {
		return nil, false
	}
	return int(math.Round(f)), true
}

func toCurrency(v any) (any, bool) {
	s, ok := easyship.AsString(v)
	if !ok || len(s) != 3 {
		return nil, false
	}
	return strings.ToUpper(s), true
}

// rateListPaths 报价列表可能的位置
var rateListPaths = []string{"rates", "couriers", "data.rates", "data.couriers"}

var (
	rateIDFields = []fieldExtractor{
		{"id", toString},
		{"rate_id", toString},
		{"courier_service.id", toString},
		{"courier_id", toString},
		{"courier_service_id", toString},
	}
	rateCarrierFields = []fieldExtractor{
		{"courier_name", toString},
		{"carrier", toString},
		{"courier_service.courier.name", toString},
		{"courier_service.umbrella_name", toString},
		{"courier.name", toString},
		{"carrier_name", toString},
		{"umbrella_name", toString},
	}
	rateServiceFields = []fieldExtractor{
		{"service", toString},
		{"service_name", toString},
		{"courier_service.name", toString},
		{"full_description", toString},
		{"courier_service.full_description", toString},
		{"service_level", toString},
	}
	rateAmountFields = []fieldExtractor{
		{"total_charge", toFloat},
		{"total_charge.amount", toFloat},
		{"shipment_charge_total", toFloat},
		{"rates_in_origin_currency.total_charge", toFloat},
		{"amount", toFloat},
		{"price", toFloat},
		{"rate", toFloat},
	}
	rateCurrencyFields = []fieldExtractor{
		{"currency", toCurrency},
		{"total_charge.currency", toCurrency},
		{"currency_code", toCurrency},
		{"rates_in_origin_currency.currency", toCurrency},
	}
	rateEtaMinFields = []fieldExtractor{
		{"min_delivery_time", toDays},
		{"delivery_days_min", toDays},
		{"eta_days_min", toDays},
		{"estimated_days_min", toDays},
		{"transit_days", toDays},
	}
	rateEtaMaxFields = []fieldExtractor{
		{"max_delivery_time", toDays},
		{"delivery_days_max", toDays},
		{"eta_days_max", toDays},
		{"estimated_days_max", toDays},
		{"transit_days", toDays},
	}
)

func resolve(entry any, fields []fieldExtractor) (any, bool) {
	for _, f := range fields {
		raw, ok := easyship.Lookup(entry, f.path)
		if !ok {
			continue
		}
		if v, ok := f.transform(raw); ok {
			return v, true
		}
	}
	return nil, false
}

func resolveString(entry any, fields []fieldExtractor) string {
	if v, ok := resolve(entry, fields); ok {
		return v.(string)
	}
	return ""
}

func resolveDays(entry any, fields []fieldExtractor) *int {
	if v, ok := resolve(entry, fields); ok {
		days := v.(int)
		return &days
	}
	return nil
}

// ==================== RateNormalizer 报价标准化 ====================

// RateNormalizer 把服务商返回的任意结构转换为 NormalizedRate 列表
type RateNormalizer struct {
	defaultCurrency string
}

// NewRateNormalizer 创建标准化器，币种缺失时使用 defaultCurrency
func NewRateNormalizer(defaultCurrency string) *RateNormalizer {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &RateNormalizer{defaultCurrency: strings.ToUpper(defaultCurrency)}
}

// Normalize 不会失败：无法识别的结构返回空列表，无法解析的数值记为 0
func (n *RateNormalizer) Normalize(doc any) []model.NormalizedRate {
	entries := locateRateEntries(doc)
	rates := make([]model.NormalizedRate, 0, len(entries))
	for _, entry := range entries {
		rates = append(rates, n.normalizeEntry(entry))
	}
	return rates
}

// locateRateEntries 顶层数组或候选路径下第一个非空数组
func locateRateEntries(doc any) []any {
	if list, ok := doc.([]any); ok {
		return list
	}
	for _, p := range rateListPaths {
		v, ok := easyship.Lookup(doc, p)
		if !ok {
			continue
		}
		if list, ok := v.([]any); ok && len(list) > 0 {
			return list
		}
	}
	return nil
}

func (n *RateNormalizer) normalizeEntry(entry any) model.NormalizedRate {
	rate := model.NormalizedRate{
		ID:         resolveString(entry, rateIDFields),
		Carrier:    resolveString(entry, rateCarrierFields),
		Service:    resolveString(entry, rateServiceFields),
		Currency:   resolveString(entry, rateCurrencyFields),
		EtaDaysMin: resolveDays(entry, rateEtaMinFields),
		EtaDaysMax: resolveDays(entry, rateEtaMaxFields),
	}

	if v, ok := resolve(entry, rateAmountFields); ok {
		rate.AmountCents = int64(math.Round(v.(float64) * 100))
	}
	if rate.Currency == "" {
		rate.Currency = n.defaultCurrency
	}
	if rate.ID == "" {
		rate.ID = syntheticRateID(rate.Carrier, rate.Service, rate.AmountCents)
	}
	if raw, err := json.Marshal(entry); err == nil {
		rate.Raw = raw
	}
	return rate
}

// syntheticRateID 由 (carrier, service, amount) 计算的稳定 ID
func syntheticRateID(carrier, service string, amountCents int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", carrier, service, amountCents)))
	return "rate_" + hex.EncodeToString(sum[:8])
}

package service

import (
	"math"
	"strings"
)

// labelResult 从服务商运单/面单响应中提取的字段
type labelResult struct {
	EasyshipShipmentID string
	LabelID            string
	Carrier            string
	Service            string
	TrackingNumber     string
	LabelURL           string
	Currency           string
	LabelState         string
	AmountCents        *int64
}

var (
	labelShipmentIDFields = []fieldExtractor{
		{"shipment.easyship_shipment_id", toString},
		{"easyship_shipment_id", toString},
		{"shipment.id", toString},
		{"data.easyship_shipment_id", toString},
		{"id", toString},
	}
	labelIDFields = []fieldExtractor{
		{"shipment.label.id", toString},
		{"label.id", toString},
		{"shipment.label_id", toString},
		{"label_id", toString},
		{"shipment.shipping_documents.0.id", toString},
	}
	labelCarrierFields = []fieldExtractor{
		{"shipment.courier.umbrella_name", toString},
		{"shipment.courier_service.umbrella_name", toString},
		{"shipment.courier.name", toString},
		{"shipment.courier_name", toString},
		{"courier.umbrella_name", toString},
		{"courier.name", toString},
		{"courier_name", toString},
		{"carrier", toString},
	}
	labelServiceFields = []fieldExtractor{
		{"shipment.courier_service.name", toString},
		{"shipment.courier.name", toString},
		{"shipment.service", toString},
		{"courier_service.name", toString},
		{"service", toString},
	}
	labelTrackingFields = []fieldExtractor{
		{"shipment.tracking_number", toString},
		{"shipment.trackings.0.tracking_number", toString},
		{"tracking_number", toString},
		{"trackings.0.tracking_number", toString},
	}
	labelURLFields = []fieldExtractor{
		{"shipment.label.url", toString},
		{"label.url", toString},
		{"shipment.label_url", toString},
		{"label_url", toString},
		{"shipment.shipping_documents.0.url", toString},
		{"shipping_documents.0.url", toString},
	}
	labelAmountFields = []fieldExtractor{
		{"shipment.total_charge", toFloat},
		{"shipment.rates.0.total_charge", toFloat},
		{"total_charge", toFloat},
		{"shipment.label.cost", toFloat},
	}
	labelCurrencyFields = []fieldExtractor{
		{"shipment.currency", toCurrency},
		{"shipment.rates.0.currency", toCurrency},
		{"currency", toCurrency},
	}
	labelStateFields = []fieldExtractor{
		{"shipment.label_state", toString},
		{"label_state", toString},
		{"shipment.label.state", toString},
	}
)

// generatedLabelStates 服务商表示面单已生成的状态
var generatedLabelStates = map[string]bool{
	"generated": true,
	"printed":   true,
	"purchased": true,
}

func parseLabelResult(doc any) labelResult {
	res := labelResult{
		EasyshipShipmentID: resolveString(doc, labelShipmentIDFields),
		LabelID:            resolveString(doc, labelIDFields),
		Carrier:            resolveString(doc, labelCarrierFields),
		Service:            resolveString(doc, labelServiceFields),
		TrackingNumber:     resolveString(doc, labelTrackingFields),
		LabelURL:           resolveString(doc, labelURLFields),
		Currency:           resolveString(doc, labelCurrencyFields),
		LabelState:         strings.ToLower(resolveString(doc, labelStateFields)),
	}
	if v, ok := resolve(doc, labelAmountFields); ok {
		cents := int64(math.Round(v.(float64) * 100))
		res.AmountCents = &cents
	}
	return res
}

// HasLabel 面单是否已在服务商侧生成
func (r labelResult) HasLabel() bool {
	return r.TrackingNumber != "" || r.LabelURL != "" || r.LabelID != "" || generatedLabelStates[r.LabelState]
}

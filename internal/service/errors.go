package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ==================== 错误码 ====================

// 业务错误码，接口响应中的 code 字段
const (
	CodeShipFromIncomplete       = "SHIP_FROM_INCOMPLETE"
	CodeDestinationIncomplete    = "DESTINATION_INCOMPLETE"
	CodeParcelIncomplete         = "PARCEL_INCOMPLETE"
	CodeDestinationPhoneRequired = "DESTINATION_PHONE_REQUIRED"
	CodeNoRates                  = "NO_RATES"
	CodeNoQuotes                 = "NO_QUOTES"
	CodeQuoteNotFound            = "QUOTE_NOT_FOUND"
	CodeShipmentAlreadyPurchased = "SHIPMENT_ALREADY_PURCHASED"
	CodeMissingEasyshipShipment  = "MISSING_EASYSHIP_SHIPMENT"
	CodeShipmentNotFound         = "SHIPMENT_NOT_FOUND"
	CodeBoxPresetNotFound        = "BOX_PRESET_NOT_FOUND"
	CodeBoxPresetInUse           = "BOX_PRESET_IN_USE"
	CodePurchaseInProgress       = "PURCHASE_IN_PROGRESS"
	CodeInvalidInput             = "INVALID_INPUT"
	CodeUpstreamError            = "UPSTREAM_ERROR"
	CodeLabelPurchaseFailed      = "LABEL_PURCHASE_FAILED"
	CodeInternalError            = "INTERNAL_ERROR"
)

// ShippingError 带错误码和 HTTP 状态的业务错误
type ShippingError struct {
	Code    string
	Message string
	Status  int
	Missing []string // 缺失字段（校验类错误）
	Err     error
}

func (e *ShippingError) Error() string {
	msg := e.Code + ": " + e.Message
	if len(e.Missing) > 0 {
		msg += " (" + strings.Join(e.Missing, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ShippingError) Unwrap() error {
	return e.Err
}

// IsCode 判断错误链中是否包含指定错误码
func IsCode(err error, code string) bool {
	var se *ShippingError
	return errors.As(err, &se) && se.Code == code
}

func newError(code string, status int, format string, args ...any) *ShippingError {
	return &ShippingError{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

// ==================== 构造函数 ====================

func errShipFromIncomplete(missing []string) *ShippingError {
	e := newError(CodeShipFromIncomplete, http.StatusUnprocessableEntity, "发货地址不完整")
	e.Missing = missing
	return e
}

func errDestinationIncomplete(missing []string) *ShippingError {
	e := newError(CodeDestinationIncomplete, http.StatusUnprocessableEntity, "收件地址不完整")
	e.Missing = missing
	return e
}

func errParcelIncomplete(missing []string) *ShippingError {
	e := newError(CodeParcelIncomplete, http.StatusUnprocessableEntity, "包裹尺寸或重量不完整")
	e.Missing = missing
	return e
}

func errDestinationPhoneRequired() *ShippingError {
	e := newError(CodeDestinationPhoneRequired, http.StatusUnprocessableEntity, "物流商要求收件人电话")
	e.Missing = []string{"phone"}
	return e
}

func errNoRates() *ShippingError {
	return newError(CodeNoRates, http.StatusUnprocessableEntity, "服务商未返回可用报价")
}

func errNoQuotes(allowed []string) *ShippingError {
	return newError(CodeNoQuotes, http.StatusUnprocessableEntity, "没有符合允许物流商的报价: %s", strings.Join(allowed, ", "))
}

func errQuoteNotFound(id string) *ShippingError {
	return newError(CodeQuoteNotFound, http.StatusNotFound, "报价不存在或已过期: %s", id)
}

func errAlreadyPurchased(id int64) *ShippingError {
	return newError(CodeShipmentAlreadyPurchased, http.StatusConflict, "包裹 %d 已购买面单", id)
}

func errMissingEasyshipShipment(id int64) *ShippingError {
	return newError(CodeMissingEasyshipShipment, http.StatusConflict, "包裹 %d 尚未在服务商创建运单", id)
}

func errShipmentNotFound(id int64) *ShippingError {
	return newError(CodeShipmentNotFound, http.StatusNotFound, "包裹不存在: %d", id)
}

func errBoxPresetNotFound(id int64) *ShippingError {
	return newError(CodeBoxPresetNotFound, http.StatusNotFound, "箱规不存在: %d", id)
}

func errBoxPresetInUse(id int64) *ShippingError {
	return newError(CodeBoxPresetInUse, http.StatusConflict, "箱规 %d 已被已购买的包裹使用", id)
}

func errPurchaseInProgress(id int64) *ShippingError {
	return newError(CodePurchaseInProgress, http.StatusConflict, "包裹 %d 正在购买面单", id)
}

func errInvalidInput(format string, args ...any) *ShippingError {
	return newError(CodeInvalidInput, http.StatusBadRequest, format, args...)
}

func errUpstream(err error, format string, args ...any) *ShippingError {
	e := newError(CodeUpstreamError, http.StatusInternalServerError, format, args...)
	e.Err = err
	return e
}

func errLabelPurchaseFailed(err error, easyshipID string) *ShippingError {
	e := newError(CodeLabelPurchaseFailed, http.StatusInternalServerError, "运单 %s 已创建但面单购买失败，可稍后刷新", easyshipID)
	e.Err = err
	return e
}

package easyship

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrNoShippingSolutions 服务商明确返回“无可用物流方案”，按空结果处理
var ErrNoShippingSolutions = errors.New("no shipping solutions available")

// ErrMalformedResponse 响应体不是合法 JSON
var ErrMalformedResponse = errors.New("easyship 响应格式错误")

const noSolutionsMarker = "no shipping solutions"

// APIError 服务商返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Easyship API 错误 [%d]: %s", e.StatusCode, e.Message)
}

// IsClientError 4xx 视为请求内容问题
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsNoShippingSolutions 是否为“无可用物流方案”业务错误
func (e *APIError) IsNoShippingSolutions() bool {
	return containsNoSolutions(e.Message) || containsNoSolutions(e.Body)
}

// errorMessagePaths 错误信息可能出现的位置
var errorMessagePaths = []string{
	"error.message",
	"error.details.0",
	"errors.0.message",
	"errors.0",
	"message",
	"error",
}

func newAPIError(status int, body []byte, doc any) *APIError {
	msg := FirstString(doc, errorMessagePaths...)
	if msg == "" {
		msg = truncateUTF8(strings.TrimSpace(string(body)), maxErrorMessageBytes)
	}
	return &APIError{StatusCode: status, Message: msg, Body: string(body)}
}

const maxErrorMessageBytes = 300

// truncateUTF8 截断到不超过 n 字节，不拆开多字节字符
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func containsNoSolutions(s string) bool {
	return strings.Contains(strings.ToLower(s), noSolutionsMarker)
}

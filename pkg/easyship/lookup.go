package easyship

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Lookup 按点分路径读取解码后的 JSON，数字段表示数组下标，例如 "data.rates.0.courier.name"
func Lookup(doc any, path string) (any, bool) {
	if path == "" {
		return doc, doc != nil
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// AsString 字符串或数字转字符串，空串视为无值
func AsString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case json.Number:
		return val.String(), true
	case bool:
		return "", false
	}
	return "", false
}

// maxAmount 换算成分后仍在 int64 范围内的上限
const maxAmount = math.MaxInt64 / 100

// AsFloat 数字或数字字符串（允许货币符号和千分位）；NaN、Inf 和超出金额范围的值视为无值
func AsFloat(v any) (float64, bool) {
	f, ok := parseFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxAmount {
		return 0, false
	}
	return f, true
}

func parseFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(val)
		s = strings.TrimLeft(s, "$€£¥")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// FirstString 依次尝试路径，返回第一个非空字符串
func FirstString(doc any, paths ...string) string {
	for _, p := range paths {
		if v, ok := Lookup(doc, p); ok {
			if s, ok := AsString(v); ok {
				return s
			}
		}
	}
	return ""
}

// FirstFloat 依次尝试路径，返回第一个可解析的数字
func FirstFloat(doc any, paths ...string) (float64, bool) {
	for _, p := range paths {
		if v, ok := Lookup(doc, p); ok {
			if f, ok := AsFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

package service

import (
	"sort"
	"strings"

	"parcel_ship_v1_202610/internal/model"
)

// carrierAliases 多词别名折叠（按去空格后的大写形式匹配）
var carrierAliases = []struct {
	from string
	to   string
}{
	{"UNITEDSTATESPOSTALSERVICE", "USPS"},
	{"USPOSTALSERVICE", "USPS"},
	{"UNITEDPARCELSERVICE", "UPS"},
	{"FEDERALEXPRESS", "FEDEX"},
}

// CarrierToken 只保留字母并转大写，再折叠已知别名
func CarrierToken(name string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		}
		return -1
	}, name)
	for _, alias := range carrierAliases {
		token = strings.ReplaceAll(token, alias.from, alias.to)
	}
	return token
}

// CarrierTokens 允许列表转 token，去空去重并排序
func CarrierTokens(names []string) []string {
	seen := make(map[string]bool, len(names))
	tokens := make([]string, 0, len(names))
	for _, n := range names {
		t := CarrierToken(n)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// carrierMatches 任一方是另一方的子串即匹配
func carrierMatches(candidate string, allowed []string) bool {
	if candidate == "" {
		return false
	}
	for _, a := range allowed {
		if strings.Contains(candidate, a) || strings.Contains(a, candidate) {
			return true
		}
	}
	return false
}

// FilterAllowedRates 按允许列表过滤并按价格升序排列；价格相同保持原顺序
func FilterAllowedRates(rates []model.NormalizedRate, allowList []string) []model.NormalizedRate {
	allowed := CarrierTokens(allowList)

	out := make([]model.NormalizedRate, 0, len(rates))
	for _, r := range rates {
		if len(allowed) == 0 {
			out = append(out, r)
			continue
		}
		name := r.Carrier
		if name == "" {
			name = r.Service
		}
		if carrierMatches(CarrierToken(name), allowed) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AmountCents < out[j].AmountCents
	})
	return out
}

// PickCheapestRate 最低价报价，价格相同取最先出现的；未解析出价格（<=0）的报价排在有价格的之后；空列表返回 nil
func PickCheapestRate(rates []model.NormalizedRate) *model.NormalizedRate {
	var cheapest *model.NormalizedRate
	for i := range rates {
		if cheapest == nil || cheaper(rates[i], *cheapest) {
			cheapest = &rates[i]
		}
	}
	return cheapest
}

func cheaper(a, b model.NormalizedRate) bool {
	aPriced, bPriced := a.AmountCents > 0, b.AmountCents > 0
	if aPriced != bPriced {
		return aPriced
	}
	return a.AmountCents < b.AmountCents
}

// FindRate 按 ID 查找报价
func FindRate(rates []model.NormalizedRate, id string) *model.NormalizedRate {
	for i := range rates {
		if rates[i].ID == id {
			return &rates[i]
		}
	}
	return nil
}

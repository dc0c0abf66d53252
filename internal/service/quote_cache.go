package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/monitoring"
	"parcel_ship_v1_202610/pkg/easyship"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// QuoteStore 报价缓存存储（数据库或 Redis）
type QuoteStore interface {
	FindValid(ctx context.Context, orderID, signatureHash string, now time.Time) (*model.RateQuoteCache, error)
	Upsert(ctx context.Context, entry *model.RateQuoteCache) error
}

// ==================== 请求签名 ====================

// SignatureInputs 决定报价结果的输入
type SignatureInputs struct {
	Destination     model.Address
	Dimensions      model.ParcelDimensions
	AllowedCarriers []string
}

type signaturePayload struct {
	Street1  string   `json:"street1"`
	Street2  string   `json:"street2"`
	City     string   `json:"city"`
	State    string   `json:"state"`
	Postal   string   `json:"postal"`
	Country  string   `json:"country"`
	Length   string   `json:"length"`
	Width    string   `json:"width"`
	Height   string   `json:"height"`
	Weight   string   `json:"weight"`
	Carriers []string `json:"carriers"`
}

func normalizeSignatureField(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// Signature 规范化后的 SHA-256，大小写和多余空白不影响结果
func (in SignatureInputs) Signature() string {
	payload := signaturePayload{
		Street1:  normalizeSignatureField(in.Destination.Street1),
		Street2:  normalizeSignatureField(in.Destination.Street2),
		City:     normalizeSignatureField(in.Destination.City),
		State:    normalizeSignatureField(in.Destination.State),
		Postal:   strings.ReplaceAll(normalizeSignatureField(in.Destination.PostalCode), " ", ""),
		Country:  normalizeSignatureField(in.Destination.CountryCode),
		Length:   fmt.Sprintf("%.3f", in.Dimensions.LengthIn),
		Width:    fmt.Sprintf("%.3f", in.Dimensions.WidthIn),
		Height:   fmt.Sprintf("%.3f", in.Dimensions.HeightIn),
		Weight:   fmt.Sprintf("%.3f", in.Dimensions.WeightLb),
		Carriers: CarrierTokens(in.AllowedCarriers),
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ==================== QuoteCache 报价缓存 ====================

// QuoteResult 报价结果
type QuoteResult struct {
	ShipmentTempKey string                 `json:"shipment_temp_key"`
	Rates           []model.NormalizedRate `json:"rates"`
	FromCache       bool                   `json:"from_cache"`
	ExpiresAt       *time.Time             `json:"expires_at"`
	UpstreamCount   int                    `json:"-"` // 过滤前服务商返回的报价数
	Warning         string                 `json:"warning,omitempty"`
	Code            string                 `json:"code,omitempty"` // 空结果时为 NO_RATES 或 NO_QUOTES
}

// QuoteCache 先查缓存，未命中时请求服务商并写回
type QuoteCache struct {
	store           QuoteStore
	provider        easyship.Provider
	normalizer      *RateNormalizer
	allowedCarriers []string
	ttl             time.Duration
	metrics         *monitoring.Metrics
	logger          *zap.Logger
	now             func() time.Time
}

// NewQuoteCache 创建报价缓存
func NewQuoteCache(store QuoteStore, provider easyship.Provider, normalizer *RateNormalizer, allowedCarriers []string, ttl time.Duration, metrics *monitoring.Metrics, logger *zap.Logger) *QuoteCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &QuoteCache{
		store:           store,
		provider:        provider,
		normalizer:      normalizer,
		allowedCarriers: allowedCarriers,
		ttl:             ttl,
		metrics:         metrics,
		logger:          logger,
		now:             time.Now,
	}
}

// AllowedCarriers 当前生效的物流商允许列表
func (c *QuoteCache) AllowedCarriers() []string {
	return c.allowedCarriers
}

// GetOrCreate 命中有效缓存直接返回；否则请求服务商，标准化、过滤后写入缓存
// 空结果不写缓存，下次仍会重新请求
func (c *QuoteCache) GetOrCreate(ctx context.Context, orderID string, inputs SignatureInputs, req *easyship.RateRequest) (*QuoteResult, error) {
	inputs.AllowedCarriers = c.allowedCarriers
	signature := inputs.Signature()
	now := c.now().UTC()

	cached, err := c.store.FindValid(ctx, orderID, signature, now)
	if err != nil {
		c.logger.Warn("读取报价缓存失败，改为实时请求",
			zap.String("order_id", orderID),
			zap.Error(err))
	} else if cached != nil {
		rates, decodeErr := cached.DecodeRates()
		if decodeErr == nil && len(rates) > 0 {
			c.metrics.RecordQuote("cache")
			expiresAt := cached.ExpiresAt
			return &QuoteResult{
				ShipmentTempKey: signature,
				Rates:           rates,
				FromCache:       true,
				ExpiresAt:       &expiresAt,
				UpstreamCount:   len(rates),
			}, nil
		}
		if decodeErr != nil {
			c.logger.Warn("报价缓存内容损坏", zap.String("order_id", orderID), zap.Error(decodeErr))
		}
	}

	doc, err := c.provider.GetRates(ctx, req)
	c.metrics.RecordUpstream("rates", err)
	if err != nil {
		if errors.Is(err, easyship.ErrNoShippingSolutions) {
			c.metrics.RecordQuote("empty")
			return &QuoteResult{
				ShipmentTempKey: signature,
				Rates:           []model.NormalizedRate{},
				Warning:         "服务商没有可用的物流方案，请检查地址和包裹尺寸",
				Code:            CodeNoRates,
			}, nil
		}
		return nil, errUpstream(err, "获取报价失败")
	}

	all := c.normalizer.Normalize(doc)
	rates := FilterAllowedRates(all, c.allowedCarriers)
	result := &QuoteResult{
		ShipmentTempKey: signature,
		Rates:           rates,
		UpstreamCount:   len(all),
	}

	if len(rates) == 0 {
		c.metrics.RecordQuote("empty")
		if len(all) > 0 {
			result.Warning = "服务商返回的报价都不在允许的物流商范围内"
			result.Code = CodeNoQuotes
		} else {
			result.Warning = "服务商没有返回报价"
			result.Code = CodeNoRates
		}
		return result, nil
	}

	c.metrics.RecordQuote("live")
	expiresAt := now.Add(c.ttl)
	result.ExpiresAt = &expiresAt

	payload, err := json.Marshal(rates)
	if err != nil {
		c.logger.Warn("序列化报价失败", zap.Error(err))
		return result, nil
	}
	entry := &model.RateQuoteCache{
		OrderID:       orderID,
		SignatureHash: signature,
		Rates:         datatypes.JSON(payload),
		ExpiresAt:     expiresAt,
	}
	if err := c.store.Upsert(ctx, entry); err != nil {
		c.logger.Warn("写入报价缓存失败",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	return result, nil
}

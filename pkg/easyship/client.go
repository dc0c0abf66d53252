package easyship

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Provider 物流服务商接口，响应保持为解码后的原始 JSON
type Provider interface {
	GetRates(ctx context.Context, req *RateRequest) (any, error)
	CreateShipment(ctx context.Context, req *CreateShipmentRequest) (any, error)
	PurchaseLabel(ctx context.Context, shipmentID, action string) (any, error)
	GetShipment(ctx context.Context, shipmentID string) (any, error)
}

// Config 客户端配置
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	Debug             bool
	Mock              bool
	RateRetries       int
	RequestsPerSecond float64
}

// New 根据配置返回真实客户端或 Mock
func New(cfg Config) Provider {
	if cfg.Mock {
		return NewMockClient()
	}
	return NewClient(cfg)
}

// Client Easyship HTTP 客户端
type Client struct {
	config Config
	// readClient 只读请求（报价、查询运单），允许重试
	readClient *resty.Client
	// writeClient 创建运单与购买面单，不重试
	writeClient *resty.Client
	limiter     *rate.Limiter
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	base := func() *resty.Client {
		return resty.New().
			SetBaseURL(cfg.BaseURL).
			SetAuthToken(cfg.APIKey).
			SetTimeout(cfg.Timeout).
			SetDebug(cfg.Debug).
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "parcel-ship/1.0")
	}

	readClient := base().
		SetRetryCount(max(cfg.RateRetries, 0)).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{
		config:      cfg,
		readClient:  readClient,
		writeClient: base(),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(int(cfg.RequestsPerSecond), 1)),
	}
}

// ==================== Rates 报价 ====================

// GetRates 获取报价；“无可用物流方案”返回 ErrNoShippingSolutions
func (c *Client) GetRates(ctx context.Context, req *RateRequest) (any, error) {
	doc, err := c.doRequest(ctx, c.readClient, http.MethodPost, "/rates", nil, req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsNoShippingSolutions() {
			return nil, ErrNoShippingSolutions
		}
		return nil, fmt.Errorf("获取报价失败: %w", err)
	}
	if msg := FirstString(doc, errorMessagePaths...); containsNoSolutions(msg) {
		return nil, ErrNoShippingSolutions
	}
	return doc, nil
}

// ==================== Shipment 运单 ====================

// CreateShipment 创建运单
func (c *Client) CreateShipment(ctx context.Context, req *CreateShipmentRequest) (any, error) {
	doc, err := c.doRequest(ctx, c.writeClient, http.MethodPost, "/shipments", nil, req)
	if err != nil {
		return nil, fmt.Errorf("创建运单失败: %w", err)
	}
	return doc, nil
}

// PurchaseLabel 购买面单，action 为 purchase / buy / label 之一
func (c *Client) PurchaseLabel(ctx context.Context, shipmentID, action string) (any, error) {
	params := map[string]string{"id": shipmentID, "action": action}
	doc, err := c.doRequest(ctx, c.writeClient, http.MethodPost, "/shipments/{id}/{action}", params, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("购买面单失败 (%s): %w", action, err)
	}
	return doc, nil
}

// GetShipment 查询运单
func (c *Client) GetShipment(ctx context.Context, shipmentID string) (any, error) {
	params := map[string]string{"id": shipmentID}
	doc, err := c.doRequest(ctx, c.readClient, http.MethodGet, "/shipments/{id}", params, nil)
	if err != nil {
		return nil, fmt.Errorf("获取运单失败: %w", err)
	}
	return doc, nil
}

// ==================== 内部方法 ====================

// doRequest 限速后发送请求并解码为通用 JSON
func (c *Client) doRequest(ctx context.Context, rc *resty.Client, method, path string, pathParams map[string]string, body any) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := rc.R().SetContext(ctx)
	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}

	var doc any
	decodeErr := json.Unmarshal(resp.Body(), &doc)

	if resp.IsError() {
		return nil, newAPIError(resp.StatusCode(), resp.Body(), doc)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	return doc, nil
}

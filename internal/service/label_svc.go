package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/monitoring"
	"parcel_ship_v1_202610/internal/repository"
	"parcel_ship_v1_202610/pkg/easyship"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ==================== 配置与依赖 ====================

// LabelConfig 面单购买配置
type LabelConfig struct {
	PurchaseActions  []string      // 购买端点候选，按顺序尝试
	ItemCategory     string        // 申报物品类目
	Currency         string        // 订单未指定币种时使用
	PurchaseClaimTTL time.Duration // 购买占位超时
}

// LabelService 报价、购买面单、刷新面单状态
type LabelService struct {
	shipments repository.OrderShipmentRepository
	settings  repository.ShipFromSettingsRepository
	orders    repository.OrderRepository
	quotes    *QuoteCache
	provider  easyship.Provider
	notifier  TrackingNotifier
	cfg       LabelConfig
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewLabelService 创建面单服务
func NewLabelService(
	shipments repository.OrderShipmentRepository,
	settings repository.ShipFromSettingsRepository,
	orders repository.OrderRepository,
	quotes *QuoteCache,
	provider easyship.Provider,
	notifier TrackingNotifier,
	cfg LabelConfig,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *LabelService {
	if len(cfg.PurchaseActions) == 0 {
		cfg.PurchaseActions = []string{"purchase", "buy", "label"}
	}
	if cfg.ItemCategory == "" {
		cfg.ItemCategory = "merchandise"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.PurchaseClaimTTL <= 0 {
		cfg.PurchaseClaimTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LabelService{
		shipments: shipments,
		settings:  settings,
		orders:    orders,
		quotes:    quotes,
		provider:  provider,
		notifier:  notifier,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ==================== 报价 ====================

// QuoteResponse 报价结果 + 当前选中的报价
type QuoteResponse struct {
	QuoteResult
	SelectedRateID string `json:"selected_rate_id"`
}

// Quote 获取报价并记录选中项：指定的 ID 必须存在，否则默认最低价
func (s *LabelService) Quote(ctx context.Context, shipmentID int64, quoteSelectedID string) (*QuoteResponse, error) {
	shipment, err := s.loadShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if shipment.IsPurchased() {
		return nil, errAlreadyPurchased(shipmentID)
	}

	pc, err := s.prepare(ctx, shipment, false)
	if err != nil {
		return nil, err
	}

	result, err := s.quotes.GetOrCreate(ctx, shipment.OrderID, pc.signature, pc.rateRequest)
	if err != nil {
		return nil, err
	}

	resp := &QuoteResponse{QuoteResult: *result}

	var selected *model.NormalizedRate
	if quoteSelectedID != "" {
		selected = FindRate(result.Rates, quoteSelectedID)
		if selected == nil {
			return nil, errQuoteNotFound(quoteSelectedID)
		}
	} else {
		selected = PickCheapestRate(result.Rates)
	}

	if selected != nil {
		resp.SelectedRateID = selected.ID
		if err := s.shipments.UpdateFields(ctx, shipmentID, map[string]interface{}{"quote_selected_id": selected.ID}); err != nil {
			return nil, fmt.Errorf("save selected quote: %w", err)
		}
	}
	return resp, nil
}

// ==================== 购买面单 ====================

// BuyOptions 购买参数
type BuyOptions struct {
	QuoteSelectedID string
	Refresh         bool // 只刷新服务商状态，不重新购买
}

// Buy 预检 -> 校验 -> 确定报价 -> 占位 -> 创建运单 -> 购买面单 -> 保存结果 -> 物流通知
func (s *LabelService) Buy(ctx context.Context, shipmentID int64, opts BuyOptions) (*model.OrderShipment, error) {
	if opts.Refresh {
		return s.Refresh(ctx, shipmentID)
	}

	shipment, err := s.loadShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if shipment.IsPurchased() {
		s.metrics.RecordPurchase("already_purchased")
		return nil, errAlreadyPurchased(shipmentID)
	}

	pc, err := s.prepare(ctx, shipment, true)
	if err != nil {
		return nil, err
	}

	quotes, err := s.quotes.GetOrCreate(ctx, shipment.OrderID, pc.signature, pc.rateRequest)
	if err != nil {
		return nil, err
	}
	if len(quotes.Rates) == 0 {
		if quotes.UpstreamCount > 0 {
			return nil, errNoQuotes(s.quotes.AllowedCarriers())
		}
		return nil, errNoRates()
	}

	rate, err := resolveSelectedRate(quotes.Rates, opts.QuoteSelectedID, shipment.QuoteSelectedID)
	if err != nil {
		return nil, err
	}

	if err := s.claimPurchase(ctx, shipmentID); err != nil {
		return nil, err
	}

	easyshipID, err := s.ensureProviderShipment(ctx, shipment, pc, rate)
	if err != nil {
		return nil, err
	}

	purchaseDoc, err := s.purchaseWithFallback(ctx, easyshipID)
	if err != nil {
		s.release(ctx, shipmentID, map[string]interface{}{"error_message": err.Error()})
		s.metrics.RecordPurchase("purchase_failed")
		return nil, errLabelPurchaseFailed(err, easyshipID)
	}

	res := parseLabelResult(purchaseDoc)
	if res.EasyshipShipmentID == "" {
		res.EasyshipShipmentID = easyshipID
	}

	updated, err := s.persistLabel(ctx, shipment, res, rate, purchaseDoc)
	if err != nil {
		s.release(ctx, shipmentID, map[string]interface{}{"error_message": err.Error()})
		return nil, err
	}
	s.metrics.RecordPurchase("generated")

	s.logger.Info("面单购买成功",
		zap.Int64("shipment_id", shipmentID),
		zap.String("order_id", shipment.OrderID),
		zap.String("easyship_shipment_id", easyshipID),
		zap.String("rate_id", rate.ID),
		zap.Int64("amount_cents", rate.AmountCents))
	return updated, nil
}

// resolveSelectedRate 显式指定 > 已记录的选择（仍在报价中）> 最低价
func resolveSelectedRate(rates []model.NormalizedRate, explicitID, storedID string) (*model.NormalizedRate, error) {
	if explicitID != "" {
		rate := FindRate(rates, explicitID)
		if rate == nil {
			return nil, errQuoteNotFound(explicitID)
		}
		return rate, nil
	}
	if storedID != "" {
		if rate := FindRate(rates, storedID); rate != nil {
			return rate, nil
		}
	}
	return PickCheapestRate(rates), nil
}

// claimPurchase 条件写入购买占位，失败时区分已购买和购买中
func (s *LabelService) claimPurchase(ctx context.Context, shipmentID int64) error {
	now := s.now().UTC()
	won, err := s.shipments.ClaimPurchase(ctx, shipmentID, now, now.Add(-s.cfg.PurchaseClaimTTL))
	if err != nil {
		return fmt.Errorf("claim purchase for shipment %d: %w", shipmentID, err)
	}
	if won {
		return nil
	}

	current, err := s.loadShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if current.IsPurchased() {
		s.metrics.RecordPurchase("already_purchased")
		return errAlreadyPurchased(shipmentID)
	}
	s.metrics.RecordPurchase("in_progress")
	return errPurchaseInProgress(shipmentID)
}

// release 释放购买占位，失败只记录日志
func (s *LabelService) release(ctx context.Context, shipmentID int64, fields map[string]interface{}) {
	if err := s.shipments.ReleasePurchaseClaim(ctx, shipmentID, fields); err != nil {
		s.logger.Error("释放购买占位失败", zap.Int64("shipment_id", shipmentID), zap.Error(err))
	}
}

// ensureProviderShipment 创建服务商运单；发货地、收件地址、包裹和报价都未变化时复用上次创建的运单
func (s *LabelService) ensureProviderShipment(ctx context.Context, shipment *model.OrderShipment, pc *parcelContext, rate *model.NormalizedRate) (string, error) {
	req := *pc.shipmentRequest
	req.CourierSelection = easyship.CourierSelection{SelectedCourierID: rate.ID}
	signature := providerSignature(&req)

	if shipment.EasyshipShipmentID != "" && shipment.ProviderSignature == signature {
		s.logger.Info("复用已创建的服务商运单",
			zap.Int64("shipment_id", shipment.ID),
			zap.String("easyship_shipment_id", shipment.EasyshipShipmentID))
		return shipment.EasyshipShipmentID, nil
	}
	if shipment.EasyshipShipmentID != "" {
		s.logger.Info("包裹信息已变化，重新创建服务商运单",
			zap.Int64("shipment_id", shipment.ID),
			zap.String("previous_easyship_shipment_id", shipment.EasyshipShipmentID))
	}

	doc, err := s.provider.CreateShipment(ctx, &req)
	s.metrics.RecordUpstream("create_shipment", err)
	if err != nil {
		fields := map[string]interface{}{"error_message": err.Error()}
		var apiErr *easyship.APIError
		if errors.As(err, &apiErr) && apiErr.IsClientError() {
			fields["label_state"] = model.LabelStateFailed
		}
		s.release(ctx, shipment.ID, fields)
		s.metrics.RecordPurchase("create_failed")
		return "", errUpstream(err, "创建服务商运单失败")
	}

	easyshipID := resolveString(doc, labelShipmentIDFields)
	if easyshipID == "" {
		s.release(ctx, shipment.ID, map[string]interface{}{"error_message": "create shipment response has no shipment id"})
		s.metrics.RecordPurchase("create_failed")
		return "", errUpstream(easyship.ErrMalformedResponse, "服务商运单响应缺少运单号")
	}

	fields := map[string]interface{}{
		"easyship_shipment_id":  easyshipID,
		"provider_signature":    signature,
		"quote_selected_id":     rate.ID,
		"last_provider_payload": payloadJSON(doc),
	}
	if err := s.shipments.UpdateFields(ctx, shipment.ID, fields); err != nil {
		// 远端运单已创建，本地写入失败时仍继续购买，结果在最终保存时一并写入
		s.logger.Error("保存服务商运单号失败",
			zap.Int64("shipment_id", shipment.ID),
			zap.String("easyship_shipment_id", easyshipID),
			zap.Error(err))
	}
	return easyshipID, nil
}

// providerSignature 创建运单请求的 SHA-256
func providerSignature(req *easyship.CreateShipmentRequest) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// purchaseWithFallback 依次尝试候选购买端点，第一个成功的生效；购买请求本身不重试
func (s *LabelService) purchaseWithFallback(ctx context.Context, easyshipID string) (any, error) {
	var lastErr error
	for _, action := range s.cfg.PurchaseActions {
		doc, err := s.provider.PurchaseLabel(ctx, easyshipID, action)
		s.metrics.RecordUpstream("purchase_label", err)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		s.logger.Warn("购买端点失败，尝试下一个",
			zap.String("easyship_shipment_id", easyshipID),
			zap.String("action", action),
			zap.Error(err))
	}
	if lastErr == nil {
		lastErr = errors.New("no purchase action configured")
	}
	return nil, lastErr
}

// ==================== 刷新 ====================

// Refresh 重新读取服务商运单状态；面单尚未生成时不做任何写入
func (s *LabelService) Refresh(ctx context.Context, shipmentID int64) (*model.OrderShipment, error) {
	shipment, err := s.loadShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, shipment)
}

// RefreshByEasyshipID 按服务商运单号刷新（Webhook）
func (s *LabelService) RefreshByEasyshipID(ctx context.Context, easyshipID string) (*model.OrderShipment, error) {
	shipment, err := s.shipments.GetByEasyshipShipmentID(ctx, easyshipID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(CodeShipmentNotFound, http.StatusNotFound, "没有对应服务商运单的包裹: %s", easyshipID)
	}
	if err != nil {
		return nil, fmt.Errorf("load shipment by easyship id %s: %w", easyshipID, err)
	}
	return s.refresh(ctx, shipment)
}

func (s *LabelService) refresh(ctx context.Context, shipment *model.OrderShipment) (*model.OrderShipment, error) {
	if shipment.EasyshipShipmentID == "" {
		return nil, errMissingEasyshipShipment(shipment.ID)
	}

	doc, err := s.provider.GetShipment(ctx, shipment.EasyshipShipmentID)
	s.metrics.RecordUpstream("get_shipment", err)
	if err != nil {
		return nil, errUpstream(err, "查询服务商运单失败")
	}

	res := parseLabelResult(doc)
	if !res.HasLabel() {
		s.logger.Debug("面单尚未生成",
			zap.Int64("shipment_id", shipment.ID),
			zap.String("label_state", res.LabelState))
		return shipment, nil
	}
	if res.EasyshipShipmentID == "" {
		res.EasyshipShipmentID = shipment.EasyshipShipmentID
	}
	return s.persistLabel(ctx, shipment, res, nil, doc)
}

// RetryTrackingEmail 手动重发物流通知（上次发送失败并已释放占位时）
func (s *LabelService) RetryTrackingEmail(ctx context.Context, shipmentID int64) (NotifyResult, error) {
	shipment, err := s.loadShipment(ctx, shipmentID)
	if err != nil {
		return NotifyResult{}, err
	}
	if s.notifier == nil {
		return NotifyResult{SkippedReason: "notifier_disabled"}, nil
	}
	return s.notifier.MaybeSend(ctx, shipment.OrderID, shipment.ID, "", shipment.TrackingNumber)
}

// ==================== 保存结果 ====================

// persistLabel 写入面单结果并标记 generated，随后触发物流通知
// 响应中缺失的物流商/服务/费用取自选中的报价
func (s *LabelService) persistLabel(ctx context.Context, previous *model.OrderShipment, res labelResult, rate *model.NormalizedRate, doc any) (*model.OrderShipment, error) {
	fields := map[string]interface{}{
		"last_provider_payload": payloadJSON(doc),
	}
	setIfPresent := func(column, value string) {
		if value != "" {
			fields[column] = value
		}
	}

	carrier, service, currency := res.Carrier, res.Service, res.Currency
	amount := res.AmountCents
	if rate != nil {
		if carrier == "" {
			carrier = rate.Carrier
		}
		if service == "" {
			service = rate.Service
		}
		if currency == "" {
			currency = rate.Currency
		}
		if amount == nil {
			cents := rate.AmountCents
			amount = &cents
		}
	}

	setIfPresent("easyship_shipment_id", res.EasyshipShipmentID)
	setIfPresent("easyship_label_id", res.LabelID)
	setIfPresent("carrier", carrier)
	setIfPresent("service", service)
	setIfPresent("tracking_number", res.TrackingNumber)
	setIfPresent("label_url", res.LabelURL)
	setIfPresent("label_currency", currency)
	if amount != nil {
		fields["label_cost_amount_cents"] = *amount
	}
	if rate != nil {
		fields["quote_selected_id"] = rate.ID
	}

	if err := s.shipments.MarkLabelGenerated(ctx, previous.ID, fields, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("save label for shipment %d: %w", previous.ID, err)
	}

	updated, err := s.loadShipment(ctx, previous.ID)
	if err != nil {
		return nil, err
	}

	s.notifyTracking(ctx, previous, updated)
	return updated, nil
}

// notifyTracking 物流通知失败不影响面单结果
func (s *LabelService) notifyTracking(ctx context.Context, previous, current *model.OrderShipment) {
	if s.notifier == nil {
		return
	}
	result, err := s.notifier.MaybeSend(ctx, current.OrderID, current.ID, previous.TrackingNumber, current.TrackingNumber)
	if err != nil {
		s.logger.Error("物流通知发送失败",
			zap.Int64("shipment_id", current.ID),
			zap.String("order_id", current.OrderID),
			zap.Error(err))
		return
	}
	s.logger.Debug("物流通知结果",
		zap.Int64("shipment_id", current.ID),
		zap.Bool("sent", result.Sent),
		zap.String("skipped_reason", result.SkippedReason))
}

// ==================== 请求准备 ====================

// parcelContext 一次报价/购买所需的请求数据
type parcelContext struct {
	signature       SignatureInputs
	rateRequest     *easyship.RateRequest
	shipmentRequest *easyship.CreateShipmentRequest
}

// prepare 依次校验发货地、收件地址、电话、包裹尺寸，并构造服务商请求
func (s *LabelService) prepare(ctx context.Context, shipment *model.OrderShipment, requirePhone bool) (*parcelContext, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ship-from settings: %w", err)
	}
	if missing := settings.MissingFields(); len(missing) > 0 {
		return nil, errShipFromIncomplete(missing)
	}

	order, err := s.orders.GetByID(ctx, shipment.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errDestinationIncomplete(model.Address{}.MissingDestinationFields())
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", shipment.OrderID, err)
	}
	destination := order.Destination()
	if missing := destination.MissingDestinationFields(); len(missing) > 0 {
		return nil, errDestinationIncomplete(missing)
	}
	if requirePhone && !destination.HasPhone() {
		return nil, errDestinationPhoneRequired()
	}

	dims, missing := shipment.EffectiveDimensions()
	if len(missing) > 0 {
		return nil, errParcelIncomplete(missing)
	}

	currency := strings.ToUpper(order.Currency)
	if currency == "" {
		currency = s.cfg.Currency
	}
	domestic := strings.EqualFold(strings.TrimSpace(settings.CountryCode), strings.TrimSpace(destination.CountryCode))

	lines := make([]easyship.ItemLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, easyship.ItemLine{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitValue:   float64(item.UnitPriceCents) / 100,
		})
	}

	origin := toProviderAddress(settings.Address)
	dest := toProviderAddress(destination)

	return &parcelContext{
		signature: SignatureInputs{
			Destination: destination,
			Dimensions:  dims,
		},
		rateRequest: &easyship.RateRequest{
			OriginAddress:      origin,
			DestinationAddress: dest,
			Parcels: []easyship.Parcel{
				easyship.NewRateParcel(dims.LengthIn, dims.WidthIn, dims.HeightIn, dims.WeightLb, lines, s.cfg.ItemCategory, currency, domestic),
			},
		},
		shipmentRequest: &easyship.CreateShipmentRequest{
			OriginAddress:      origin,
			DestinationAddress: dest,
			Parcels: []easyship.Parcel{
				easyship.NewShipmentParcel(dims.LengthIn, dims.WidthIn, dims.HeightIn, dims.WeightLb, lines, s.cfg.ItemCategory, currency, domestic),
			},
			ShippingSettings: easyship.ShippingSettings{Units: easyship.ImperialUnits},
			OrderData: &easyship.OrderData{
				PlatformOrderNumber: fmt.Sprintf("%s-%d", shipment.OrderID, shipment.ParcelIndex),
			},
		},
	}, nil
}

func toProviderAddress(a model.Address) easyship.Address {
	return easyship.Address{
		Line1:         strings.TrimSpace(a.Street1),
		Line2:         strings.TrimSpace(a.Street2),
		City:          strings.TrimSpace(a.City),
		State:         strings.TrimSpace(a.State),
		PostalCode:    strings.TrimSpace(a.PostalCode),
		CountryAlpha2: strings.ToUpper(strings.TrimSpace(a.CountryCode)),
		ContactName:   strings.TrimSpace(a.Name),
		CompanyName:   strings.TrimSpace(a.Company),
		ContactPhone:  strings.TrimSpace(a.Phone),
		ContactEmail:  strings.TrimSpace(a.Email),
	}
}

func (s *LabelService) loadShipment(ctx context.Context, id int64) (*model.OrderShipment, error) {
	shipment, err := s.shipments.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errShipmentNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load shipment %d: %w", id, err)
	}
	return shipment, nil
}

// payloadJSON 服务商响应原文，序列化失败时返回 nil
func payloadJSON(doc any) datatypes.JSON {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

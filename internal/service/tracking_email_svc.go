package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"parcel_ship_v1_202610/internal/mailer"
	"parcel_ship_v1_202610/internal/monitoring"
	"parcel_ship_v1_202610/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 跳过原因
const (
	SkipNotFirstAssignment   = "not_first_assignment"
	SkipEmptyTrackingNumber  = "empty_tracking_number"
	SkipShipmentNotFound     = "shipment_not_found"
	SkipCustomerEmailMissing = "customer_email_missing"
	SkipAlreadySent          = "already_sent"
	SkipAlreadyClaimed       = "already_claimed"
)

// NotifyResult 物流通知结果
type NotifyResult struct {
	Sent          bool   `json:"sent"`
	SkippedReason string `json:"skipped_reason,omitempty"`
}

// TrackingNotifier 运单号首次出现时触发的通知
type TrackingNotifier interface {
	MaybeSend(ctx context.Context, orderID string, shipmentID int64, previousTracking, newTracking string) (NotifyResult, error)
}

// TrackingEmailService 物流通知：运单号首次出现时发送一次邮件
type TrackingEmailService struct {
	shipments repository.OrderShipmentRepository
	orders    repository.OrderRepository
	sender    mailer.Sender
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewTrackingEmailService 创建物流通知服务
func NewTrackingEmailService(shipments repository.OrderShipmentRepository, orders repository.OrderRepository, sender mailer.Sender, metrics *monitoring.Metrics, logger *zap.Logger) *TrackingEmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingEmailService{
		shipments: shipments,
		orders:    orders,
		sender:    sender,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *TrackingEmailService) skip(reason string) (NotifyResult, error) {
	s.metrics.RecordTrackingEmail(reason)
	return NotifyResult{SkippedReason: reason}, nil
}

// MaybeSend 只有运单号从空变为非空时才尝试发送
//
// 通过 tracking_email_sent_at 的条件写入抢占，发送失败时释放占位以便重试
func (s *TrackingEmailService) MaybeSend(ctx context.Context, orderID string, shipmentID int64, previousTracking, newTracking string) (NotifyResult, error) {
	if strings.TrimSpace(previousTracking) != "" {
		return s.skip(SkipNotFirstAssignment)
	}
	if strings.TrimSpace(newTracking) == "" {
		return s.skip(SkipEmptyTrackingNumber)
	}

	shipment, err := s.shipments.GetByID(ctx, shipmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.skip(SkipShipmentNotFound)
	}
	if err != nil {
		return NotifyResult{}, fmt.Errorf("load shipment %d: %w", shipmentID, err)
	}
	if shipment.TrackingEmailSentAt != nil {
		return s.skip(SkipAlreadySent)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.skip(SkipCustomerEmailMissing)
	}
	if err != nil {
		return NotifyResult{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	recipient := strings.TrimSpace(order.Destination().Email)
	if recipient == "" {
		return s.skip(SkipCustomerEmailMissing)
	}

	return s.claimAndDeliver(ctx, orderID, shipmentID, recipient, newTracking, true)
}

// claimAndDeliver 抢占后发送；allowRetry 为 true 时，占位被释放导致的未命中会再抢一次
func (s *TrackingEmailService) claimAndDeliver(ctx context.Context, orderID string, shipmentID int64, recipient, trackingNumber string, allowRetry bool) (NotifyResult, error) {
	// 数据库时间精度为微秒，释放时需要按相同的值比较
	claimedAt := s.now().UTC().Truncate(time.Microsecond)
	won, err := s.shipments.ClaimTrackingEmail(ctx, shipmentID, claimedAt)
	if err != nil {
		return NotifyResult{}, fmt.Errorf("claim tracking email for shipment %d: %w", shipmentID, err)
	}
	if !won {
		released, result, err := s.resolveLostClaim(ctx, shipmentID)
		if err != nil || !released {
			return result, err
		}
		if !allowRetry {
			return s.skip(SkipAlreadyClaimed)
		}
		s.logger.Info("物流通知占位已释放，重新抢占", zap.Int64("shipment_id", shipmentID))
		return s.claimAndDeliver(ctx, orderID, shipmentID, recipient, trackingNumber, false)
	}

	if err := s.deliver(ctx, orderID, shipmentID, recipient, trackingNumber); err != nil {
		released, releaseErr := s.shipments.ReleaseTrackingEmailClaim(ctx, shipmentID, claimedAt)
		if releaseErr != nil {
			s.logger.Error("释放物流通知占位失败",
				zap.Int64("shipment_id", shipmentID),
				zap.Error(releaseErr))
		} else if !released {
			s.logger.Warn("物流通知占位已被覆盖，跳过释放", zap.Int64("shipment_id", shipmentID))
		}
		s.metrics.RecordTrackingEmail("failed")
		return NotifyResult{}, err
	}

	s.metrics.RecordTrackingEmail("sent")
	s.logger.Info("物流通知已发送",
		zap.String("order_id", orderID),
		zap.Int64("shipment_id", shipmentID),
		zap.String("tracking_number", trackingNumber))
	return NotifyResult{Sent: true}, nil
}

// resolveLostClaim 没有抢到时重新读取：记录已删除、他人持有占位、占位已被释放（released=true）
func (s *TrackingEmailService) resolveLostClaim(ctx context.Context, shipmentID int64) (released bool, result NotifyResult, err error) {
	current, err := s.shipments.GetByID(ctx, shipmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result, err = s.skip(SkipShipmentNotFound)
		return false, result, err
	}
	if err != nil {
		return false, NotifyResult{}, fmt.Errorf("reload shipment %d: %w", shipmentID, err)
	}
	if current.TrackingEmailSentAt == nil {
		return true, NotifyResult{}, nil
	}
	s.logger.Debug("物流通知占位已被其他请求获取",
		zap.Int64("shipment_id", shipmentID),
		zap.Time("claimed_at", *current.TrackingEmailSentAt))
	result, err = s.skip(SkipAlreadyClaimed)
	return false, result, err
}

// deliver 加载模板数据并发送
func (s *TrackingEmailService) deliver(ctx context.Context, orderID string, shipmentID int64, recipient, trackingNumber string) error {
	shipment, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return fmt.Errorf("load email context for shipment %d: %w", shipmentID, err)
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load email context for order %s: %w", orderID, err)
	}
	siblings, err := s.shipments.ListByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list shipments for order %s: %w", orderID, err)
	}

	msg, err := mailer.RenderTrackingEmail(recipient, mailer.TrackingEmail{
		CustomerName:   order.Destination().Name,
		OrderID:        orderID,
		ParcelIndex:    shipment.ParcelIndex,
		ParcelCount:    len(siblings),
		Carrier:        shipment.Carrier,
		Service:        shipment.Service,
		TrackingNumber: trackingNumber,
		TrackingURL:    TrackingURL(shipment.Carrier, trackingNumber),
	})
	if err != nil {
		return fmt.Errorf("render tracking email: %w", err)
	}
	return s.sender.Send(ctx, msg)
}

// trackingURLs 常见物流商的查询链接
var trackingURLs = []struct {
	token  string
	format string
}{
	{"USPS", "https://tools.usps.com/go/TrackConfirmAction?tLabels=%s"},
	{"UPS", "https://www.ups.com/track?tracknum=%s"},
	{"FEDEX", "https://www.fedex.com/fedextrack/?trknbr=%s"},
	{"DHL", "https://www.dhl.com/en/express/tracking.html?AWB=%s"},
}

// TrackingURL 按物流商生成查询链接，未知物流商返回空
func TrackingURL(carrier, trackingNumber string) string {
	token := CarrierToken(carrier)
	for _, t := range trackingURLs {
		if strings.Contains(token, t.token) {
			return fmt.Sprintf(t.format, url.QueryEscape(trackingNumber))
		}
	}
	return ""
}

var _ TrackingNotifier = (*TrackingEmailService)(nil)

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parcel_ship_v1_202610/internal/mailer"
	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/repository"
	"parcel_ship_v1_202610/pkg/easyship"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ==================== 测试数据库 ====================

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

func ptrFloat(v float64) *float64 { return &v }

func ptrInt64(v int64) *int64 { return &v }

// ==================== 服务商替身 ====================

// fakeProvider 基于 MockClient，统计调用次数并可注入错误
type fakeProvider struct {
	mock *easyship.MockClient

	mu             sync.Mutex
	rateCalls      int
	createCalls    int
	purchaseCalls  []string
	getCalls       int
	ratesDoc       any
	ratesErr       error
	createErr      error
	purchaseErrs   map[string]error
	trackingNumber string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{mock: easyship.NewMockClient(), purchaseErrs: map[string]error{}}
}

func (p *fakeProvider) GetRates(ctx context.Context, req *easyship.RateRequest) (any, error) {
	p.mu.Lock()
	p.rateCalls++
	doc, err := p.ratesDoc, p.ratesErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if doc != nil {
		return doc, nil
	}
	return p.mock.GetRates(ctx, req)
}

func (p *fakeProvider) CreateShipment(ctx context.Context, req *easyship.CreateShipmentRequest) (any, error) {
	p.mu.Lock()
	p.createCalls++
	err := p.createErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return p.mock.CreateShipment(ctx, req)
}

func (p *fakeProvider) PurchaseLabel(ctx context.Context, shipmentID, action string) (any, error) {
	p.mu.Lock()
	p.purchaseCalls = append(p.purchaseCalls, action)
	err := p.purchaseErrs[action]
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return p.mock.PurchaseLabel(ctx, shipmentID, action)
}

func (p *fakeProvider) GetShipment(ctx context.Context, shipmentID string) (any, error) {
	p.mu.Lock()
	p.getCalls++
	tracking := p.trackingNumber
	p.mu.Unlock()

	doc, err := p.mock.GetShipment(ctx, shipmentID)
	if err != nil || tracking == "" {
		return doc, err
	}
	if shipment, ok := doc.(map[string]any)["shipment"].(map[string]any); ok {
		shipment["tracking_number"] = tracking
	}
	return doc, nil
}

func (p *fakeProvider) upstreamCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rateCalls + p.createCalls + len(p.purchaseCalls) + p.getCalls
}

func (p *fakeProvider) setTracking(n string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trackingNumber = n
}

// ==================== 发信替身 ====================

type fakeSender struct {
	mu       sync.Mutex
	sent     []mailer.Message
	failures int // 前 N 次发送失败
	delay    time.Duration
}

func (s *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("smtp: 451 temporary failure")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// ==================== 测试环境 ====================

type testEnv struct {
	db        *gorm.DB
	provider  *fakeProvider
	sender    *fakeSender
	shipRepo  repository.OrderShipmentRepository
	quotes    *QuoteCache
	tracking  *TrackingEmailService
	labels    *LabelService
	shipments *ShipmentService
	clock     time.Time
}

func newTestEnv(t *testing.T, allowed ...string) *testEnv {
	t.Helper()
	db := setupServiceTestDB(t)
	log := zap.NewNop()

	shipRepo := repository.NewOrderShipmentRepository(db)
	settingsRepo := repository.NewShipFromSettingsRepository(db)
	presetRepo := repository.NewBoxPresetRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	quoteRepo := repository.NewRateQuoteRepository(db)

	env := &testEnv{
		db:       db,
		provider: newFakeProvider(),
		sender:   &fakeSender{},
		shipRepo: shipRepo,
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return env.clock }

	env.quotes = NewQuoteCache(quoteRepo, env.provider, NewRateNormalizer("USD"), allowed, 30*time.Minute, nil, log)
	env.quotes.now = now
	env.tracking = NewTrackingEmailService(shipRepo, orderRepo, env.sender, nil, log)
	env.labels = NewLabelService(shipRepo, settingsRepo, orderRepo, env.quotes, env.provider, env.tracking, LabelConfig{}, nil, log)
	env.labels.now = now
	env.shipments = NewShipmentService(shipRepo, settingsRepo, presetRepo, orderRepo, 0, log)
	env.shipments.now = now
	return env
}

// seedOrder 完整发货地 + 订单 O1（含电话）+ 12x9x6in/2lb 箱规 + 使用该箱规的包裹
func (e *testEnv) seedOrder(t *testing.T) *model.OrderShipment {
	t.Helper()
	ctx := context.Background()

	_, err := e.shipments.SaveSettings(ctx, model.Address{
		Name: "Shop Warehouse", Street1: "100 Main St", City: "Austin", State: "TX",
		PostalCode: "73301", CountryCode: "us", Phone: "+1 512 555 0100",
	})
	require.NoError(t, err)

	order := &model.Order{
		ID:            "O1",
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		ShipTo: model.Address{
			Street1: "1 Market St", City: "San Francisco", State: "CA",
			PostalCode: "94105", CountryCode: "US", Phone: "+1 415 555 0199",
		},
		Currency: "USD",
		Items: []model.OrderItem{
			{Description: "Ceramic mug", Quantity: 2, UnitPriceCents: 1800},
		},
	}
	require.NoError(t, e.db.Create(order).Error)

	preset, err := e.shipments.CreateBoxPreset(ctx, BoxPresetInput{
		Name: "Medium", LengthIn: 12, WidthIn: 9, HeightIn: 6, DefaultWeightLb: ptrFloat(2),
	})
	require.NoError(t, err)

	shipment, err := e.shipments.CreateShipment(ctx, "O1", ShipmentInput{BoxPresetID: &preset.ID})
	require.NoError(t, err)
	return shipment
}

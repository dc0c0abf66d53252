package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parcel_ship_v1_202610/internal/mailer"
	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/repository"
	"parcel_ship_v1_202610/internal/service"
	"parcel_ship_v1_202610/pkg/easyship"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ==================== 测试辅助 ====================

type ctlEnv struct {
	db     *gorm.DB
	router *gin.Engine
}

func setupCtlTestDB(t *testing.T) *gorm.DB {
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

func newCtlEnv(t *testing.T, allowedCarriers ...string) *ctlEnv {
	t.Helper()
	db := setupCtlTestDB(t)
	log := zap.NewNop()

	shipRepo := repository.NewOrderShipmentRepository(db)
	settingsRepo := repository.NewShipFromSettingsRepository(db)
	presetRepo := repository.NewBoxPresetRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	provider := easyship.NewMockClient()
	quotes := service.NewQuoteCache(repository.NewRateQuoteRepository(db), provider, service.NewRateNormalizer("USD"), allowedCarriers, 30*time.Minute, nil, log)
	tracking := service.NewTrackingEmailService(shipRepo, orderRepo, mailer.NewLogSender(log), nil, log)
	labels := service.NewLabelService(shipRepo, settingsRepo, orderRepo, quotes, provider, tracking, service.LabelConfig{}, nil, log)
	shipments := service.NewShipmentService(shipRepo, settingsRepo, presetRepo, orderRepo, 0, log)

	shippingCtl := NewShippingController(shipments, log)
	shipmentCtl := NewShipmentController(shipments, labels, log)
	webhookCtl := NewWebhookController(labels, log)

	r := gin.New()
	api := r.Group("/api")
	api.GET("/shipping/settings", shippingCtl.GetSettings)
	api.PUT("/shipping/settings", shippingCtl.SaveSettings)
	api.GET("/shipping/box-presets", shippingCtl.ListBoxPresets)
	api.POST("/shipping/box-presets", shippingCtl.CreateBoxPreset)
	api.PUT("/shipping/box-presets/:id", shippingCtl.UpdateBoxPreset)
	api.DELETE("/shipping/box-presets/:id", shippingCtl.DeleteBoxPreset)
	api.GET("/orders/:order_id/shipments", shipmentCtl.List)
	api.POST("/orders/:order_id/shipments", shipmentCtl.Create)
	api.GET("/shipments/:id", shipmentCtl.Get)
	api.PUT("/shipments/:id", shipmentCtl.Update)
	api.DELETE("/shipments/:id", shipmentCtl.Delete)
	api.POST("/shipments/:id/quotes", shipmentCtl.Quote)
	api.POST("/shipments/:id/buy", shipmentCtl.Buy)
	api.POST("/shipments/:id/refresh", shipmentCtl.Refresh)
	api.POST("/shipments/:id/tracking-email", shipmentCtl.RetryTrackingEmail)
	api.POST("/webhooks/easyship", webhookCtl.Easyship)

	return &ctlEnv{db: db, router: r}
}

// seed 完整发货地 + 订单 O1
func (e *ctlEnv) seed(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPut, "/api/shipping/settings", map[string]any{
		"name": "Shop Warehouse", "street1": "100 Main St", "city": "Austin", "state": "TX",
		"postal_code": "73301", "country_code": "US", "phone": "+1 512 555 0100",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, e.db.Create(&model.Order{
		ID:            "O1",
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		ShipTo: model.Address{
			Street1: "1 Market St", City: "San Francisco", State: "CA",
			PostalCode: "94105", CountryCode: "US", Phone: "+1 415 555 0199",
		},
		Currency: "USD",
		Items:    []model.OrderItem{{Description: "Ceramic mug", Quantity: 1, UnitPriceCents: 1800}},
	}).Error)
}

func (e *ctlEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data          json.RawMessage `json:"data"`
	Message       string          `json:"message"`
	Code          string          `json:"code"`
	MissingFields []string        `json:"missing_fields"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

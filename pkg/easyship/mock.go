package easyship

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// mockNamespace 生成确定性 ID 的命名空间
var mockNamespace = uuid.MustParse("6f1c1d8e-2b7a-4d8e-9a51-8e2f0c4b7a10")

// mockService Mock 模式下的固定物流方案
type mockService struct {
	ID       string
	Umbrella string
	Name     string
	Base     float64 // 首重价格 (USD)
	PerKg    float64
	MinDays  int
	MaxDays  int
}

var mockServices = []mockService{
	{ID: "mock-usps-priority", Umbrella: "USPS", Name: "USPS Priority Mail", Base: 7.85, PerKg: 1.10, MinDays: 1, MaxDays: 3},
	{ID: "mock-ups-ground", Umbrella: "UPS", Name: "UPS Ground", Base: 9.40, PerKg: 1.25, MinDays: 1, MaxDays: 5},
	{ID: "mock-fedex-home", Umbrella: "FedEx", Name: "FedEx Home Delivery", Base: 10.15, PerKg: 1.30, MinDays: 1, MaxDays: 5},
	{ID: "mock-dhl-express", Umbrella: "DHL", Name: "DHL Express Worldwide", Base: 24.90, PerKg: 3.00, MinDays: 2, MaxDays: 4},
}

type mockShipment struct {
	service   mockService
	total     float64
	purchased bool
}

// MockClient 不发网络请求，返回确定性的报价与面单
type MockClient struct {
	mu        sync.Mutex
	shipments map[string]*mockShipment
}

// NewMockClient 创建 Mock 客户端
func NewMockClient() *MockClient {
	return &MockClient{shipments: make(map[string]*mockShipment)}
}

func mockPrice(s mockService, weightKg float64) float64 {
	return round(s.Base+s.PerKg*weightKg, 2)
}

func parcelWeight(parcels []Parcel) float64 {
	total := 0.0
	for _, p := range parcels {
		total += p.TotalActualWeight
	}
	return total
}

// GetRates 返回固定物流方案，价格随重量变化
func (m *MockClient) GetRates(ctx context.Context, req *RateRequest) (any, error) {
	weightKg := parcelWeight(req.Parcels)
	rates := make([]any, 0, len(mockServices))
	for _, s := range mockServices {
		rates = append(rates, map[string]any{
			"courier_service": map[string]any{
				"id":            s.ID,
				"name":          s.Name,
				"umbrella_name": s.Umbrella,
			},
			"total_charge":      mockPrice(s, weightKg),
			"currency":          "USD",
			"min_delivery_time": float64(s.MinDays),
			"max_delivery_time": float64(s.MaxDays),
		})
	}
	return map[string]any{"rates": rates}, nil
}

// CreateShipment 根据请求内容生成确定性运单号
func (m *MockClient) CreateShipment(ctx context.Context, req *CreateShipmentRequest) (any, error) {
	service, ok := findMockService(req.CourierSelection.SelectedCourierID)
	if !ok {
		return nil, &APIError{StatusCode: http.StatusUnprocessableEntity, Message: "courier not available: " + req.CourierSelection.SelectedCourierID}
	}

	payload, _ := json.Marshal(req)
	id := "ESMOCK" + strings.ToUpper(strings.ReplaceAll(uuid.NewSHA1(mockNamespace, payload).String(), "-", "")[:10])

	weightKg := parcelWeight(req.Parcels)
	if req.ShippingSettings.Units.Weight == "lb" {
		weightKg = PoundsToKg(weightKg)
	}

	m.mu.Lock()
	m.shipments[id] = &mockShipment{service: service, total: mockPrice(service, weightKg)}
	m.mu.Unlock()

	return map[string]any{
		"shipment": map[string]any{
			"easyship_shipment_id": id,
			"label_state":          "not_created",
		},
	}, nil
}

// PurchaseLabel 生成面单，运单号在之后查询运单时才出现
func (m *MockClient) PurchaseLabel(ctx context.Context, shipmentID, action string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shipments[shipmentID]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "shipment not found"}
	}
	s.purchased = true
	return m.shipmentDoc(shipmentID, s, false), nil
}

// GetShipment 已购买的运单返回运单号
func (m *MockClient) GetShipment(ctx context.Context, shipmentID string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shipments[shipmentID]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "shipment not found"}
	}
	return m.shipmentDoc(shipmentID, s, s.purchased), nil
}

func (m *MockClient) shipmentDoc(id string, s *mockShipment, withTracking bool) map[string]any {
	shipment := map[string]any{
		"easyship_shipment_id": id,
		"label_state":          "not_created",
		"courier": map[string]any{
			"id":            s.service.ID,
			"name":          s.service.Name,
			"umbrella_name": s.service.Umbrella,
		},
		"total_charge": s.total,
		"currency":     "USD",
	}
	if s.purchased {
		shipment["label_state"] = "generated"
		shipment["label"] = map[string]any{
			"id":  "LBL" + id[len("ESMOCK"):],
			"url": fmt.Sprintf("https://mock.easyship.local/labels/%s.pdf", id),
		}
	}
	if withTracking {
		digits := uuid.NewSHA1(mockNamespace, []byte("tracking:"+id)).ID()
		shipment["tracking_number"] = fmt.Sprintf("MOCK%010d", digits)
	}
	return map[string]any{"shipment": shipment}
}

func findMockService(id string) (mockService, bool) {
	for _, s := range mockServices {
		if s.ID == id {
			return s, true
		}
	}
	return mockService{}, false
}

var (
	_ Provider = (*Client)(nil)
	_ Provider = (*MockClient)(nil)
)

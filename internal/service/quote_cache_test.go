package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/pkg/easyship"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func baseSignature() SignatureInputs {
	return SignatureInputs{
		Destination: model.Address{
			Street1: "1 Market St", City: "San Francisco", State: "CA",
			PostalCode: "94105", CountryCode: "US",
		},
		Dimensions:      model.ParcelDimensions{LengthIn: 12, WidthIn: 9, HeightIn: 6, WeightLb: 2},
		AllowedCarriers: []string{"USPS", "FedEx"},
	}
}

func TestSignatureInputs_Signature(t *testing.T) {
	base := baseSignature().Signature()
	assert.Len(t, base, 64)

	t.Run("大小写与空白不影响", func(t *testing.T) {
		in := baseSignature()
		in.Destination.Street1 = "  1  market st "
		in.Destination.City = "san francisco"
		in.Destination.CountryCode = "us"
		assert.Equal(t, base, in.Signature())
	})

	t.Run("物流商顺序和拼写不影响", func(t *testing.T) {
		in := baseSignature()
		in.AllowedCarriers = []string{"Fed Ex", "usps", "USPS"}
		assert.Equal(t, base, in.Signature())
	})

	t.Run("收件人姓名和电话不参与", func(t *testing.T) {
		in := baseSignature()
		in.Destination.Name = "Someone Else"
		in.Destination.Phone = "123"
		assert.Equal(t, base, in.Signature())
	})

	t.Run("邮编变化", func(t *testing.T) {
		in := baseSignature()
		in.Destination.PostalCode = "94107"
		assert.NotEqual(t, base, in.Signature())
	})

	t.Run("尺寸变化", func(t *testing.T) {
		in := baseSignature()
		in.Dimensions.WeightLb = 2.5
		assert.NotEqual(t, base, in.Signature())
	})

	t.Run("允许列表变化", func(t *testing.T) {
		in := baseSignature()
		in.AllowedCarriers = []string{"USPS"}
		assert.NotEqual(t, base, in.Signature())
	})
}

func TestQuoteCache_Idempotence(t *testing.T) {
	env := newTestEnv(t)
	shipment := env.seedOrder(t)
	ctx := context.Background()

	first, err := env.labels.Quote(ctx, shipment.ID, "")
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.NotEmpty(t, first.Rates)
	require.NotNil(t, first.ExpiresAt)
	assert.Equal(t, env.clock.Add(30*time.Minute), first.ExpiresAt.UTC())

	env.clock = env.clock.Add(10 * time.Minute)
	second, err := env.labels.Quote(ctx, shipment.ID, "")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.ShipmentTempKey, second.ShipmentTempKey)
	assert.Equal(t, rateIDs(first.Rates), rateIDs(second.Rates))
	assert.Equal(t, 1, env.provider.rateCalls)

	t.Run("过期后重新请求", func(t *testing.T) {
		env.clock = env.clock.Add(25 * time.Minute)
		third, err := env.labels.Quote(ctx, shipment.ID, "")
		require.NoError(t, err)
		assert.False(t, third.FromCache)
		assert.Equal(t, first.ShipmentTempKey, third.ShipmentTempKey)
		assert.Equal(t, 2, env.provider.rateCalls)
	})

	t.Run("修改邮编绕过缓存", func(t *testing.T) {
		require.NoError(t, env.db.Model(&model.Order{}).Where("id = ?", "O1").
			Update("ship_to_postal_code", "94107").Error)

		changed, err := env.labels.Quote(ctx, shipment.ID, "")
		require.NoError(t, err)
		assert.False(t, changed.FromCache)
		assert.NotEqual(t, first.ShipmentTempKey, changed.ShipmentTempKey)
		assert.Equal(t, 3, env.provider.rateCalls)
	})
}

func TestQuoteCache_EmptyResultsNotCached(t *testing.T) {
	t.Run("无可用物流方案", func(t *testing.T) {
		env := newTestEnv(t)
		shipment := env.seedOrder(t)
		env.provider.ratesErr = easyship.ErrNoShippingSolutions

		for i := 0; i < 2; i++ {
			resp, err := env.labels.Quote(context.Background(), shipment.ID, "")
			require.NoError(t, err)
			assert.Empty(t, resp.Rates)
			assert.NotEmpty(t, resp.Warning)
			assert.Equal(t, CodeNoRates, resp.Code)
			assert.Empty(t, resp.SelectedRateID)
			assert.Nil(t, resp.ExpiresAt)
		}
		assert.Equal(t, 2, env.provider.rateCalls)

		var count int64
		env.db.Model(&model.RateQuoteCache{}).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("全部被允许列表过滤", func(t *testing.T) {
		env := newTestEnv(t, "Royal Mail")
		shipment := env.seedOrder(t)

		resp, err := env.labels.Quote(context.Background(), shipment.ID, "")
		require.NoError(t, err)
		assert.Empty(t, resp.Rates)
		assert.Equal(t, 4, resp.UpstreamCount)
		assert.NotEmpty(t, resp.Warning)
		assert.Equal(t, CodeNoQuotes, resp.Code)

		_, err = env.labels.Quote(context.Background(), shipment.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 2, env.provider.rateCalls)
	})
}

func TestQuoteCache_UpstreamError(t *testing.T) {
	env := newTestEnv(t)
	shipment := env.seedOrder(t)
	env.provider.ratesErr = &easyship.APIError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}

	_, err := env.labels.Quote(context.Background(), shipment.ID, "")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUpstreamError))

	var apiErr *easyship.APIError
	assert.True(t, errors.As(err, &apiErr))
}

// brokenStore 读写都失败的缓存存储
type brokenStore struct {
	upserts int
}

func (s *brokenStore) FindValid(ctx context.Context, orderID, signatureHash string, now time.Time) (*model.RateQuoteCache, error) {
	return nil, errors.New("connection refused")
}

func (s *brokenStore) Upsert(ctx context.Context, entry *model.RateQuoteCache) error {
	s.upserts++
	return errors.New("connection refused")
}

func TestQuoteCache_StoreFailureFallsBackToLive(t *testing.T) {
	store := &brokenStore{}
	provider := newFakeProvider()
	cache := NewQuoteCache(store, provider, NewRateNormalizer("USD"), nil, time.Minute, nil, zap.NewNop())

	req := &easyship.RateRequest{Parcels: []easyship.Parcel{{TotalActualWeight: 1}}}
	result, err := cache.GetOrCreate(context.Background(), "O1", baseSignature(), req)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Len(t, result.Rates, 4)
	assert.Equal(t, 1, store.upserts)
	assert.Equal(t, 1, provider.rateCalls)
}

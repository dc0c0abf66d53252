package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackingEmailService_ShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	shipment := env.seedOrder(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		orderID    string
		shipmentID int64
		prev, cur  string
		reason     string
	}{
		{"已有运单号", "O1", shipment.ID, "1Z000", "1Z999", SkipNotFirstAssignment},
		{"新运单号为空", "O1", shipment.ID, "", "  ", SkipEmptyTrackingNumber},
		{"包裹不存在", "O1", 9999, "", "1Z999", SkipShipmentNotFound},
		{"订单不存在", "NOPE", shipment.ID, "", "1Z999", SkipCustomerEmailMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := env.tracking.MaybeSend(ctx, tc.orderID, tc.shipmentID, tc.prev, tc.cur)
			require.NoError(t, err)
			assert.False(t, res.Sent)
			assert.Equal(t, tc.reason, res.SkippedReason)
		})
	}

	t.Run("客户邮箱为空", func(t *testing.T) {
		require.NoError(t, env.db.Model(&model.Order{}).Where("id = ?", "O1").
			Update("customer_email", "").Error)
		t.Cleanup(func() {
			env.db.Model(&model.Order{}).Where("id = ?", "O1").Update("customer_email", "jane@example.com")
		})

		res, err := env.tracking.MaybeSend(ctx, "O1", shipment.ID, "", "1Z999")
		require.NoError(t, err)
		assert.Equal(t, SkipCustomerEmailMissing, res.SkippedReason)
	})

	assert.Zero(t, env.sender.count())
}

func TestTrackingEmailService_SendOnce(t *testing.T) {
	env := newTestEnv(t)
	shipment := env.seedOrder(t)
	ctx := context.Background()
	require.NoError(t, env.shipRepo.UpdateFields(ctx, shipment.ID, map[string]interface{}{"carrier": "USPS"}))

	res, err := env.tracking.MaybeSend(ctx, "O1", shipment.ID, "", "9400111899")
	require.NoError(t, err)
	assert.True(t, res.Sent)

	require.Equal(t, 1, env.sender.count())
	msg := env.sender.sent[0]
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Contains(t, msg.TextBody, "9400111899")
	assert.Contains(t, msg.TextBody, "tools.usps.com")

	again, err := env.tracking.MaybeSend(ctx, "O1", shipment.ID, "", "9400111899")
	require.NoError(t, err)
	assert.False(t, again.Sent)
	assert.Equal(t, SkipAlreadySent, again.SkippedReason)
	assert.Equal(t, 1, env.sender.count())
}

func TestTrackingEmailService_ConcurrentExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	shipment := env.seedOrder(t)

	const workers = 8
	results := make([]NotifyResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = env.tracking.MaybeSend(context.Background(), "O1", shipment.ID, "", "1Z999")
		}(i)
	}
	close(start)
	wg.Wait()

	sent := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if results[i].Sent {
			sent++
			continue
		}
		assert.Contains(t, []string{SkipAlreadyClaimed, SkipAlreadySent}, results[i].SkippedReason)
	}
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, env.sender.count())
}

func TestTrackingEmailService_ReleaseOnFailure(t *testing.T) {
	env := newTestEnv(t)
	shipment := env.seedOrder(t)
	ctx := context.Background()
	env.sender.failures = 1

	res, err := env.tracking.MaybeSend(ctx, "O1", shipment.ID, "", "1Z999")
	require.Error(t, err)
	assert.False(t, res.Sent)

	reloaded, err := env.shipRepo.GetByID(ctx, shipment.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.TrackingEmailSentAt, "发送失败后占位已释放")

	res, err = env.tracking.MaybeSend(ctx, "O1", shipment.ID, "", "1Z999")
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, 1, env.sender.count())

	reloaded, err = env.shipRepo.GetByID(ctx, shipment.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.TrackingEmailSentAt)
}

// staleClaimRepo 前 misses 次抢占直接返回未命中，不写库，模拟条件写入与释放交错
type staleClaimRepo struct {
	repository.OrderShipmentRepository

	mu     sync.Mutex
	misses int
	claims int
}

func (r *staleClaimRepo) ClaimTrackingEmail(ctx context.Context, id int64, now time.Time) (bool, error) {
	r.mu.Lock()
	r.claims++
	miss := r.misses > 0
	if miss {
		r.misses--
	}
	r.mu.Unlock()
	if miss {
		return false, nil
	}
	return r.OrderShipmentRepository.ClaimTrackingEmail(ctx, id, now)
}

func TestTrackingEmailService_LostClaim(t *testing.T) {
	env := newTestEnv(t)
	shipment := env.seedOrder(t)
	ctx := context.Background()
	orderRepo := repository.NewOrderRepository(env.db)

	t.Run("占位已释放时重新抢占一次", func(t *testing.T) {
		repo := &staleClaimRepo{OrderShipmentRepository: env.shipRepo, misses: 1}
		svc := NewTrackingEmailService(repo, orderRepo, env.sender, nil, nil)

		res, err := svc.MaybeSend(ctx, "O1", shipment.ID, "", "1Z999")
		require.NoError(t, err)
		assert.True(t, res.Sent)
		assert.Equal(t, 2, repo.claims)
		assert.Equal(t, 1, env.sender.count())
	})

	t.Run("重试后仍未命中", func(t *testing.T) {
		other, err := env.shipments.CreateShipment(ctx, "O1", ShipmentInput{BoxPresetID: shipment.BoxPresetID})
		require.NoError(t, err)
		repo := &staleClaimRepo{OrderShipmentRepository: env.shipRepo, misses: 2}
		svc := NewTrackingEmailService(repo, orderRepo, env.sender, nil, nil)

		res, err := svc.MaybeSend(ctx, "O1", other.ID, "", "1Z998")
		require.NoError(t, err)
		assert.False(t, res.Sent)
		assert.Equal(t, SkipAlreadyClaimed, res.SkippedReason)
		assert.Equal(t, 2, repo.claims)
		assert.Equal(t, 1, env.sender.count())
	})

	t.Run("他人持有占位", func(t *testing.T) {
		other, err := env.shipments.CreateShipment(ctx, "O1", ShipmentInput{BoxPresetID: shipment.BoxPresetID})
		require.NoError(t, err)
		repo := &staleClaimRepo{OrderShipmentRepository: env.shipRepo, misses: 1}
		svc := NewTrackingEmailService(repo, orderRepo, env.sender, nil, nil)

		// 首次读取之后、抢占之前被其他请求占位
		won, err := env.shipRepo.ClaimTrackingEmail(ctx, other.ID, env.clock)
		require.NoError(t, err)
		require.True(t, won)
		res, err := svc.claimAndDeliver(ctx, "O1", other.ID, "jane@example.com", "1Z997", true)
		require.NoError(t, err)
		assert.False(t, res.Sent)
		assert.Equal(t, SkipAlreadyClaimed, res.SkippedReason)
		assert.Equal(t, 1, repo.claims)
	})
}

func TestTrackingURL(t *testing.T) {
	assert.Contains(t, TrackingURL("USPS", "94001"), "usps.com")
	assert.Contains(t, TrackingURL("United Parcel Service", "1Z9"), "ups.com")
	assert.Contains(t, TrackingURL("FedEx Ground", "77"), "fedex.com")
	assert.Contains(t, TrackingURL("DHL Express", "55"), "dhl.com")
	assert.Empty(t, TrackingURL("Acme Couriers", "1"))
}

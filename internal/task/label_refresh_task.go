package task

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/monitoring"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ==================== 外部依赖接口 ====================

// CandidateLister 待刷新包裹来源
type CandidateLister interface {
	ListRefreshCandidates(ctx context.Context, limit int) ([]model.OrderShipment, error)
}

// LabelRefresher 从服务商刷新单个包裹的面单
type LabelRefresher interface {
	Refresh(ctx context.Context, shipmentID int64) (*model.OrderShipment, error)
}

// ==================== LabelRefreshTask 面单刷新任务 ====================

// LabelRefreshTask 定时拉取已创建运单但还没有运单号的包裹
type LabelRefreshTask struct {
	shipments CandidateLister
	refresher LabelRefresher
	cron      *cron.Cron
	spec      string
	metrics   *monitoring.Metrics
	logger    *zap.Logger

	concurrencyLimit int
	batchSize        int
	jobTimeout       time.Duration
}

// NewLabelRefreshTask 创建面单刷新任务
func NewLabelRefreshTask(
	shipments CandidateLister,
	refresher LabelRefresher,
	spec string,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *LabelRefreshTask {
	if spec == "" {
		spec = "0 */10 * * * *"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LabelRefreshTask{
		shipments:        shipments,
		refresher:        refresher,
		cron:             cron.New(cron.WithSeconds()),
		spec:             spec,
		metrics:          metrics,
		logger:           logger,
		concurrencyLimit: 5,
		batchSize:        100,
		jobTimeout:       5 * time.Minute,
	}
}

// SetConcurrency 设置并发数与单批数量
func (t *LabelRefreshTask) SetConcurrency(limit, batchSize int) {
	if limit > 0 {
		t.concurrencyLimit = limit
	}
	if batchSize > 0 {
		t.batchSize = batchSize
	}
}

// Start 启动定时任务
func (t *LabelRefreshTask) Start() error {
	_, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.jobTimeout)
		defer cancel()
		t.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule label refresh %q: %w", t.spec, err)
	}

	t.cron.Start()
	t.logger.Info("面单刷新任务已启动", zap.String("cron", t.spec))
	return nil
}

// Stop 停止定时任务并等待正在执行的批次结束
func (t *LabelRefreshTask) Stop() {
	<-t.cron.Stop().Done()
	t.logger.Info("面单刷新任务已停止")
}

// RefreshSummary 单批刷新结果
type RefreshSummary struct {
	Total   int
	Success int
	Failed  int
}

// RunOnce 执行一批刷新，单个包裹失败不影响其他包裹
func (t *LabelRefreshTask) RunOnce(ctx context.Context) RefreshSummary {
	t.metrics.RecordRefreshBatch()

	shipments, err := t.shipments.ListRefreshCandidates(ctx, t.batchSize)
	if err != nil {
		t.logger.Error("获取待刷新包裹失败", zap.Error(err))
		return RefreshSummary{}
	}
	if len(shipments) == 0 {
		return RefreshSummary{}
	}

	t.logger.Info("开始刷新面单", zap.Int("count", len(shipments)))

	var success, failed int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrencyLimit)

	for _, shipment := range shipments {
		if gctx.Err() != nil {
			t.logger.Warn("面单刷新超时停止")
			break
		}
		id := shipment.ID
		g.Go(func() error {
			if _, err := t.refresher.Refresh(gctx, id); err != nil {
				t.logger.Warn("包裹面单刷新失败", zap.Int64("shipment_id", id), zap.Error(err))
				atomic.AddInt32(&failed, 1)
				return nil
			}
			atomic.AddInt32(&success, 1)
			return nil
		})
	}
	_ = g.Wait()

	summary := RefreshSummary{Total: len(shipments), Success: int(success), Failed: int(failed)}
	t.logger.Info("面单刷新完成",
		zap.Int("total", summary.Total),
		zap.Int("success", summary.Success),
		zap.Int("failed", summary.Failed))
	return summary
}

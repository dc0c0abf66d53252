package task

import (
	"context"
	"errors"

	"parcel_ship_v1_202610/internal/monitoring"

	"go.uber.org/zap"
)

// ErrTaskDisabled 任务未启用
var ErrTaskDisabled = errors.New("task disabled")

// ==================== TaskManager 后台任务管理器 ====================

// TaskManager 统一管理面单刷新与报价清理
type TaskManager struct {
	labelRefresh *LabelRefreshTask
	quoteCleanup *QuoteCleanupTask
	logger       *zap.Logger
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	Shipments CandidateLister
	Refresher LabelRefresher
	Quotes    ExpiredQuoteDeleter // 为 nil 时不清理（例如 Redis 自带过期）
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	LabelRefreshEnabled     bool
	LabelRefreshCron        string
	LabelRefreshConcurrency int
	LabelRefreshBatchSize   int
	QuoteCleanupCron        string
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		LabelRefreshEnabled:     true,
		LabelRefreshCron:        "0 */10 * * * *",
		LabelRefreshConcurrency: 5,
		LabelRefreshBatchSize:   100,
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tm := &TaskManager{logger: logger}

	if cfg.LabelRefreshEnabled && deps.Refresher != nil && deps.Shipments != nil {
		tm.labelRefresh = NewLabelRefreshTask(deps.Shipments, deps.Refresher, cfg.LabelRefreshCron, deps.Metrics, logger.Named("label_refresh"))
		tm.labelRefresh.SetConcurrency(cfg.LabelRefreshConcurrency, cfg.LabelRefreshBatchSize)
	}

	if deps.Quotes != nil {
		tm.quoteCleanup = NewQuoteCleanupTask(deps.Quotes, cfg.QuoteCleanupCron, logger.Named("quote_cleanup"))
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务，任一 cron 表达式非法时返回错误
func (tm *TaskManager) Start() error {
	if tm.labelRefresh != nil {
		if err := tm.labelRefresh.Start(); err != nil {
			return err
		}
	}
	if tm.quoteCleanup != nil {
		if err := tm.quoteCleanup.Start(); err != nil {
			return err
		}
	}
	tm.logger.Info("后台任务已全部启动")
	return nil
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	if tm.labelRefresh != nil {
		tm.labelRefresh.Stop()
	}
	if tm.quoteCleanup != nil {
		tm.quoteCleanup.Stop()
	}
	tm.logger.Info("后台任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerLabelRefresh 立即执行一批面单刷新
func (tm *TaskManager) TriggerLabelRefresh(ctx context.Context) (RefreshSummary, error) {
	if tm.labelRefresh == nil {
		return RefreshSummary{}, ErrTaskDisabled
	}
	return tm.labelRefresh.RunOnce(ctx), nil
}

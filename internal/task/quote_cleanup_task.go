package task

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExpiredQuoteDeleter 过期报价清理
type ExpiredQuoteDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// QuoteCleanupTask 定时删除过期的报价缓存
type QuoteCleanupTask struct {
	store  ExpiredQuoteDeleter
	cron   *cron.Cron
	spec   string
	logger *zap.Logger
	now    func() time.Time
}

func NewQuoteCleanupTask(store ExpiredQuoteDeleter, spec string, logger *zap.Logger) *QuoteCleanupTask {
	if spec == "" {
		spec = "0 15 * * * *" // 每小时
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteCleanupTask{
		store:  store,
		cron:   cron.New(cron.WithSeconds()),
		spec:   spec,
		logger: logger,
		now:    time.Now,
	}
}

// Start 启动定时任务
func (t *QuoteCleanupTask) Start() error {
	_, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = t.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule quote cleanup %q: %w", t.spec, err)
	}
	t.cron.Start()
	return nil
}

// Stop 停止定时任务
func (t *QuoteCleanupTask) Stop() {
	<-t.cron.Stop().Done()
}

// RunOnce 删除已过期的报价
func (t *QuoteCleanupTask) RunOnce(ctx context.Context) (int64, error) {
	n, err := t.store.DeleteExpired(ctx, t.now())
	if err != nil {
		t.logger.Error("清理过期报价失败", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		t.logger.Info("已清理过期报价", zap.Int64("count", n))
	}
	return n, nil
}

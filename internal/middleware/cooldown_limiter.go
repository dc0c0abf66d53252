package middleware

import (
	"fmt"
	"sync"
	"time"
)

// ==================== CooldownLimiter 冷却限流器 ====================

// CooldownLimiter 按 key 记录最近一次执行时间
// 防止同一包裹被频繁刷新导致服务商限流
type CooldownLimiter struct {
	locks sync.Map // key -> *lockEntry
	now   func() time.Time
}

// lockEntry 锁条目
type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

func NewCooldownLimiter() *CooldownLimiter {
	return &CooldownLimiter{now: time.Now}
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

// Check 检查是否允许执行，允许时记录执行时间
func (r *CooldownLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(entry.lastTime)
	if !entry.lastTime.IsZero() && elapsed < interval {
		return CheckResult{Allowed: false, RetryAfter: interval - elapsed}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// Reset 重置指定 key，下游失败时调用，允许立即重试
func (r *CooldownLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== Key 生成 ====================

// Action 受限操作
type Action string

const (
	ActionRefresh       Action = "refresh"
	ActionTrackingEmail Action = "tracking_email"
)

// ShipmentKey 包裹级 Key，如 shipment:12:refresh
func ShipmentKey(shipmentID string, action Action) string {
	return fmt.Sprintf("shipment:%s:%s", shipmentID, action)
}

// DefaultIntervals 默认冷却间隔
var DefaultIntervals = map[Action]time.Duration{
	ActionRefresh:       10 * time.Second,
	ActionTrackingEmail: time.Minute,
}

// GetInterval 获取操作的默认间隔
func GetInterval(action Action) time.Duration {
	if interval, ok := DefaultIntervals[action]; ok {
		return interval
	}
	return 10 * time.Second
}

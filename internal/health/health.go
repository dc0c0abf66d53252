package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const checkTimeout = 3 * time.Second

// Checker 存活与就绪检查
type Checker struct {
	handler healthcheck.Handler
}

// NewChecker 数据库为必选就绪项，redis 为 nil 时跳过
func NewChecker(db *gorm.DB, rdb *redis.Client) *Checker {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	h.AddReadinessCheck("database", DatabaseCheck(db))
	if rdb != nil {
		h.AddReadinessCheck("redis", RedisCheck(rdb))
	}
	return &Checker{handler: h}
}

// LiveHandler /live
func (c *Checker) LiveHandler() http.Handler {
	return http.HandlerFunc(c.handler.LiveEndpoint)
}

// ReadyHandler /ready
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(c.handler.ReadyEndpoint)
}

// DatabaseCheck 数据库 Ping
func DatabaseCheck(db *gorm.DB) healthcheck.Check {
	return func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return sqlDB.PingContext(ctx)
	}
}

// RedisCheck Redis Ping
func RedisCheck(rdb *redis.Client) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return rdb.Ping(ctx).Err()
	}
}

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SHIPDESK_EASYSHIP_MOCK",
	"SHIPDESK_EASYSHIP_API_KEY",
	"SHIPDESK_EASYSHIP_TIMEOUT",
	"SHIPDESK_EASYSHIP_PURCHASE_ACTIONS",
	"SHIPDESK_SHIPPING_ALLOWED_CARRIERS",
	"SHIPDESK_SHIPPING_QUOTE_TTL",
	"SHIPDESK_QUOTE_CACHE_BACKEND",
	"SHIPDESK_DATABASE_DRIVER",
	"SHIPDESK_SERVER_PORT",
}

// withCleanEnv 清空相关环境变量，测试结束后恢复
func withCleanEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string)
	for _, key := range envKeys {
		original[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	t.Cleanup(func() {
		for key, value := range original {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("默认配置", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("SHIPDESK_EASYSHIP_MOCK", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.True(t, cfg.Easyship.Mock)
		assert.Equal(t, 20*time.Second, cfg.Easyship.Timeout)
		assert.Equal(t, 2, cfg.Easyship.RateRetries)
		assert.Equal(t, []string{"purchase", "buy", "label"}, cfg.Easyship.PurchaseActions)
		assert.Empty(t, cfg.Shipping.AllowedCarriers)
		assert.Equal(t, 30*time.Minute, cfg.Shipping.QuoteTTL)
		assert.Equal(t, "USD", cfg.Shipping.Currency)
		assert.Equal(t, "db", cfg.QuoteCache.Backend)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("环境变量覆盖", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("SHIPDESK_EASYSHIP_API_KEY", "sand_key")
		os.Setenv("SHIPDESK_EASYSHIP_TIMEOUT", "15s")
		os.Setenv("SHIPDESK_EASYSHIP_PURCHASE_ACTIONS", "buy, label")
		os.Setenv("SHIPDESK_SHIPPING_ALLOWED_CARRIERS", "USPS, Fed Ex")
		os.Setenv("SHIPDESK_SHIPPING_QUOTE_TTL", "10m")
		os.Setenv("SHIPDESK_QUOTE_CACHE_BACKEND", "redis")
		os.Setenv("SHIPDESK_DATABASE_DRIVER", "sqlite")
		os.Setenv("SHIPDESK_SERVER_PORT", "9090")

		cfg, err := Load()
		require.NoError(t, err)

		assert.False(t, cfg.Easyship.Mock)
		assert.Equal(t, "sand_key", cfg.Easyship.APIKey)
		assert.Equal(t, 15*time.Second, cfg.Easyship.Timeout)
		assert.Equal(t, []string{"buy", "label"}, cfg.Easyship.PurchaseActions)
		assert.Equal(t, []string{"USPS", "Fed Ex"}, cfg.Shipping.AllowedCarriers)
		assert.Equal(t, 10*time.Minute, cfg.Shipping.QuoteTTL)
		assert.Equal(t, "redis", cfg.QuoteCache.Backend)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "9090", cfg.Server.Port)
	})

	t.Run("缺少 API Key 且未开启 Mock", func(t *testing.T) {
		withCleanEnv(t)

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("超时超出上限", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("SHIPDESK_EASYSHIP_MOCK", "true")
		os.Setenv("SHIPDESK_EASYSHIP_TIMEOUT", "5m")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("非法缓存后端", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("SHIPDESK_EASYSHIP_MOCK", "true")
		os.Setenv("SHIPDESK_QUOTE_CACHE_BACKEND", "memcached")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a , ,b "))
	assert.Empty(t, parseList(""))
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig HTTP 服务监听配置
type ServerConfig struct {
	Port            string        // 监听端口，默认 8080
	Mode            string        // gin 模式: debug / release / test
	ShutdownTimeout time.Duration // 优雅关闭等待时间
}

// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	Driver          string // postgres 或 sqlite
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool // 是否打印 SQL
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string
	Development bool
	File        string // 为空时只输出到控制台
}

// RedisConfig Redis 配置（仅 quote_cache.backend=redis 时使用）
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// EasyshipConfig 物流服务商 API 配置
type EasyshipConfig struct {
	BaseURL           string
	APIKey            string
	Mock              bool          // 跳过所有网络调用，返回确定性的模拟数据
	Debug             bool          // 打印请求/响应
	Timeout           time.Duration // 单次请求超时
	RateRetries       int           // 报价请求重试次数（只读请求可重试）
	RequestsPerSecond float64       // 出站请求限速
	PurchaseActions   []string      // 购买面单候选端点，按顺序尝试
}

// ShippingConfig 发货业务配置
type ShippingConfig struct {
	AllowedCarriers  []string      // 允许的物流商，空表示全部允许
	QuoteTTL         time.Duration // 报价缓存有效期
	ItemCategory     string        // 申报物品默认类目
	Currency         string        // 申报币种
	PurchaseClaimTTL time.Duration // 购买占位超时，超时后视为失效
}

// QuoteCacheConfig 报价缓存存储配置
type QuoteCacheConfig struct {
	Backend string // db 或 redis
}

// SMTPConfig 发信配置
type SMTPConfig struct {
	Addr     string
	From     string
	Username string
	Password string
	Disabled bool // 关闭后只记录日志不发信
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string
}

// TaskConfig 定时任务配置
type TaskConfig struct {
	LabelRefreshEnabled     bool
	LabelRefreshCron        string
	LabelRefreshConcurrency int
	LabelRefreshBatchSize   int
}

// Config 系统配置根结构体
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Log        LogConfig
	Redis      RedisConfig
	Easyship   EasyshipConfig
	Shipping   ShippingConfig
	QuoteCache QuoteCacheConfig
	SMTP       SMTPConfig
	CORS       CORSConfig
	Tasks      TaskConfig
}

// Load 从环境变量和 .env 文件加载配置
//
// 优先级: 系统环境变量 > .env > 默认值
// 环境变量前缀: SHIPDESK_，例如 SHIPDESK_EASYSHIP_API_KEY
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("shipdesk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=shipdesk port=5432 sslmode=disable TimeZone=UTC")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_sql", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("easyship.base_url", "https://public-api.easyship.com/2024-09")
	v.SetDefault("easyship.api_key", "")
	v.SetDefault("easyship.mock", false)
	v.SetDefault("easyship.debug", false)
	v.SetDefault("easyship.timeout", "20s")
	v.SetDefault("easyship.rate_retries", 2)
	v.SetDefault("easyship.requests_per_second", 5)
	v.SetDefault("easyship.purchase_actions", "purchase,buy,label")
	v.SetDefault("shipping.allowed_carriers", "")
	v.SetDefault("shipping.quote_ttl", "30m")
	v.SetDefault("shipping.item_category", "merchandise")
	v.SetDefault("shipping.currency", "USD")
	v.SetDefault("shipping.purchase_claim_ttl", "2m")
	v.SetDefault("quote_cache.backend", "db")
	v.SetDefault("smtp.addr", "localhost:25")
	v.SetDefault("smtp.from", "shipping@localhost")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.disabled", true)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("tasks.label_refresh_enabled", true)
	v.SetDefault("tasks.label_refresh_cron", "0 */10 * * * *")
	v.SetDefault("tasks.label_refresh_concurrency", 5)
	v.SetDefault("tasks.label_refresh_batch_size", 100)

	shutdownTimeout, err := time.ParseDuration(v.GetString("server.shutdown_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid server.shutdown_timeout: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = time.Hour
	}

	timeout, err := time.ParseDuration(v.GetString("easyship.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid easyship.timeout: %w", err)
	}
	if timeout <= 0 || timeout > 60*time.Second {
		return nil, fmt.Errorf("easyship.timeout must be within (0, 60s], got %s", timeout)
	}

	quoteTTL, err := time.ParseDuration(v.GetString("shipping.quote_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid shipping.quote_ttl: %w", err)
	}

	claimTTL, err := time.ParseDuration(v.GetString("shipping.purchase_claim_ttl"))
	if err != nil {
		claimTTL = 2 * time.Minute
	}

	backend := strings.ToLower(v.GetString("quote_cache.backend"))
	if backend != "db" && backend != "redis" {
		return nil, fmt.Errorf("quote_cache.backend must be db or redis, got %q", backend)
	}

	driver := strings.ToLower(v.GetString("database.driver"))
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("database.driver must be postgres or sqlite, got %q", driver)
	}

	actions := parseList(v.GetString("easyship.purchase_actions"))
	if len(actions) == 0 {
		actions = []string{"purchase", "buy", "label"}
	}

	origins := parseList(v.GetString("cors.allowed_origins"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	concurrency := v.GetInt("tasks.label_refresh_concurrency")
	if concurrency <= 0 {
		concurrency = 5
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			Mode:            v.GetString("server.mode"),
			ShutdownTimeout: shutdownTimeout,
		},
		Database: DatabaseConfig{
			Driver:          driver,
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
			LogSQL:          v.GetBool("database.log_sql"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Easyship: EasyshipConfig{
			BaseURL:           strings.TrimRight(v.GetString("easyship.base_url"), "/"),
			APIKey:            v.GetString("easyship.api_key"),
			Mock:              v.GetBool("easyship.mock"),
			Debug:             v.GetBool("easyship.debug"),
			Timeout:           timeout,
			RateRetries:       v.GetInt("easyship.rate_retries"),
			RequestsPerSecond: v.GetFloat64("easyship.requests_per_second"),
			PurchaseActions:   actions,
		},
		Shipping: ShippingConfig{
			AllowedCarriers:  parseList(v.GetString("shipping.allowed_carriers")),
			QuoteTTL:         quoteTTL,
			ItemCategory:     v.GetString("shipping.item_category"),
			Currency:         strings.ToUpper(v.GetString("shipping.currency")),
			PurchaseClaimTTL: claimTTL,
		},
		QuoteCache: QuoteCacheConfig{
			Backend: backend,
		},
		SMTP: SMTPConfig{
			Addr:     v.GetString("smtp.addr"),
			From:     v.GetString("smtp.from"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			Disabled: v.GetBool("smtp.disabled"),
		},
		CORS: CORSConfig{
			AllowedOrigins: origins,
		},
		Tasks: TaskConfig{
			LabelRefreshEnabled:     v.GetBool("tasks.label_refresh_enabled"),
			LabelRefreshCron:        v.GetString("tasks.label_refresh_cron"),
			LabelRefreshConcurrency: concurrency,
			LabelRefreshBatchSize:   v.GetInt("tasks.label_refresh_batch_size"),
		},
	}

	if !cfg.Easyship.Mock && cfg.Easyship.APIKey == "" {
		return nil, fmt.Errorf("easyship.api_key is required unless easyship.mock is enabled (set SHIPDESK_EASYSHIP_API_KEY)")
	}

	return cfg, nil
}

// parseList 解析逗号分隔的字符串
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载当前目录或父目录的 .env，文件不存在时静默跳过
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"parcel_ship_v1_202610/internal/cache"
	"parcel_ship_v1_202610/internal/config"
	"parcel_ship_v1_202610/internal/controller"
	"parcel_ship_v1_202610/internal/health"
	"parcel_ship_v1_202610/internal/logger"
	"parcel_ship_v1_202610/internal/mailer"
	"parcel_ship_v1_202610/internal/middleware"
	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/monitoring"
	"parcel_ship_v1_202610/internal/repository"
	"parcel_ship_v1_202610/internal/router"
	"parcel_ship_v1_202610/internal/service"
	"parcel_ship_v1_202610/internal/task"
	"parcel_ship_v1_202610/pkg/database"
	"parcel_ship_v1_202610/pkg/easyship"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shipdesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. 日志
	zl, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 数据库
	db, err := database.InitDB(database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogSQL:          cfg.Database.LogSQL,
	}, zl, model.AllModels()...)
	if err != nil {
		return err
	}

	// 4. 依赖
	deps, err := initDependencies(ctx, cfg, db, zl)
	if err != nil {
		return err
	}
	if deps.Redis != nil {
		defer deps.Redis.Close()
	}

	// 5. 定时任务
	if err := deps.Tasks.Start(); err != nil {
		return err
	}
	defer deps.Tasks.Stop()

	// 6. 启动服务
	return startServer(ctx, cfg, deps.Engine, zl)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	Engine *gin.Engine
	Tasks  *task.TaskManager
	Redis  *redis.Client
}

// Repositories 仓库集合
type Repositories struct {
	Shipment repository.OrderShipmentRepository
	Settings repository.ShipFromSettingsRepository
	Preset   repository.BoxPresetRepository
	Order    repository.OrderRepository
	Quote    repository.RateQuoteRepository
}

func initRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Shipment: repository.NewOrderShipmentRepository(db),
		Settings: repository.NewShipFromSettingsRepository(db),
		Preset:   repository.NewBoxPresetRepository(db),
		Order:    repository.NewOrderRepository(db),
		Quote:    repository.NewRateQuoteRepository(db),
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, db *gorm.DB, zl *zap.Logger) (*Dependencies, error) {
	repos := initRepositories(db)
	metrics := monitoring.NewMetrics()

	provider := easyship.New(easyship.Config{
		BaseURL:           cfg.Easyship.BaseURL,
		APIKey:            cfg.Easyship.APIKey,
		Timeout:           cfg.Easyship.Timeout,
		Debug:             cfg.Easyship.Debug,
		Mock:              cfg.Easyship.Mock,
		RateRetries:       cfg.Easyship.RateRetries,
		RequestsPerSecond: cfg.Easyship.RequestsPerSecond,
	})
	if cfg.Easyship.Mock {
		zl.Warn("Easyship Mock 模式已开启，不会产生真实面单")
	}

	// 报价缓存存储
	var (
		quoteStore  service.QuoteStore       = repos.Quote
		quoteExpiry task.ExpiredQuoteDeleter = repos.Quote
		rdb         *redis.Client
	)
	if cfg.QuoteCache.Backend == "redis" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rdb = client
		quoteStore = cache.NewRedisQuoteStore(client)
		quoteExpiry = nil
	}

	// 发信
	var sender mailer.Sender
	if cfg.SMTP.Disabled {
		sender = mailer.NewLogSender(zl.Named("mailer"))
	} else {
		sender = mailer.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	}

	quotes := service.NewQuoteCache(quoteStore, provider, service.NewRateNormalizer(cfg.Shipping.Currency),
		cfg.Shipping.AllowedCarriers, cfg.Shipping.QuoteTTL, metrics, zl.Named("quotes"))
	tracking := service.NewTrackingEmailService(repos.Shipment, repos.Order, sender, metrics, zl.Named("tracking_email"))
	labels := service.NewLabelService(repos.Shipment, repos.Settings, repos.Order, quotes, provider, tracking, service.LabelConfig{
		PurchaseActions:  cfg.Easyship.PurchaseActions,
		ItemCategory:     cfg.Shipping.ItemCategory,
		Currency:         cfg.Shipping.Currency,
		PurchaseClaimTTL: cfg.Shipping.PurchaseClaimTTL,
	}, metrics, zl.Named("labels"))
	shipments := service.NewShipmentService(repos.Shipment, repos.Settings, repos.Preset, repos.Order, cfg.Shipping.PurchaseClaimTTL, zl.Named("shipments"))

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	engine := router.NewEngine(router.Deps{
		ShippingCtl:    controller.NewShippingController(shipments, zl),
		ShipmentCtl:    controller.NewShipmentController(shipments, labels, zl),
		WebhookCtl:     controller.NewWebhookController(labels, zl),
		Limiter:        middleware.NewCooldownLimiter(),
		Health:         health.NewChecker(db, rdb),
		Metrics:        metrics,
		Logger:         zl.Named("http"),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	tasks := task.NewTaskManager(&task.TaskManagerDeps{
		Shipments: repos.Shipment,
		Refresher: labels,
		Quotes:    quoteExpiry,
		Metrics:   metrics,
		Logger:    zl.Named("tasks"),
	}, &task.TaskManagerConfig{
		LabelRefreshEnabled:     cfg.Tasks.LabelRefreshEnabled,
		LabelRefreshCron:        cfg.Tasks.LabelRefreshCron,
		LabelRefreshConcurrency: cfg.Tasks.LabelRefreshConcurrency,
		LabelRefreshBatchSize:   cfg.Tasks.LabelRefreshBatchSize,
	})

	return &Dependencies{Engine: engine, Tasks: tasks, Redis: rdb}, nil
}

// ==================== HTTP 服务 ====================

func startServer(ctx context.Context, cfg *config.Config, handler http.Handler, zl *zap.Logger) error {
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		zl.Info("服务已退出")
		return nil
	})
	return g.Wait()
}

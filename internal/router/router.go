package router

import (
	"time"

	"parcel_ship_v1_202610/internal/controller"
	"parcel_ship_v1_202610/internal/health"
	"parcel_ship_v1_202610/internal/middleware"
	"parcel_ship_v1_202610/internal/monitoring"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps 路由依赖
type Deps struct {
	ShippingCtl    *controller.ShippingController
	ShipmentCtl    *controller.ShipmentController
	WebhookCtl     *controller.WebhookController
	Limiter        *middleware.CooldownLimiter
	Health         *health.Checker // 为 nil 时不注册健康检查
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewEngine 创建 gin 引擎并注册中间件与路由
func NewEngine(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	if deps.Logger != nil {
		r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	}

	corsConfig := gincors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	r.Use(gincors.New(corsConfig))

	InitRoutes(r, deps)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, deps Deps) {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewCooldownLimiter()
	}

	// 1. 运维端点
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Health != nil {
		r.GET("/live", gin.WrapH(deps.Health.LiveHandler()))
		r.GET("/ready", gin.WrapH(deps.Health.ReadyHandler()))
	}

	// 2. API 路由组
	api := r.Group("/api")
	{
		// 发货设置
		shipping := api.Group("/shipping")
		{
			shipping.GET("/settings", deps.ShippingCtl.GetSettings)
			shipping.PUT("/settings", deps.ShippingCtl.SaveSettings)

			shipping.GET("/box-presets", deps.ShippingCtl.ListBoxPresets)
			shipping.POST("/box-presets", deps.ShippingCtl.CreateBoxPreset)
			shipping.PUT("/box-presets/:id", deps.ShippingCtl.UpdateBoxPreset)
			shipping.DELETE("/box-presets/:id", deps.ShippingCtl.DeleteBoxPreset)
		}

		// 订单下的包裹
		orders := api.Group("/orders")
		{
			// GET /api/orders/:order_id/shipments
			orders.GET("/:order_id/shipments", deps.ShipmentCtl.List)
			orders.POST("/:order_id/shipments", deps.ShipmentCtl.Create)
		}

		// 包裹操作
		shipments := api.Group("/shipments")
		{
			shipments.GET("/:id", deps.ShipmentCtl.Get)
			shipments.PUT("/:id", deps.ShipmentCtl.Update)
			shipments.DELETE("/:id", deps.ShipmentCtl.Delete)

			shipments.POST("/:id/quotes", deps.ShipmentCtl.Quote)
			shipments.POST("/:id/buy", deps.ShipmentCtl.Buy)
			shipments.POST("/:id/refresh",
				middleware.Cooldown(limiter, middleware.ActionRefresh, 0),
				deps.ShipmentCtl.Refresh,
			)
			shipments.POST("/:id/tracking-email",
				middleware.Cooldown(limiter, middleware.ActionTrackingEmail, 0),
				deps.ShipmentCtl.RetryTrackingEmail,
			)
		}

		// 服务商回调
		api.POST("/webhooks/easyship", deps.WebhookCtl.Easyship)
	}
}

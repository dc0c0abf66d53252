package controller

import (
	"net/http"

	"parcel_ship_v1_202610/internal/service"
	"parcel_ship_v1_202610/pkg/easyship"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// webhookShipmentIDPaths 回调中运单 ID 可能出现的位置
var webhookShipmentIDPaths = []string{
	"easyship_shipment_id",
	"shipment.easyship_shipment_id",
	"data.easyship_shipment_id",
	"data.shipment.easyship_shipment_id",
	"resource_id",
}

// WebhookController 服务商回调
type WebhookController struct {
	labels *service.LabelService
	logger *zap.Logger
}

func NewWebhookController(labels *service.LabelService, logger *zap.Logger) *WebhookController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookController{labels: labels, logger: logger}
}

// Easyship 运单状态回调
// @Summary 服务商运单回调
// @Description 按运单 ID 刷新面单；未知运单返回 202
// @Tags Webhook (回调)
// @Accept json
// @Produce json
// @Success 200 {object} dto.DataResponse "已刷新"
// @Success 202 {object} dto.DataResponse "已忽略"
// @Failure 400 {object} dto.ErrorResponse "缺少运单ID"
// @Router /api/webhooks/easyship [post]
func (c *WebhookController) Easyship(ctx *gin.Context) {
	var payload any
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		respondInvalid(ctx, "回调内容不是合法 JSON")
		return
	}

	easyshipID := easyship.FirstString(payload, webhookShipmentIDPaths...)
	if easyshipID == "" {
		respondInvalid(ctx, "回调缺少 easyship_shipment_id")
		return
	}

	shipment, err := c.labels.RefreshByEasyshipID(ctx.Request.Context(), easyshipID)
	if err != nil {
		if service.IsCode(err, service.CodeShipmentNotFound) {
			c.logger.Info("忽略未知运单回调", zap.String("easyship_shipment_id", easyshipID))
			respondData(ctx, http.StatusAccepted, nil, "ignored")
			return
		}
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, shipment, "")
}

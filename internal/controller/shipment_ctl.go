package controller

import (
	"net/http"
	"strings"

	"parcel_ship_v1_202610/internal/api/dto"
	"parcel_ship_v1_202610/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ShipmentController 包裹、报价与面单
type ShipmentController struct {
	shipments *service.ShipmentService
	labels    *service.LabelService
	logger    *zap.Logger
}

// NewShipmentController 创建包裹控制器
func NewShipmentController(shipments *service.ShipmentService, labels *service.LabelService, logger *zap.Logger) *ShipmentController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShipmentController{shipments: shipments, labels: labels, logger: logger}
}

// ==================== 包裹管理 ====================

// List 订单包裹列表
// @Summary 订单包裹列表
// @Tags Shipment (包裹)
// @Produce json
// @Param order_id path string true "订单ID"
// @Success 200 {object} dto.DataResponse "包裹列表"
// @Router /api/orders/{order_id}/shipments [get]
func (c *ShipmentController) List(ctx *gin.Context) {
	orderID := strings.TrimSpace(ctx.Param("order_id"))
	if orderID == "" {
		respondInvalid(ctx, "无效的订单ID")
		return
	}

	list, err := c.shipments.ListShipments(ctx.Request.Context(), orderID)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, list, "")
}

// Create 新增包裹
// @Summary 新增包裹
// @Description box_preset_id 与自定义尺寸二选一
// @Tags Shipment (包裹)
// @Accept json
// @Produce json
// @Param order_id path string true "订单ID"
// @Param body body dto.ShipmentReq false "包裹尺寸"
// @Success 201 {object} dto.DataResponse "创建成功"
// @Failure 400 {object} dto.ErrorResponse "参数错误"
// @Router /api/orders/{order_id}/shipments [post]
func (c *ShipmentController) Create(ctx *gin.Context) {
	orderID := strings.TrimSpace(ctx.Param("order_id"))
	if orderID == "" {
		respondInvalid(ctx, "无效的订单ID")
		return
	}

	var req dto.ShipmentReq
	if !bindOptionalJSON(ctx, &req) {
		return
	}

	shipment, err := c.shipments.CreateShipment(ctx.Request.Context(), orderID, toShipmentInput(req))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusCreated, shipment, "创建成功")
}

// Get 包裹详情
// @Summary 包裹详情
// @Tags Shipment (包裹)
// @Produce json
// @Param id path int true "包裹ID"
// @Success 200 {object} dto.DataResponse "包裹"
// @Failure 404 {object} dto.ErrorResponse "包裹不存在"
// @Router /api/shipments/{id} [get]
func (c *ShipmentController) Get(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	shipment, err := c.shipments.GetShipment(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, shipment, "")
}

// Update 修改包裹尺寸
// @Summary 修改包裹尺寸
// @Description 已购买面单的包裹不可修改
// @Tags Shipment (包裹)
// @Accept json
// @Produce json
// @Param id path int true "包裹ID"
// @Param body body dto.ShipmentReq true "包裹尺寸"
// @Success 200 {object} dto.DataResponse "更新成功"
// @Failure 409 {object} dto.ErrorResponse "已购买"
// @Router /api/shipments/{id} [put]
func (c *ShipmentController) Update(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req dto.ShipmentReq
	if !bindOptionalJSON(ctx, &req) {
		return
	}

	shipment, err := c.shipments.UpdateShipment(ctx.Request.Context(), id, toShipmentInput(req))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, shipment, "更新成功")
}

// Delete 删除包裹
// @Summary 删除包裹
// @Tags Shipment (包裹)
// @Param id path int true "包裹ID"
// @Success 204 "删除成功"
// @Failure 409 {object} dto.ErrorResponse "已购买"
// @Router /api/shipments/{id} [delete]
func (c *ShipmentController) Delete(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.shipments.DeleteShipment(ctx.Request.Context(), id); err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// ==================== 报价与面单 ====================

// Quote 获取报价
// @Summary 获取报价
// @Description 相同签名在有效期内复用缓存；未指定时默认选中最低价
// @Tags Label (面单)
// @Accept json
// @Produce json
// @Param id path int true "包裹ID"
// @Param body body dto.QuoteReq false "选中的报价"
// @Success 200 {object} dto.DataResponse "报价"
// @Failure 422 {object} dto.ErrorResponse "地址或尺寸不完整"
// @Router /api/shipments/{id}/quotes [post]
func (c *ShipmentController) Quote(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req dto.QuoteReq
	if !bindOptionalJSON(ctx, &req) {
		return
	}

	resp, err := c.labels.Quote(ctx.Request.Context(), id, strings.TrimSpace(req.QuoteSelectedID))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	// 空报价仍返回 200，code 标明原因
	ctx.JSON(http.StatusOK, dto.DataResponse{Data: resp, Message: resp.Warning, Code: resp.Code})
}

// Buy 购买面单
// @Summary 购买面单
// @Description refresh=true 时只从服务商刷新状态
// @Tags Label (面单)
// @Accept json
// @Produce json
// @Param id path int true "包裹ID"
// @Param body body dto.BuyReq false "购买参数"
// @Success 200 {object} dto.DataResponse "购买成功"
// @Failure 409 {object} dto.ErrorResponse "已购买或购买中"
// @Failure 500 {object} dto.ErrorResponse "购买失败"
// @Router /api/shipments/{id}/buy [post]
func (c *ShipmentController) Buy(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req dto.BuyReq
	if !bindOptionalJSON(ctx, &req) {
		return
	}

	shipment, err := c.labels.Buy(ctx.Request.Context(), id, service.BuyOptions{
		QuoteSelectedID: strings.TrimSpace(req.QuoteSelectedID),
		Refresh:         req.Refresh,
	})
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, shipment, "")
}

// Refresh 刷新面单状态
// @Summary 刷新面单状态
// @Tags Label (面单)
// @Produce json
// @Param id path int true "包裹ID"
// @Success 200 {object} dto.DataResponse "包裹"
// @Failure 409 {object} dto.ErrorResponse "尚未创建运单"
// @Failure 429 {object} map[string]interface{} "刷新过于频繁"
// @Router /api/shipments/{id}/refresh [post]
func (c *ShipmentController) Refresh(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	shipment, err := c.labels.Refresh(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, shipment, "")
}

// RetryTrackingEmail 重发运单号通知
// @Summary 重发运单号通知
// @Description 只有尚未发送过的包裹会发送
// @Tags Label (面单)
// @Produce json
// @Param id path int true "包裹ID"
// @Success 200 {object} dto.DataResponse "发送结果"
// @Router /api/shipments/{id}/tracking-email [post]
func (c *ShipmentController) RetryTrackingEmail(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.labels.RetryTrackingEmail(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, result, "")
}

func toShipmentInput(req dto.ShipmentReq) service.ShipmentInput {
	return service.ShipmentInput{
		BoxPresetID: req.BoxPresetID,
		LengthIn:    req.LengthIn,
		WidthIn:     req.WidthIn,
		HeightIn:    req.HeightIn,
		WeightLb:    req.WeightLb,
	}
}

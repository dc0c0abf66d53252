package controller

import (
	"net/http"

	"parcel_ship_v1_202610/internal/api/dto"
	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ShippingController 发货地与箱规
type ShippingController struct {
	svc    *service.ShipmentService
	logger *zap.Logger
}

func NewShippingController(svc *service.ShipmentService, logger *zap.Logger) *ShippingController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShippingController{svc: svc, logger: logger}
}

// ==================== 发货地 ====================

// GetSettings 获取发货地
// @Summary 获取发货地
// @Description 返回当前发货地址以及报价所需但缺失的字段
// @Tags Shipping (发货设置)
// @Produce json
// @Success 200 {object} dto.DataResponse "发货地"
// @Failure 500 {object} dto.ErrorResponse "查询失败"
// @Router /api/shipping/settings [get]
func (c *ShippingController) GetSettings(ctx *gin.Context) {
	view, err := c.svc.GetSettings(ctx.Request.Context())
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, view, "")
}

// SaveSettings 保存发货地
// @Summary 保存发货地
// @Tags Shipping (发货设置)
// @Accept json
// @Produce json
// @Param body body dto.AddressReq true "发货地址"
// @Success 200 {object} dto.DataResponse "保存成功"
// @Failure 400 {object} dto.ErrorResponse "参数错误"
// @Router /api/shipping/settings [put]
func (c *ShippingController) SaveSettings(ctx *gin.Context) {
	var req dto.AddressReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalid(ctx, "请求参数错误: "+err.Error())
		return
	}

	view, err := c.svc.SaveSettings(ctx.Request.Context(), model.Address{
		Name:        req.Name,
		Company:     req.Company,
		Street1:     req.Street1,
		Street2:     req.Street2,
		City:        req.City,
		State:       req.State,
		PostalCode:  req.PostalCode,
		CountryCode: req.CountryCode,
		Phone:       req.Phone,
		Email:       req.Email,
	})
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, view, "保存成功")
}

// ==================== 箱规 ====================

// ListBoxPresets 箱规列表
// @Summary 箱规列表
// @Tags Shipping (发货设置)
// @Produce json
// @Success 200 {object} dto.DataResponse "箱规列表"
// @Router /api/shipping/box-presets [get]
func (c *ShippingController) ListBoxPresets(ctx *gin.Context) {
	presets, err := c.svc.ListBoxPresets(ctx.Request.Context())
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, presets, "")
}

// CreateBoxPreset 创建箱规
// @Summary 创建箱规
// @Tags Shipping (发货设置)
// @Accept json
// @Produce json
// @Param body body dto.BoxPresetReq true "箱规"
// @Success 201 {object} dto.DataResponse "创建成功"
// @Failure 400 {object} dto.ErrorResponse "参数错误"
// @Router /api/shipping/box-presets [post]
func (c *ShippingController) CreateBoxPreset(ctx *gin.Context) {
	var req dto.BoxPresetReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalid(ctx, "请求参数错误: "+err.Error())
		return
	}

	preset, err := c.svc.CreateBoxPreset(ctx.Request.Context(), toBoxPresetInput(req))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusCreated, preset, "创建成功")
}

// UpdateBoxPreset 更新箱规
// @Summary 更新箱规
// @Description 已被已购买包裹引用的箱规不可修改
// @Tags Shipping (发货设置)
// @Accept json
// @Produce json
// @Param id path int true "箱规ID"
// @Param body body dto.BoxPresetReq true "箱规"
// @Success 200 {object} dto.DataResponse "更新成功"
// @Failure 404 {object} dto.ErrorResponse "箱规不存在"
// @Failure 409 {object} dto.ErrorResponse "箱规使用中"
// @Router /api/shipping/box-presets/{id} [put]
func (c *ShippingController) UpdateBoxPreset(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req dto.BoxPresetReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalid(ctx, "请求参数错误: "+err.Error())
		return
	}

	preset, err := c.svc.UpdateBoxPreset(ctx.Request.Context(), id, toBoxPresetInput(req))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respondData(ctx, http.StatusOK, preset, "更新成功")
}

// DeleteBoxPreset 删除箱规
// @Summary 删除箱规
// @Description 未购买的包裹会解除引用
// @Tags Shipping (发货设置)
// @Param id path int true "箱规ID"
// @Success 204 "删除成功"
// @Failure 404 {object} dto.ErrorResponse "箱规不存在"
// @Failure 409 {object} dto.ErrorResponse "箱规使用中"
// @Router /api/shipping/box-presets/{id} [delete]
func (c *ShippingController) DeleteBoxPreset(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.svc.DeleteBoxPreset(ctx.Request.Context(), id); err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func toBoxPresetInput(req dto.BoxPresetReq) service.BoxPresetInput {
	return service.BoxPresetInput{
		Name:            req.Name,
		LengthIn:        req.LengthIn,
		WidthIn:         req.WidthIn,
		HeightIn:        req.HeightIn,
		DefaultWeightLb: req.DefaultWeightLb,
	}
}

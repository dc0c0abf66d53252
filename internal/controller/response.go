package controller

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"parcel_ship_v1_202610/internal/api/dto"
	"parcel_ship_v1_202610/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError 业务错误按错误码输出，其余统一为 INTERNAL_ERROR
func respondError(ctx *gin.Context, logger *zap.Logger, err error) {
	var se *service.ShippingError
	if errors.As(err, &se) {
		resp := dto.ErrorResponse{Code: se.Code, Message: se.Message, MissingFields: se.Missing}
		if se.Status >= http.StatusInternalServerError {
			logger.Error("请求处理失败",
				zap.String("route", ctx.FullPath()),
				zap.String("code", se.Code),
				zap.Error(err))
			if se.Err != nil {
				resp.Detail = se.Err.Error()
			}
		}
		ctx.JSON(se.Status, resp)
		return
	}

	logger.Error("请求处理失败", zap.String("route", ctx.FullPath()), zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Code:    service.CodeInternalError,
		Message: "服务器内部错误",
	})
}

func respondInvalid(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: service.CodeInvalidInput, Message: message})
}

func respondData(ctx *gin.Context, status int, data interface{}, message string) {
	ctx.JSON(status, dto.DataResponse{Data: data, Message: message})
}

// parseID 解析路径中的数字 ID
func parseID(ctx *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondInvalid(ctx, "无效的 "+name)
		return 0, false
	}
	return id, true
}

// bindOptionalJSON 请求体可以为空
func bindOptionalJSON(ctx *gin.Context, obj interface{}) bool {
	if ctx.Request.Body == nil || ctx.Request.ContentLength == 0 {
		return true
	}
	if err := ctx.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		respondInvalid(ctx, "请求参数错误: "+err.Error())
		return false
	}
	return true
}

package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"parcel_ship_v1_202610/internal/model"
	"parcel_ship_v1_202610/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippingController_Settings(t *testing.T) {
	env := newCtlEnv(t)

	t.Run("未配置时返回缺失字段", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/shipping/settings", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var view service.SettingsView
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &view))
		assert.Contains(t, view.MissingFields, "street1")
	})

	t.Run("保存后国家码大写", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/shipping/settings", map[string]any{
			"street1": "100 Main St", "city": "Austin", "state": "TX",
			"postal_code": "73301", "country_code": "us",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var view service.SettingsView
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &view))
		assert.Equal(t, "US", view.Settings.CountryCode)
		assert.Equal(t, []string{"name", "phone"}, view.MissingFields)
	})

	t.Run("非法 JSON", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/shipping/settings", "not-an-object")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, service.CodeInvalidInput, decode(t, w).Code)
	})
}

func TestShippingController_BoxPresets(t *testing.T) {
	env := newCtlEnv(t)

	w := env.do(t, http.MethodPost, "/api/shipping/box-presets", map[string]any{
		"name": "Small", "length_in": 8, "width_in": 6, "height_in": 4,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var preset model.BoxPreset
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &preset))
	assert.Equal(t, "Small", preset.Name)

	t.Run("缺少名称", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/shipping/box-presets", map[string]any{"length_in": 1, "width_in": 1, "height_in": 1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("更新", func(t *testing.T) {
		w := env.do(t, http.MethodPut, fmt.Sprintf("/api/shipping/box-presets/%d", preset.ID), map[string]any{
			"name": "Small v2", "length_in": 9, "width_in": 6, "height_in": 4,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("不存在的箱规", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/shipping/box-presets/999", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, service.CodeBoxPresetNotFound, decode(t, w).Code)
	})

	t.Run("非法 ID", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/shipping/box-presets/abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("删除", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, fmt.Sprintf("/api/shipping/box-presets/%d", preset.ID), nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(t, http.MethodGet, "/api/shipping/box-presets", nil)
		var list []model.BoxPreset
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
		assert.Empty(t, list)
	})
}

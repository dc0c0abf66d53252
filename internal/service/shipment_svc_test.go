package service

import (
	"context"
	"testing"
	"time"

	"parcel_ship_v1_202610/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markPurchased(t *testing.T, env *testEnv, id int64) {
	t.Helper()
	require.NoError(t, env.db.Model(&model.OrderShipment{}).Where("id = ?", id).
		Update("label_state", model.LabelStateGenerated).Error)
}

func TestShipmentService_Settings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.shipments.GetSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, view.MissingFields, 7)

	view, err = env.shipments.SaveSettings(ctx, model.Address{Name: "Warehouse", Street1: "1 Main", CountryCode: " us "})
	require.NoError(t, err)
	assert.Equal(t, "US", view.Settings.CountryCode)
	assert.Equal(t, []string{"city", "state", "postal_code", "phone"}, view.MissingFields)

	view, err = env.shipments.SaveSettings(ctx, model.Address{
		Name: "Warehouse", Street1: "1 Main", City: "Austin", State: "TX",
		PostalCode: "73301", CountryCode: "US", Phone: "555",
	})
	require.NoError(t, err)
	assert.Empty(t, view.MissingFields)
	assert.NotNil(t, view.MissingFields)
}

func TestShipmentService_CreateShipment(t *testing.T) {
	env := newTestEnv(t)
	first := env.seedOrder(t)
	ctx := context.Background()
	assert.Equal(t, 1, first.ParcelIndex)
	require.NotNil(t, first.BoxPreset)
	assert.Equal(t, "Medium", first.BoxPreset.Name)

	t.Run("箱规与自定义尺寸互斥", func(t *testing.T) {
		_, err := env.shipments.CreateShipment(ctx, "O1", ShipmentInput{
			BoxPresetID: first.BoxPresetID, LengthIn: ptrFloat(5),
		})
		assert.True(t, IsCode(err, CodeInvalidInput))
	})

	t.Run("尺寸必须为正", func(t *testing.T) {
		_, err := env.shipments.CreateShipment(ctx, "O1", ShipmentInput{WeightLb: ptrFloat(0)})
		assert.True(t, IsCode(err, CodeInvalidInput))
	})

	t.Run("箱规不存在", func(t *testing.T) {
		_, err := env.shipments.CreateShipment(ctx, "O1", ShipmentInput{BoxPresetID: ptrInt64(999)})
		assert.True(t, IsCode(err, CodeBoxPresetNotFound))
	})

	t.Run("订单不存在", func(t *testing.T) {
		_, err := env.shipments.CreateShipment(ctx, "O404", ShipmentInput{})
		assert.True(t, IsCode(err, CodeInvalidInput))
	})

	t.Run("序号递增", func(t *testing.T) {
		second, err := env.shipments.CreateShipment(ctx, "O1", ShipmentInput{
			LengthIn: ptrFloat(5), WidthIn: ptrFloat(5), HeightIn: ptrFloat(5), WeightLb: ptrFloat(1),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, second.ParcelIndex)
		assert.Equal(t, model.LabelStatePending, second.LabelState)
	})
}

func TestShipmentService_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	first := env.seedOrder(t)
	ctx := context.Background()

	second, err := env.shipments.CreateShipment(ctx, "O1", ShipmentInput{BoxPresetID: first.BoxPresetID})
	require.NoError(t, err)
	third, err := env.shipments.CreateShipment(ctx, "O1", ShipmentInput{BoxPresetID: first.BoxPresetID})
	require.NoError(t, err)

	t.Run("切换为自定义尺寸", func(t *testing.T) {
		updated, err := env.shipments.UpdateShipment(ctx, second.ID, ShipmentInput{
			LengthIn: ptrFloat(10), WidthIn: ptrFloat(8), HeightIn: ptrFloat(4), WeightLb: ptrFloat(1.5),
		})
		require.NoError(t, err)
		assert.Nil(t, updated.BoxPresetID)
		require.NotNil(t, updated.LengthIn)
		assert.Equal(t, 10.0, *updated.LengthIn)
	})

	t.Run("已购买不可修改或删除", func(t *testing.T) {
		markPurchased(t, env, third.ID)

		_, err := env.shipments.UpdateShipment(ctx, third.ID, ShipmentInput{WeightLb: ptrFloat(3)})
		assert.True(t, IsCode(err, CodeShipmentAlreadyPurchased))
		err = env.shipments.DeleteShipment(ctx, third.ID)
		assert.True(t, IsCode(err, CodeShipmentAlreadyPurchased))
	})

	t.Run("删除后序号重排", func(t *testing.T) {
		require.NoError(t, env.shipments.DeleteShipment(ctx, first.ID))

		list, err := env.shipments.ListShipments(ctx, "O1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, 1, list[0].ParcelIndex)
		assert.Equal(t, third.ID, list[1].ID)
		assert.Equal(t, 2, list[1].ParcelIndex)
	})

	t.Run("删除不存在的包裹", func(t *testing.T) {
		err := env.shipments.DeleteShipment(ctx, 12345)
		assert.True(t, IsCode(err, CodeShipmentNotFound))
	})
}

func TestShipmentService_PurchaseInProgress(t *testing.T) {
	env := newTestEnv(t)
	shipment := env.seedOrder(t)
	ctx := context.Background()

	claimedAt := env.clock.Add(-30 * time.Second)
	require.NoError(t, env.shipRepo.UpdateFields(ctx, shipment.ID, map[string]interface{}{"purchase_claimed_at": claimedAt}))

	_, err := env.shipments.UpdateShipment(ctx, shipment.ID, ShipmentInput{
		LengthIn: ptrFloat(30), WidthIn: ptrFloat(30), HeightIn: ptrFloat(30), WeightLb: ptrFloat(40),
	})
	assert.True(t, IsCode(err, CodePurchaseInProgress))
	err = env.shipments.DeleteShipment(ctx, shipment.ID)
	assert.True(t, IsCode(err, CodePurchaseInProgress))

	unchanged, err := env.shipments.GetShipment(ctx, shipment.ID)
	require.NoError(t, err)
	assert.Nil(t, unchanged.LengthIn)
	assert.Equal(t, shipment.BoxPresetID, unchanged.BoxPresetID)

	// 占位过期后恢复可写
	env.clock = env.clock.Add(5 * time.Minute)
	_, err = env.shipments.UpdateShipment(ctx, shipment.ID, ShipmentInput{WeightLb: ptrFloat(3), BoxPresetID: shipment.BoxPresetID})
	require.NoError(t, err)
	require.NoError(t, env.shipments.DeleteShipment(ctx, shipment.ID))
}

func TestShipmentService_BoxPresets(t *testing.T) {
	env := newTestEnv(t)
	shipment := env.seedOrder(t)
	ctx := context.Background()
	presetID := *shipment.BoxPresetID

	t.Run("参数校验", func(t *testing.T) {
		_, err := env.shipments.CreateBoxPreset(ctx, BoxPresetInput{Name: " ", LengthIn: 1, WidthIn: 1, HeightIn: 1})
		assert.True(t, IsCode(err, CodeInvalidInput))
		_, err = env.shipments.CreateBoxPreset(ctx, BoxPresetInput{Name: "Flat", LengthIn: 1, WidthIn: 0, HeightIn: 1})
		assert.True(t, IsCode(err, CodeInvalidInput))
	})

	t.Run("未购买时可修改", func(t *testing.T) {
		updated, err := env.shipments.UpdateBoxPreset(ctx, presetID, BoxPresetInput{
			Name: "Medium+", LengthIn: 13, WidthIn: 9, HeightIn: 6,
		})
		require.NoError(t, err)
		assert.Equal(t, "Medium+", updated.Name)
		assert.Nil(t, updated.DefaultWeightLb)
	})

	t.Run("被已购买包裹引用", func(t *testing.T) {
		markPurchased(t, env, shipment.ID)
		t.Cleanup(func() {
			env.db.Model(&model.OrderShipment{}).Where("id = ?", shipment.ID).Update("label_state", model.LabelStatePending)
		})

		_, err := env.shipments.UpdateBoxPreset(ctx, presetID, BoxPresetInput{Name: "X", LengthIn: 1, WidthIn: 1, HeightIn: 1})
		assert.True(t, IsCode(err, CodeBoxPresetInUse))
		err = env.shipments.DeleteBoxPreset(ctx, presetID)
		assert.True(t, IsCode(err, CodeBoxPresetInUse))
	})

	t.Run("删除后解除未购买包裹的关联", func(t *testing.T) {
		require.NoError(t, env.shipments.DeleteBoxPreset(ctx, presetID))

		reloaded, err := env.shipments.GetShipment(ctx, shipment.ID)
		require.NoError(t, err)
		assert.Nil(t, reloaded.BoxPresetID)

		presets, err := env.shipments.ListBoxPresets(ctx)
		require.NoError(t, err)
		assert.Empty(t, presets)
	})

	t.Run("不存在", func(t *testing.T) {
		err := env.shipments.DeleteBoxPreset(ctx, presetID)
		assert.True(t, IsCode(err, CodeBoxPresetNotFound))
	})
}

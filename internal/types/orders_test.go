package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTerminal(t *testing.T) {
	assert.False(t, StatusWaiting.Terminal())
	assert.False(t, StatusTriggered.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestTriggerKeyRoundTrip(t *testing.T) {
	key := TriggerKey("eth", "0xasset")
	assert.Equal(t, "eth:0xasset", key)

	network, asset, ok := SplitTriggerKey(key)
	require.True(t, ok)
	assert.Equal(t, "eth", network)
	assert.Equal(t, "0xasset", asset)

	_, _, ok = SplitTriggerKey("malformed")
	assert.False(t, ok)
}

func TestTradeTickPrice(t *testing.T) {
	tick := TradeTick{
		Network:          "eth",
		AssetAddress:     "0xasset",
		AssetAmount:      decimal.RequireFromString("100"),
		CounterAmountUSD: decimal.RequireFromString("950"),
		ObservedAt:       time.Now(),
	}
	assert.Equal(t, "9.5", tick.Price().String())

	// A tick with no priceable amounts yields zero, which matches nothing
	tick.AssetAmount = decimal.Zero
	assert.True(t, tick.Price().IsZero())

	tick.AssetAmount = decimal.RequireFromString("100")
	tick.CounterAmountUSD = decimal.Zero
	assert.True(t, tick.Price().IsZero())
}

func TestTPSLSettingNoOp(t *testing.T) {
	noop := TPSLSetting{
		TriggerValue:   decimal.RequireFromString("-100"),
		SellPercentage: decimal.RequireFromString("100"),
	}
	assert.True(t, noop.NoOp())

	live := TPSLSetting{
		TriggerValue:   decimal.RequireFromString("-20"),
		SellPercentage: decimal.RequireFromString("100"),
	}
	assert.False(t, live.NoOp())
}

func TestOrderExtraEmptyColumnDecodes(t *testing.T) {
	order := Order{}
	extra, err := order.DecodeExtra()
	require.NoError(t, err)
	assert.Empty(t, extra.TPSLSettings)
	assert.Nil(t, extra.DerivedFrom)
	assert.Nil(t, extra.Execution)
}

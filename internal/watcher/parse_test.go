package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame_Migration(t *testing.T) {
	raw := []byte(`{"type":"migration","mint":"So1mint","creator":"Cr8tor","slot":42,"price_sol":0.0031,"ts_ms":1700000000123}`)

	frame, ok := ParseFrame(raw)
	require.True(t, ok)
	assert.Equal(t, FrameMigration, frame.Kind)
	assert.Equal(t, "So1mint", frame.Candidate.Mint)
	assert.Equal(t, "Cr8tor", frame.Candidate.Creator)
	assert.Equal(t, uint64(42), frame.Candidate.Slot)
	assert.Equal(t, 0.0031, frame.Candidate.PriceSOL)
	assert.Equal(t, time.UnixMilli(1700000000123), frame.Candidate.MigratedAt)
}

func TestParseFrame_Swap(t *testing.T) {
	raw := []byte(`{"type":"swap","mint":"So1mint","price":1.25,"amount_sol":3.5,"is_sell":true,"wallet":"Wha1e","is_creator":true,"slot":43,"ts_ms":1700000001000}`)

	frame, ok := ParseFrame(raw)
	require.True(t, ok)
	assert.Equal(t, FrameSwap, frame.Kind)
	assert.Equal(t, "So1mint", frame.Update.Mint)
	assert.Equal(t, 1.25, frame.Update.Price)
	assert.Equal(t, 3.5, frame.Update.AmountSOL)
	assert.True(t, frame.Update.IsSell)
	assert.True(t, frame.Update.IsCreator)
	assert.Equal(t, "Wha1e", frame.Update.Wallet)
	assert.Equal(t, time.UnixMilli(1700000001000), frame.Update.At)
}

func TestParseFrame_Rejects(t *testing.T) {
	cases := map[string]string{
		"invalid json":      `{"type":"swap",`,
		"unknown type":      `{"type":"heartbeat"}`,
		"migration no mint": `{"type":"migration","slot":1}`,
		"swap no mint":      `{"type":"swap","price":1.0}`,
		"swap zero price":   `{"type":"swap","mint":"m","price":0}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := ParseFrame([]byte(raw))
			assert.False(t, ok)
		})
	}
}

func TestParseFrame_MissingTimestampUsesWallClock(t *testing.T) {
	before := time.Now()
	frame, ok := ParseFrame([]byte(`{"type":"swap","mint":"m","price":1.0}`))
	require.True(t, ok)
	assert.False(t, frame.Update.At.Before(before))
}

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "m:7", dedupKey("m", 7))
	assert.NotEqual(t, dedupKey("m", 7), dedupKey("m", 8))
}

package gormstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raysniper/internal/store"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func lifecycle(mint, lifecycle string) store.LifecycleRecord {
	return store.LifecycleRecord{
		Mint:       mint,
		Lifecycle:  lifecycle,
		Phase:      "discovery",
		EntryPrice: 1.1,
		Stake:      decimal.NewFromFloat(0.5),
		Size:       decimal.NewFromInt(1000),
	}
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestListUnfinished_LatestRecordPerMint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// mintA closed out; only its latest record counts.
	require.NoError(t, s.AppendLifecycle(ctx, lifecycle("mintA", "entering")))
	require.NoError(t, s.AppendLifecycle(ctx, lifecycle("mintA", "open")))
	require.NoError(t, s.CloseLifecycle(ctx, lifecycle("mintA", "closed")))

	// mintB is mid-sell, mintC never got past entering.
	require.NoError(t, s.AppendLifecycle(ctx, lifecycle("mintB", "open")))
	require.NoError(t, s.AppendLifecycle(ctx, lifecycle("mintB", "closing_sell")))
	require.NoError(t, s.AppendLifecycle(ctx, lifecycle("mintC", "entering")))

	recs, err := s.ListUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "mintB", recs[0].Mint)
	assert.Equal(t, "closing_sell", recs[0].Lifecycle)
	assert.True(t, recs[0].Stake.Equal(decimal.NewFromFloat(0.5)))
}

func TestCloseLifecycle_FoldsRollup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	win := lifecycle("mintA", "closed")
	win.PnL = decimal.NewFromFloat(0.3)
	require.NoError(t, s.CloseLifecycle(ctx, win))

	loss := lifecycle("mintB", "closed")
	loss.PnL = decimal.NewFromFloat(-0.1)
	require.NoError(t, s.CloseLifecycle(ctx, loss))

	roll, err := s.LoadRollup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, roll.Closed)
	assert.Equal(t, 1, roll.Wins)
	assert.Equal(t, 1, roll.Losses)
	assert.Equal(t, 0.5, roll.WinRate)
	assert.True(t, roll.RealizedPnL.Equal(decimal.NewFromFloat(0.2)),
		"got %s", roll.RealizedPnL)
}

func TestLoadRollup_EmptyStore(t *testing.T) {
	s := newTestStore(t)

	roll, err := s.LoadRollup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, roll.Closed)
	assert.True(t, roll.RealizedPnL.IsZero())
}

func TestAppendOperation(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendOperation(context.Background(), store.OperationRecord{
		Mint:    "mintA",
		Op:      "buy_failed",
		Reason:  "rate_limited",
		Context: map[string]any{"attempt": 1},
	})
	assert.NoError(t, err)
}

func TestBreakerEvents(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendBreakerEvent(context.Background(), store.BreakerEvent{
		Event:    "trip",
		Cause:    "drawdown_cap",
		Failures: 2,
		Drawdown: decimal.NewFromFloat(2.6),
	})
	assert.NoError(t, err)
}

func TestCreatorReputation_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rep, err := s.GetCreatorReputation(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, rep)

	require.NoError(t, s.UpsertCreatorReputation(ctx, store.CreatorReputation{
		Wallet: "cr8tor", Launches: 1,
	}))
	require.NoError(t, s.UpsertCreatorReputation(ctx, store.CreatorReputation{
		Wallet: "cr8tor", Launches: 2, Rugs: 1,
	}))

	rep, err = s.GetCreatorReputation(ctx, "cr8tor")
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 2, rep.Launches)
	assert.Equal(t, 1, rep.Rugs)
}

func TestMintMetadata_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMintMetadata(ctx, store.MintMetadata{
		Mint: "mintA", Symbol: "WIF", Creator: "cr8tor", Decimals: 9,
	}))

	md, err := s.GetMintMetadata(ctx, "mintA")
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, "WIF", md.Symbol)
	assert.Equal(t, 9, md.Decimals)

	md, err = s.GetMintMetadata(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, md)
}

func TestLookupTable_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertLookupTable(ctx, store.LookupTable{
		Address: "tableA", AccountsJSON: `["a","b"]`,
	}))

	lt, err := s.GetLookupTable(ctx, "tableA")
	require.NoError(t, err)
	require.NotNil(t, lt)
	assert.Equal(t, `["a","b"]`, lt.AccountsJSON)
}

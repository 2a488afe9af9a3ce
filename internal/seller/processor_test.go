package seller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raysniper/internal/chain"
	"raysniper/internal/config"
	"raysniper/internal/engine"
	"raysniper/internal/pkg/circuit"
)

// scriptedTrader returns the queued outcomes in order, recording the
// slippage each attempt carried.
type scriptedTrader struct {
	mu        sync.Mutex
	outcomes  []error
	result    *chain.SellResult
	slippages []float64
}

func (s *scriptedTrader) Buy(context.Context, chain.BuyRequest) (*chain.BuyResult, error) {
	return nil, errors.New("not used")
}

func (s *scriptedTrader) Sell(_ context.Context, req chain.SellRequest) (*chain.SellResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slippages = append(s.slippages, req.SlippagePct)
	if len(s.outcomes) == 0 {
		return s.result, nil
	}
	err := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	if err != nil {
		return nil, err
	}
	return s.result, nil
}

type cmdCollector struct {
	ch chan engine.Command
}

func newCmdCollector() *cmdCollector {
	return &cmdCollector{ch: make(chan engine.Command, 8)}
}

func (c *cmdCollector) Send(cmd engine.Command) error {
	c.ch <- cmd
	return nil
}

func (c *cmdCollector) wait(t *testing.T) engine.Command {
	t.Helper()
	select {
	case cmd := <-c.ch:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command delivered")
		return engine.Command{}
	}
}

func sellConfig() config.SellConfig {
	return config.SellConfig{
		SlippagePct:       0.01,
		SlippageWidenStep: 0.005,
		MaxAttempts:       3,
		RetryBackoffMs:    1,
		SubmitTimeoutMs:   1000,
	}
}

func testOrder() engine.SellOrder {
	return engine.SellOrder{
		Mint:    "mintA",
		Size:    decimal.NewFromInt(1000),
		Stake:   decimal.NewFromFloat(0.5),
		Reason:  "shock_drop",
		TraceID: "trace-1",
	}
}

func refreshCounter(calls *int) *chain.Cache {
	return chain.NewCache(func(ctx context.Context, mint string) (chain.VaultState, error) {
		*calls++
		return chain.VaultState{Mint: mint, PriceSOL: decimal.NewFromFloat(1)}, nil
	})
}

func TestSell_FirstAttemptConfirms(t *testing.T) {
	trader := &scriptedTrader{result: &chain.SellResult{
		Proceeds: decimal.NewFromFloat(0.6),
		Fees:     decimal.NewFromFloat(0.01),
	}}
	cmds := newCmdCollector()
	p := NewProcessor(sellConfig(), trader, refreshCounter(new(int)), cmds, nil)

	p.RequestSell(testOrder())

	cmd := cmds.wait(t)
	assert.Equal(t, engine.CmdSellConfirmed, cmd.Type)
	assert.Equal(t, []float64{0.01}, trader.slippages)
}

func TestSell_SlippageWidensPerAttempt(t *testing.T) {
	trader := &scriptedTrader{
		outcomes: []error{
			fmt.Errorf("swapSell: %w", chain.ErrSlippageExceeded),
			fmt.Errorf("swapSell: %w", chain.ErrSlippageExceeded),
		},
		result: &chain.SellResult{Proceeds: decimal.NewFromFloat(0.6)},
	}
	cmds := newCmdCollector()
	p := NewProcessor(sellConfig(), trader, refreshCounter(new(int)), cmds, nil)

	p.RequestSell(testOrder())

	cmd := cmds.wait(t)
	require.Equal(t, engine.CmdSellConfirmed, cmd.Type)
	require.Len(t, trader.slippages, 3)
	assert.InDelta(t, 0.01, trader.slippages[0], 1e-9)
	assert.InDelta(t, 0.015, trader.slippages[1], 1e-9)
	assert.InDelta(t, 0.02, trader.slippages[2], 1e-9)
}

func TestSell_StaleCacheRefreshesOnce(t *testing.T) {
	trader := &scriptedTrader{
		outcomes: []error{
			fmt.Errorf("swapSell: %w", chain.ErrStaleCache),
			fmt.Errorf("swapSell: %w", chain.ErrStaleCache),
			fmt.Errorf("swapSell: %w", chain.ErrStaleCache),
		},
	}
	refreshes := 0
	cmds := newCmdCollector()
	p := NewProcessor(sellConfig(), trader, refreshCounter(&refreshes), cmds, nil)

	p.RequestSell(testOrder())

	cmd := cmds.wait(t)
	assert.Equal(t, engine.CmdSellFailed, cmd.Type)
	assert.Equal(t, 1, refreshes)
}

func TestSell_UnclassifiedErrorIsTerminal(t *testing.T) {
	trader := &scriptedTrader{
		outcomes: []error{errors.New("rpc timeout")},
		result:   &chain.SellResult{Proceeds: decimal.NewFromFloat(0.6)},
	}
	cmds := newCmdCollector()
	p := NewProcessor(sellConfig(), trader, refreshCounter(new(int)), cmds, nil)

	p.RequestSell(testOrder())

	cmd := cmds.wait(t)
	require.Equal(t, engine.CmdSellFailed, cmd.Type)
	// No second attempt even though the cap allows three.
	assert.Len(t, trader.slippages, 1)

	var payload engine.SellFailedPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, 1, payload.Attempts)
	assert.Contains(t, payload.Reason, "rpc timeout")
}

func TestSell_SlippageExhaustionReportsFailure(t *testing.T) {
	trader := &scriptedTrader{
		outcomes: []error{
			fmt.Errorf("swapSell: %w", chain.ErrSlippageExceeded),
			fmt.Errorf("swapSell: %w", chain.ErrSlippageExceeded),
			fmt.Errorf("swapSell: %w", chain.ErrSlippageExceeded),
		},
	}
	cmds := newCmdCollector()
	p := NewProcessor(sellConfig(), trader, refreshCounter(new(int)), cmds, nil)

	p.RequestSell(testOrder())

	cmd := cmds.wait(t)
	require.Equal(t, engine.CmdSellFailed, cmd.Type)

	var payload engine.SellFailedPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, 3, payload.Attempts)
}

func TestSell_TerminalFailureTripsBreaker(t *testing.T) {
	trader := &scriptedTrader{
		outcomes: []error{errors.New("blockhash expired")},
		result:   &chain.SellResult{Proceeds: decimal.NewFromFloat(0.6)},
	}
	breaker := circuit.NewBreaker(1, 0, time.Minute, 0)
	cmds := newCmdCollector()
	p := NewProcessor(sellConfig(), trader, refreshCounter(new(int)), cmds, breaker)

	p.RequestSell(testOrder())

	cmd := cmds.wait(t)
	require.Equal(t, engine.CmdSellFailed, cmd.Type)
	assert.Equal(t, circuit.StateHalted, breaker.State())
	assert.False(t, breaker.Allow())
}

func TestSell_CoalescesWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	trader := &blockingTrader{release: block}
	cmds := newCmdCollector()
	p := NewProcessor(sellConfig(), trader, refreshCounter(new(int)), cmds, nil)

	p.RequestSell(testOrder())
	p.RequestSell(testOrder())
	close(block)

	cmds.wait(t)
	select {
	case cmd := <-cmds.ch:
		t.Fatalf("second outcome delivered: %s", cmd.Type)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, trader.calls)
}

type blockingTrader struct {
	release chan struct{}
	calls   int
}

func (b *blockingTrader) Buy(context.Context, chain.BuyRequest) (*chain.BuyResult, error) {
	return nil, errors.New("not used")
}

func (b *blockingTrader) Sell(context.Context, chain.SellRequest) (*chain.SellResult, error) {
	b.calls++
	<-b.release
	return &chain.SellResult{Proceeds: decimal.NewFromFloat(0.6)}, nil
}

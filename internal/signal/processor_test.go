package signal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raysniper/internal/chain"
	"raysniper/internal/config"
	"raysniper/internal/engine"
	"raysniper/internal/feature"
	"raysniper/internal/pkg/circuit"
	"raysniper/internal/safety"
)

type buyTrader struct {
	result *chain.BuyResult
	err    error
	calls  int
}

func (b *buyTrader) Buy(context.Context, chain.BuyRequest) (*chain.BuyResult, error) {
	b.calls++
	return b.result, b.err
}

func (b *buyTrader) Sell(context.Context, chain.SellRequest) (*chain.SellResult, error) {
	return nil, errors.New("not used")
}

type cmdSink struct {
	ch chan engine.Command
}

func newCmdSink() *cmdSink {
	return &cmdSink{ch: make(chan engine.Command, 8)}
}

func (c *cmdSink) Send(cmd engine.Command) error {
	c.ch <- cmd
	return nil
}

func (c *cmdSink) wait(t *testing.T) engine.Command {
	t.Helper()
	select {
	case cmd := <-c.ch:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command delivered")
		return engine.Command{}
	}
}

func passingAnalyzer() *safety.Analyzer {
	return safety.NewAnalyzer(config.SafetyConfig{
		MinHoneypotScore: 0.5,
		MinContractScore: 0.5,
	}, false, nil, nil).WithChecks(
		passCheck{"honeypot"}, passCheck{"contract"},
	)
}

type passCheck struct{ name string }

func (c passCheck) Name() string { return c.name }

func (c passCheck) Run(context.Context, string) (float64, error) { return 0.9, nil }

func entryConfig(ratePerMin float64) config.EntryConfig {
	return config.EntryConfig{StakeSOL: 0.5, RatePerMin: ratePerMin}
}

func newEntryProcessor(trader chain.TradeClient, breaker *circuit.Breaker, sink *cmdSink, ratePerMin float64) *Processor {
	features := feature.NewEngine(feature.Thresholds{}, nil, nil)
	return NewProcessor(entryConfig(ratePerMin), config.SellConfig{SlippagePct: 0.01},
		passingAnalyzer(), features, trader, breaker, sink)
}

func TestOnMigration_PassedCandidateReachesEngine(t *testing.T) {
	sink := newCmdSink()
	p := newEntryProcessor(&buyTrader{}, circuit.NewBreaker(3, 100, time.Hour, time.Hour), sink, 0)

	p.OnMigration(safety.Candidate{Mint: "mintA", Slot: 7, PriceSOL: 0.002})

	cmd := sink.wait(t)
	require.Equal(t, engine.CmdCandidateVerified, cmd.Type)
	var payload engine.CandidateVerifiedPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, "mintA", payload.Mint)
	assert.Equal(t, 0.9, payload.HoneypotScore)
}

func TestRequestEntry_BuyConfirmed(t *testing.T) {
	trader := &buyTrader{result: &chain.BuyResult{
		Price:     decimal.NewFromFloat(1.1),
		Size:      decimal.NewFromInt(1000),
		Signature: "sig",
	}}
	sink := newCmdSink()
	p := newEntryProcessor(trader, circuit.NewBreaker(3, 100, time.Hour, time.Hour), sink, 0)

	p.RequestEntry(engine.EntryRequest{Mint: "mintA", TraceID: "t1"})

	cmd := sink.wait(t)
	require.Equal(t, engine.CmdBuyConfirmed, cmd.Type)
	var payload engine.BuyConfirmedPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, 1.1, payload.Price)
	assert.True(t, payload.Stake.Equal(decimal.NewFromFloat(0.5)))
}

func TestRequestEntry_HaltedBreakerRejects(t *testing.T) {
	trader := &buyTrader{}
	breaker := circuit.NewBreaker(1, 100, time.Hour, time.Hour)
	breaker.RecordLoss(decimal.NewFromFloat(0.1))

	sink := newCmdSink()
	p := newEntryProcessor(trader, breaker, sink, 0)
	p.RequestEntry(engine.EntryRequest{Mint: "mintA"})

	cmd := sink.wait(t)
	require.Equal(t, engine.CmdBuyFailed, cmd.Type)
	var payload engine.BuyFailedPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, "circuit_breaker_open", payload.Reason)
	assert.Zero(t, trader.calls)
}

func TestRequestEntry_RateLimited(t *testing.T) {
	trader := &buyTrader{result: &chain.BuyResult{Price: decimal.NewFromFloat(1)}}
	sink := newCmdSink()
	// Burst of one: the second back-to-back entry is rejected.
	p := newEntryProcessor(trader, circuit.NewBreaker(3, 100, time.Hour, time.Hour), sink, 1)

	p.RequestEntry(engine.EntryRequest{Mint: "mintA"})
	first := sink.wait(t)
	require.Equal(t, engine.CmdBuyConfirmed, first.Type)

	p.RequestEntry(engine.EntryRequest{Mint: "mintB"})
	second := sink.wait(t)
	require.Equal(t, engine.CmdBuyFailed, second.Type)
	var payload engine.BuyFailedPayload
	require.NoError(t, json.Unmarshal(second.Payload, &payload))
	assert.Equal(t, "rate_limited", payload.Reason)
}

func TestRequestEntry_BuyErrorReportsFailure(t *testing.T) {
	trader := &buyTrader{err: errors.New("blockhash expired")}
	sink := newCmdSink()
	p := newEntryProcessor(trader, circuit.NewBreaker(3, 100, time.Hour, time.Hour), sink, 0)

	p.RequestEntry(engine.EntryRequest{Mint: "mintA"})

	cmd := sink.wait(t)
	require.Equal(t, engine.CmdBuyFailed, cmd.Type)
	var payload engine.BuyFailedPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Contains(t, payload.Reason, "blockhash expired")
}

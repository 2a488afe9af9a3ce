// Package signal sits between the feed and the position engine. It screens
// migration candidates, routes pool updates into the feature engine, and
// gates entry requests through the circuit breaker before any order is
// submitted. It holds no position state of its own.
package signal

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"raysniper/internal/chain"
	"raysniper/internal/config"
	"raysniper/internal/engine"
	"raysniper/internal/feature"
	"raysniper/internal/logger"
	"raysniper/internal/observability"
	"raysniper/internal/pkg/circuit"
	"raysniper/internal/safety"
)

// Commander is the engine surface the processor needs: fire-and-forget
// command submission.
type Commander interface {
	Send(cmd engine.Command) error
}

type Processor struct {
	entry config.EntryConfig
	sell  config.SellConfig

	analyzer *safety.Analyzer
	features *feature.Engine
	trader   chain.TradeClient
	breaker  *circuit.Breaker
	engine   Commander

	// limiter caps entries per minute when configured. nil means no cap.
	limiter *rate.Limiter

	inFlight sync.Map // mint -> struct{}
}

func NewProcessor(entry config.EntryConfig, sell config.SellConfig, analyzer *safety.Analyzer, features *feature.Engine, trader chain.TradeClient, breaker *circuit.Breaker, cmd Commander) *Processor {
	p := &Processor{
		entry:    entry,
		sell:     sell,
		analyzer: analyzer,
		features: features,
		trader:   trader,
		breaker:  breaker,
		engine:   cmd,
	}
	if entry.RatePerMin > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(entry.RatePerMin/60.0), 1)
	}
	return p
}

// OnMigration screens one deduplicated candidate. Runs on its own goroutine
// so slow safety services never stall pool-update dispatch.
func (p *Processor) OnMigration(c safety.Candidate) {
	go func() {
		ctx := context.Background()
		v := p.analyzer.Analyze(ctx, c)
		if !v.Passed {
			observability.RecordVerdict(v.Reason)
			logger.Infof("candidate %s rejected: %s", c.Mint, v.Reason)
			return
		}
		observability.RecordVerdict("passed")
		p.analyzer.RecordLaunch(ctx, c.Creator)
		cmd := engine.NewCommand(engine.CmdCandidateVerified, c.Mint, engine.CandidateVerifiedPayload{
			Mint:          c.Mint,
			Slot:          c.Slot,
			MigratedAt:    c.MigratedAt,
			PriceSOL:      c.PriceSOL,
			HoneypotScore: v.HoneypotScore,
			ContractScore: v.ContractScore,
		})
		if err := p.engine.Send(cmd); err != nil {
			logger.Warnf("candidate %s not delivered: %v", c.Mint, err)
		}
	}()
}

// OnPoolUpdate forwards a raw update into the feature engine. Unsubscribed
// mints are dropped there.
func (p *Processor) OnPoolUpdate(u feature.PoolUpdate) {
	p.features.Offer(u)
}

// RequestEntry submits a buy for a mint whose entry gate passed. Never
// blocks the caller; the outcome comes back as a command.
func (p *Processor) RequestEntry(req engine.EntryRequest) {
	if _, loaded := p.inFlight.LoadOrStore(req.Mint, struct{}{}); loaded {
		logger.Warnf("entry for %s already in flight, dropped", req.Mint)
		return
	}
	go func() {
		defer p.inFlight.Delete(req.Mint)

		if !p.breaker.Allow() {
			p.reject(req, "circuit_breaker_open")
			return
		}
		if p.limiter != nil && !p.limiter.Allow() {
			p.reject(req, "rate_limited")
			return
		}

		observability.RecordEntrySubmitted()
		ctx, cancel := context.WithTimeout(context.Background(), p.sell.SubmitTimeout())
		defer cancel()
		res, err := p.trader.Buy(ctx, chain.BuyRequest{
			Mint:        req.Mint,
			StakeSOL:    decimal.NewFromFloat(p.entry.StakeSOL),
			SlippagePct: p.sell.SlippagePct,
		})
		if err != nil {
			observability.RecordBuyOutcome("failed")
			logger.Warnf("buy for %s failed: %v (trace=%s)", req.Mint, err, req.TraceID)
			p.sendBuyFailed(req.Mint, err.Error())
			return
		}

		observability.RecordBuyOutcome("confirmed")
		logger.Infof("buy confirmed for %s price=%s size=%s (trace=%s)", req.Mint, res.Price, res.Size, req.TraceID)
		cmd := engine.NewCommand(engine.CmdBuyConfirmed, req.Mint, engine.BuyConfirmedPayload{
			Mint:      req.Mint,
			Price:     res.Price.InexactFloat64(),
			Size:      res.Size,
			Stake:     decimal.NewFromFloat(p.entry.StakeSOL),
			Signature: res.Signature,
		})
		if err := p.engine.Send(cmd); err != nil {
			logger.Errorf("buy confirmation for %s not delivered: %v", req.Mint, err)
		}
	}()
}

func (p *Processor) reject(req engine.EntryRequest, reason string) {
	observability.RecordEntryRejected(reason)
	logger.Infof("entry for %s rejected: %s (trace=%s)", req.Mint, reason, req.TraceID)
	p.sendBuyFailed(req.Mint, reason)
}

func (p *Processor) sendBuyFailed(mint, reason string) {
	cmd := engine.NewCommand(engine.CmdBuyFailed, mint, engine.BuyFailedPayload{
		Mint:   mint,
		Reason: reason,
	})
	if err := p.engine.Send(cmd); err != nil {
		logger.Errorf("buy failure for %s not delivered: %v", mint, err)
	}
}

// Package seller executes exit orders. A sell must eventually resolve to a
// confirmed or terminally failed outcome: the retry policy widens slippage
// per attempt, refreshes the vault cache once on a stale read, treats any
// other failure as terminal, and gives up after the configured attempt cap.
// Every terminal failure feeds the circuit breaker. Outcomes flow back to
// the engine as commands; the seller keeps no position state.
package seller

import (
	"context"
	"errors"
	"sync"
	"time"

	"raysniper/internal/chain"
	"raysniper/internal/config"
	"raysniper/internal/engine"
	"raysniper/internal/logger"
	"raysniper/internal/observability"
	"raysniper/internal/pkg/circuit"
)

// Commander is the engine surface the seller needs.
type Commander interface {
	Send(cmd engine.Command) error
}

type Processor struct {
	cfg     config.SellConfig
	trader  chain.TradeClient
	cache   *chain.Cache
	engine  Commander
	breaker *circuit.Breaker

	inFlight sync.Map // mint -> struct{}
}

func NewProcessor(cfg config.SellConfig, trader chain.TradeClient, cache *chain.Cache, cmd Commander, breaker *circuit.Breaker) *Processor {
	return &Processor{
		cfg:     cfg,
		trader:  trader,
		cache:   cache,
		engine:  cmd,
		breaker: breaker,
	}
}

// RequestSell runs the retry loop on its own goroutine. Repeat requests for
// a mint whose sell is still in flight coalesce into the existing attempt.
func (p *Processor) RequestSell(order engine.SellOrder) {
	if _, loaded := p.inFlight.LoadOrStore(order.Mint, struct{}{}); loaded {
		logger.Debugf("sell for %s already in flight, coalesced", order.Mint)
		return
	}
	go func() {
		defer p.inFlight.Delete(order.Mint)
		p.execute(order)
	}()
}

func (p *Processor) execute(order engine.SellOrder) {
	observability.RecordExitFired(order.Reason)

	maxAttempts := p.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	slippage := p.cfg.SlippagePct
	refreshed := false

	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SubmitTimeout())
		res, err := p.trader.Sell(ctx, chain.SellRequest{
			Mint:        order.Mint,
			Size:        order.Size,
			SlippagePct: slippage,
		})
		cancel()
		if err == nil {
			observability.RecordSellOutcome("confirmed", attempts)
			p.feedBreaker(order, res)
			logger.Infof("sell confirmed for %s proceeds=%s fees=%s attempts=%d (trace=%s)",
				order.Mint, res.Proceeds, res.Fees, attempts, order.TraceID)
			p.send(engine.NewCommand(engine.CmdSellConfirmed, order.Mint, engine.SellConfirmedPayload{
				Mint:      order.Mint,
				Proceeds:  res.Proceeds,
				Fees:      res.Fees,
				Reason:    order.Reason,
				Signature: res.Signature,
				Attempts:  attempts,
			}))
			return
		}
		lastErr = err

		retriable := false
		switch {
		case errors.Is(err, chain.ErrSlippageExceeded):
			retriable = true
			slippage += p.cfg.SlippageWidenStep
			logger.Warnf("sell %s attempt %d hit slippage, widening to %.2f%%", order.Mint, attempts, slippage)
		case errors.Is(err, chain.ErrStaleCache) && !refreshed:
			// One refresh per order; a second stale read means the account
			// really is gone and retrying the same way will not help.
			retriable = true
			refreshed = true
			rctx, rcancel := context.WithTimeout(context.Background(), p.cfg.SubmitTimeout())
			if _, rerr := p.cache.Refresh(rctx, order.Mint); rerr != nil {
				logger.Warnf("sell %s cache refresh failed: %v", order.Mint, rerr)
			}
			rcancel()
		}
		if !retriable {
			// Unclassified failures do not improve on retry; stop the
			// attempt cycle and report now.
			logger.Warnf("sell %s attempt %d failed: %v", order.Mint, attempts, err)
			break
		}

		if attempts < maxAttempts {
			time.Sleep(p.cfg.RetryBackoff())
		}
	}

	observability.RecordSellOutcome("failed", attempts)
	if p.breaker != nil {
		p.breaker.RecordFailure()
	}
	logger.Errorf("sell for %s failed after %d attempts: %v (trace=%s)", order.Mint, attempts, lastErr, order.TraceID)
	p.send(engine.NewCommand(engine.CmdSellFailed, order.Mint, engine.SellFailedPayload{
		Mint:     order.Mint,
		Reason:   lastErr.Error(),
		Attempts: attempts,
	}))
}

// feedBreaker turns the realized outcome into a breaker sample. The loss is
// the stake not recovered after fees.
func (p *Processor) feedBreaker(order engine.SellOrder, res *chain.SellResult) {
	if p.breaker == nil {
		return
	}
	pnl := res.Proceeds.Sub(res.Fees).Sub(order.Stake)
	if pnl.IsNegative() {
		p.breaker.RecordLoss(pnl.Neg())
	} else {
		p.breaker.RecordWin()
	}
}

func (p *Processor) send(cmd engine.Command) {
	if err := p.engine.Send(cmd); err != nil {
		logger.Errorf("sell outcome for %s not delivered: %v", cmd.Mint, err)
	}
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"raysniper/internal/feature"
	"raysniper/internal/logger"
	"raysniper/internal/store"
	"raysniper/internal/strategy/exit"
)

// persistCtx bounds ledger writes so a wedged database cannot stall the
// actor loop forever. A failed write drops the command without mutating
// state: write-before-acknowledge.
func persistCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (e *Engine) applyCandidateVerified(cmd Command) error {
	var p CandidateVerifiedPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return fmt.Errorf("invalid candidate payload: %w", err)
	}
	if p.Mint == "" {
		return fmt.Errorf("candidate missing mint")
	}
	if _, ok := e.state.Positions[p.Mint]; ok {
		logger.Errorf("internal: candidate for mint %s with live position, dropped", p.Mint)
		return nil
	}
	if _, ok := e.state.Observers[p.Mint]; ok {
		logger.Warnf("candidate for mint %s already observed, dropped", p.Mint)
		return nil
	}
	e.state.Observers[p.Mint] = &Observer{
		Mint:       p.Mint,
		CreatedAt:  cmd.CreatedAt,
		FirstPrice: p.PriceSOL,
	}
	if e.telemetry != nil {
		e.telemetry.Subscribe(p.Mint)
	}
	logger.Infof("observing %s (honeypot=%.2f contract=%.2f)", p.Mint, p.HoneypotScore, p.ContractScore)
	return nil
}

func (e *Engine) applyTickUpdate(cmd Command) error {
	var p TickPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return fmt.Errorf("invalid tick payload: %w", err)
	}
	snap := p.Snapshot
	if obs, ok := e.state.Observers[snap.Mint]; ok {
		return e.tickObserver(obs, snap)
	}
	if pos, ok := e.state.Positions[snap.Mint]; ok {
		return e.tickPosition(pos, snap)
	}
	// Late tick for a mint already released; discard.
	return nil
}

func (e *Engine) tickObserver(obs *Observer, snap feature.Snapshot) error {
	obs.Ticks++
	obs.LastSnap = snap
	if obs.FirstPrice <= 0 {
		obs.FirstPrice = snap.Price
	}
	if !e.gatePasses(snap) {
		return nil
	}
	if e.state.openCount() >= e.entry.MaxOpenPositions {
		logger.Debugf("gate passed for %s but %d positions already open", obs.Mint, e.state.openCount())
		return nil
	}
	rec := store.LifecycleRecord{
		Mint:      obs.Mint,
		Lifecycle: string(LifecycleEntering),
		Phase:     string(exit.PhaseDiscovery),
		At:        snap.At,
	}
	ctx, cancel := persistCtx()
	defer cancel()
	if err := e.ledger.AppendLifecycle(ctx, rec); err != nil {
		return fmt.Errorf("persist entering for %s: %w", obs.Mint, err)
	}
	delete(e.state.Observers, obs.Mint)
	e.state.Positions[obs.Mint] = &Position{
		Mint:       obs.Mint,
		Lifecycle:  LifecycleEntering,
		Phase:      exit.PhaseDiscovery,
		PhaseSince: snap.At,
		LastPrice:  snap.Price,
		LastTickAt: snap.At,
	}
	logger.Infof("entry gate passed for %s at %.9f (volratio=%.2f momentum=%.2f%%)",
		obs.Mint, snap.Price, snap.VolumeRatio, snap.MomentumPct*100)
	if e.entrySink != nil {
		e.entrySink.RequestEntry(EntryRequest{
			Mint:          obs.Mint,
			ObservedPrice: snap.Price,
			TraceID:       uuid.NewString(),
		})
	}
	return nil
}

func (e *Engine) gatePasses(snap feature.Snapshot) bool {
	if e.entry.MinVolumeRatio > 0 && snap.VolumeRatio < e.entry.MinVolumeRatio {
		return false
	}
	if e.entry.MinMomentumPct > 0 && snap.MomentumPct < e.entry.MinMomentumPct {
		return false
	}
	return snap.Price > 0
}

func (e *Engine) tickPosition(pos *Position, snap feature.Snapshot) error {
	pos.LastPrice = snap.Price
	pos.LastTickAt = snap.At
	if pos.Lifecycle != LifecycleOpen {
		return nil
	}
	if snap.Price > pos.PeakPrice {
		pos.PeakPrice = snap.Price
	}
	if pos.EntryPrice > 0 && pos.PeakPrice > pos.EntryPrice {
		pos.RunupPct = (pos.PeakPrice - pos.EntryPrice) / pos.EntryPrice
	}
	// Drawdown is measured from the position's own peak since entry, not the
	// tracker's all-history peak.
	if pos.PeakPrice > 0 && snap.Price < pos.PeakPrice {
		pos.DrawdownPct = (pos.PeakPrice - snap.Price) / pos.PeakPrice
	} else {
		pos.DrawdownPct = 0
	}
	snap.PeakPrice = pos.PeakPrice
	snap.DrawdownPct = pos.DrawdownPct

	if pos.SellInFlight {
		return nil
	}

	next := exit.Progress(e.exitCfg, pos.Phase, pos.RunupPct, pos.DrawdownPct,
		snap.At.Sub(pos.OpenedAt), snap.At.Sub(pos.PhaseSince))
	if next != pos.Phase {
		logger.Infof("position %s phase %s -> %s (runup=%.1f%% drawdown=%.1f%%)",
			pos.Mint, pos.Phase, next, pos.RunupPct*100, pos.DrawdownPct*100)
		pos.Phase = next
		pos.PhaseSince = snap.At
	}

	view := exit.PositionView{
		Mint:       pos.Mint,
		EntryPrice: pos.EntryPrice,
		OpenedAt:   pos.OpenedAt,
		Phase:      pos.Phase,
		RunupPct:   pos.RunupPct,
	}
	reason, fired := exit.Evaluate(e.exitCfg.Params(string(pos.Phase)), view, snap)
	if !fired {
		return nil
	}
	return e.triggerSell(pos, reason, snap.At)
}

func (e *Engine) triggerSell(pos *Position, reason string, at time.Time) error {
	rec := store.LifecycleRecord{
		Mint:       pos.Mint,
		Lifecycle:  string(LifecycleClosingSell),
		Phase:      string(pos.Phase),
		EntryPrice: pos.EntryPrice,
		Stake:      pos.Stake,
		Size:       pos.Size,
		Reason:     reason,
		At:         at,
	}
	ctx, cancel := persistCtx()
	defer cancel()
	if err := e.ledger.AppendLifecycle(ctx, rec); err != nil {
		return fmt.Errorf("persist closing_sell for %s: %w", pos.Mint, err)
	}
	pos.Lifecycle = LifecycleClosingSell
	pos.SellInFlight = true
	pos.ExitReason = reason
	logger.Infof("exit fired for %s: %s (phase=%s)", pos.Mint, reason, pos.Phase)
	if e.sellSink != nil {
		e.sellSink.RequestSell(SellOrder{
			Mint:    pos.Mint,
			Size:    pos.Size,
			Stake:   pos.Stake,
			Reason:  reason,
			TraceID: uuid.NewString(),
		})
	}
	return nil
}

func (e *Engine) applyBuyConfirmed(cmd Command) error {
	var p BuyConfirmedPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return fmt.Errorf("invalid buy confirmed payload: %w", err)
	}
	pos, ok := e.state.Positions[p.Mint]
	if !ok || pos.Lifecycle != LifecycleEntering {
		logger.Errorf("internal: buy confirmed for %s without entering position, dropped", p.Mint)
		return nil
	}
	rec := store.LifecycleRecord{
		Mint:       p.Mint,
		Lifecycle:  string(LifecycleOpen),
		Phase:      string(exit.PhaseDiscovery),
		EntryPrice: p.Price,
		Stake:      p.Stake,
		Size:       p.Size,
		At:         cmd.CreatedAt,
	}
	ctx, cancel := persistCtx()
	defer cancel()
	if err := e.ledger.AppendLifecycle(ctx, rec); err != nil {
		return fmt.Errorf("persist open for %s: %w", p.Mint, err)
	}
	pos.Lifecycle = LifecycleOpen
	pos.Phase = exit.PhaseDiscovery
	pos.EntryPrice = p.Price
	pos.Stake = p.Stake
	pos.Size = p.Size
	pos.OpenedAt = cmd.CreatedAt
	pos.PhaseSince = cmd.CreatedAt
	pos.PeakPrice = p.Price
	pos.SellInFlight = false
	logger.Infof("position open %s price=%.9f size=%s stake=%s", p.Mint, p.Price, p.Size, p.Stake)
	return nil
}

func (e *Engine) applyBuyFailed(cmd Command) error {
	var p BuyFailedPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return fmt.Errorf("invalid buy failed payload: %w", err)
	}
	pos, ok := e.state.Positions[p.Mint]
	if !ok || pos.Lifecycle != LifecycleEntering {
		logger.Warnf("buy failed for %s without entering position, dropped", p.Mint)
		return nil
	}
	ctx, cancel := persistCtx()
	defer cancel()
	if err := e.ledger.AppendOperation(ctx, store.OperationRecord{
		Mint:   p.Mint,
		Op:     "buy_failed",
		Reason: p.Reason,
		At:     cmd.CreatedAt,
	}); err != nil {
		logger.Warnf("persist buy_failed operation for %s: %v", p.Mint, err)
	}
	delete(e.state.Positions, p.Mint)
	if e.telemetry != nil {
		e.telemetry.Unsubscribe(p.Mint)
	}
	logger.Infof("entry abandoned for %s: %s", p.Mint, p.Reason)
	return nil
}

func (e *Engine) applySellRequested(cmd Command) error {
	var p SellRequestedPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return fmt.Errorf("invalid sell requested payload: %w", err)
	}
	pos, ok := e.state.Positions[p.Mint]
	if !ok {
		logger.Warnf("sell requested for unknown mint %s, dropped", p.Mint)
		return nil
	}
	if pos.Lifecycle == LifecycleClosingSell {
		// Already closing; coalesce.
		return nil
	}
	if pos.Lifecycle != LifecycleOpen {
		logger.Warnf("sell requested for %s in lifecycle %s, dropped", p.Mint, pos.Lifecycle)
		return nil
	}
	reason := p.Reason
	if reason == "" {
		reason = exit.ReasonForced
	}
	return e.triggerSell(pos, reason, cmd.CreatedAt)
}

func (e *Engine) applySellConfirmed(cmd Command) error {
	var p SellConfirmedPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return fmt.Errorf("invalid sell confirmed payload: %w", err)
	}
	pos, ok := e.state.Positions[p.Mint]
	if !ok || pos.Lifecycle != LifecycleClosingSell {
		logger.Errorf("internal: sell confirmed for %s without closing position, dropped", p.Mint)
		return nil
	}
	pnl := p.Proceeds.Sub(p.Fees).Sub(pos.Stake)
	rec := store.LifecycleRecord{
		Mint:       p.Mint,
		Lifecycle:  string(LifecycleClosed),
		Phase:      string(pos.Phase),
		EntryPrice: pos.EntryPrice,
		Stake:      pos.Stake,
		Size:       pos.Size,
		Reason:     pos.ExitReason,
		Proceeds:   p.Proceeds,
		Fees:       p.Fees,
		PnL:        pnl,
		At:         cmd.CreatedAt,
	}
	ctx, cancel := persistCtx()
	defer cancel()
	if err := e.ledger.CloseLifecycle(ctx, rec); err != nil {
		return fmt.Errorf("persist closed for %s: %w", p.Mint, err)
	}
	e.state.RealizedPnL = e.state.RealizedPnL.Add(pnl)
	e.state.ClosedCount++
	if pnl.IsPositive() {
		e.state.Wins++
	} else {
		e.state.Losses++
	}
	delete(e.state.Positions, p.Mint)
	if e.telemetry != nil {
		e.telemetry.Unsubscribe(p.Mint)
	}
	logger.Infof("position closed %s reason=%s proceeds=%s fees=%s pnl=%s",
		p.Mint, pos.ExitReason, p.Proceeds, p.Fees, pnl)
	return nil
}

func (e *Engine) applySellFailed(cmd Command) error {
	var p SellFailedPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return fmt.Errorf("invalid sell failed payload: %w", err)
	}
	pos, ok := e.state.Positions[p.Mint]
	if !ok || pos.Lifecycle != LifecycleClosingSell {
		logger.Warnf("sell failed for %s without closing position, dropped", p.Mint)
		return nil
	}
	// Retry policy in the sell processor is exhausted; re-arm exit
	// evaluation by putting the position back to Open.
	rec := store.LifecycleRecord{
		Mint:       p.Mint,
		Lifecycle:  string(LifecycleOpen),
		Phase:      string(pos.Phase),
		EntryPrice: pos.EntryPrice,
		Stake:      pos.Stake,
		Size:       pos.Size,
		Reason:     "sell_failed:" + p.Reason,
		At:         cmd.CreatedAt,
	}
	ctx, cancel := persistCtx()
	defer cancel()
	if err := e.ledger.AppendLifecycle(ctx, rec); err != nil {
		return fmt.Errorf("persist sell_failed re-arm for %s: %w", p.Mint, err)
	}
	pos.Lifecycle = LifecycleOpen
	pos.SellInFlight = false
	pos.SellAttempts += p.Attempts
	pos.ExitReason = ""
	logger.Warnf("sell failed for %s after %d attempts: %s (re-armed)", p.Mint, p.Attempts, p.Reason)
	return nil
}

func (e *Engine) applySweep(cmd Command) error {
	var p SweepPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return fmt.Errorf("invalid sweep payload: %w", err)
	}
	at := p.At
	if at.IsZero() {
		at = cmd.CreatedAt
	}
	timeout := time.Duration(e.entry.ObserverTimeoutSec) * time.Second
	for mint, obs := range e.state.Observers {
		if at.Sub(obs.CreatedAt) < timeout {
			continue
		}
		delete(e.state.Observers, mint)
		if e.telemetry != nil {
			e.telemetry.Unsubscribe(mint)
		}
		logger.Debugf("observer %s expired after %d ticks", mint, obs.Ticks)
	}
	return nil
}

func (e *Engine) applyExitParams(cmd Command) error {
	var p ExitParamsPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return fmt.Errorf("invalid exit params payload: %w", err)
	}
	e.exitCfg = p.Exit
	logger.Infof("exit parameters swapped in")
	return nil
}

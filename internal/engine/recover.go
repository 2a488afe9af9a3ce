package engine

import (
	"context"
	"fmt"
	"time"

	"raysniper/internal/logger"
	"raysniper/internal/strategy/exit"
)

// Recover rebuilds in-memory positions from the lifecycle ledger. It must
// run before Start: it writes state directly, which is only safe while the
// actor loop is not consuming commands.
//
// A position whose latest record is closing_sell comes back as Open with no
// sell in flight. The pre-crash sell may or may not have landed on chain;
// re-arming exit evaluation lets the next matching rule fire again, and the
// sell processor tolerates selling an already-empty balance.
func (e *Engine) Recover(ctx context.Context) error {
	recs, err := e.ledger.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished lifecycles: %w", err)
	}
	now := time.Now()
	for _, rec := range recs {
		phase := exit.Phase(rec.Phase)
		switch phase {
		case exit.PhaseChaos, exit.PhaseDiscovery, exit.PhaseTrending, exit.PhaseMature:
		default:
			phase = exit.PhaseDiscovery
		}
		pos := &Position{
			Mint:       rec.Mint,
			Lifecycle:  LifecycleOpen,
			Phase:      phase,
			EntryPrice: rec.EntryPrice,
			Stake:      rec.Stake,
			Size:       rec.Size,
			OpenedAt:   rec.At,
			PhaseSince: rec.At,
			PeakPrice:  rec.EntryPrice,
			LastTickAt: rec.At,
		}
		if rec.Lifecycle == string(LifecycleClosingSell) {
			logger.Warnf("recovered %s from closing_sell, sell outcome unknown, re-armed as open", rec.Mint)
		}
		e.state.Positions[rec.Mint] = pos
		if e.telemetry != nil {
			e.telemetry.Subscribe(rec.Mint)
		}
		logger.Infof("recovered position %s phase=%s entry=%.9f opened=%s",
			rec.Mint, pos.Phase, pos.EntryPrice, rec.At.Format(time.RFC3339))
	}
	if len(recs) > 0 {
		logger.Infof("recovery complete: %d positions rehydrated in %v", len(recs), time.Since(now))
	}
	e.refreshSnapshot(true)
	return nil
}

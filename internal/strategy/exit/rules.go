// Package exit decides when an open position must be closed. Rules are
// dispatched through a fixed-order table; the first satisfied rule supplies
// the exit reason. The order is part of the contract with the offline
// simulator and must not be rearranged.
package exit

import (
	"math"
	"time"

	"raysniper/internal/config"
	"raysniper/internal/feature"
)

// Reasons recorded on triggered exits, in rule priority order.
const (
	ReasonShockDrop    = "shock_drop"
	ReasonCreatorExit  = "creator_exit"
	ReasonWhaleDump    = "whale_dump"
	ReasonPanicFlow    = "panic_flow"
	ReasonTrailingStop = "trailing_stop"
	ReasonDrawdownCap  = "drawdown_cap"
	ReasonReversal     = "momentum_reversal"
	ReasonChurnTimeout = "churn_timeout"
	ReasonForced       = "forced"
)

// PositionView is the slice of position state the rules may read.
type PositionView struct {
	Mint       string
	EntryPrice float64
	OpenedAt   time.Time
	Phase      Phase
	// RunupPct is the high-water gain since entry, (peak-entry)/entry.
	RunupPct float64
}

type rule struct {
	reason string
	fires  func(p config.PhaseParams, pos PositionView, snap feature.Snapshot) bool
}

// ruleTable is evaluated top to bottom once per tick.
var ruleTable = []rule{
	{ReasonShockDrop, fireShockDrop},
	{ReasonCreatorExit, fireCreatorExit},
	{ReasonWhaleDump, fireWhaleDump},
	{ReasonPanicFlow, firePanicFlow},
	{ReasonTrailingStop, fireTrailingStop},
	{ReasonDrawdownCap, fireDrawdownCap},
	{ReasonReversal, fireReversal},
	{ReasonChurnTimeout, fireChurnTimeout},
}

// Evaluate runs the rule table against the latest snapshot. It returns the
// exit reason and true when the position must be closed.
func Evaluate(p config.PhaseParams, pos PositionView, snap feature.Snapshot) (string, bool) {
	for _, r := range ruleTable {
		if r.fires(p, pos, snap) {
			return r.reason, true
		}
	}
	return "", false
}

func fireShockDrop(p config.PhaseParams, _ PositionView, snap feature.Snapshot) bool {
	return p.ShockDropPct > 0 && snap.ShockDropPct >= p.ShockDropPct
}

func fireCreatorExit(_ config.PhaseParams, _ PositionView, snap feature.Snapshot) bool {
	return snap.CreatorExit
}

func fireWhaleDump(_ config.PhaseParams, _ PositionView, snap feature.Snapshot) bool {
	return snap.WhaleDump
}

func firePanicFlow(_ config.PhaseParams, _ PositionView, snap feature.Snapshot) bool {
	return snap.PanicFlow
}

// fireTrailingStop tightens the trail as unrealized gain grows: the base
// trail narrows by TrailTightenStep for every TrailTightenPer of run-up,
// floored at TrailMinPct.
func fireTrailingStop(p config.PhaseParams, pos PositionView, snap feature.Snapshot) bool {
	if p.TrailActivatePct <= 0 || pos.RunupPct < p.TrailActivatePct {
		return false
	}
	trail := p.TrailPct
	if p.TrailTightenPer > 0 && p.TrailTightenStep > 0 {
		steps := math.Floor(pos.RunupPct / p.TrailTightenPer)
		trail -= steps * p.TrailTightenStep
	}
	if p.TrailMinPct > 0 && trail < p.TrailMinPct {
		trail = p.TrailMinPct
	}
	if trail <= 0 {
		return false
	}
	return snap.DrawdownPct >= trail
}

// fireDrawdownCap widens the allowed drawdown with the run-up tier: a
// position that ran far is given more room than one that never moved.
func fireDrawdownCap(p config.PhaseParams, pos PositionView, snap feature.Snapshot) bool {
	if p.DrawdownCapPct <= 0 {
		return false
	}
	cap := p.DrawdownCapPct
	if p.DrawdownTierScale > 0 {
		tier := math.Floor(pos.RunupPct / 0.5)
		if tier > 4 {
			tier = 4
		}
		if tier > 0 {
			cap *= 1 + p.DrawdownTierScale*tier
		}
	}
	return snap.DrawdownPct >= cap
}

func fireReversal(p config.PhaseParams, _ PositionView, snap feature.Snapshot) bool {
	return p.ReversalTicks > 0 && snap.RedStreak >= p.ReversalTicks && snap.MomentumPct < 0
}

// fireChurnTimeout closes duds: price pinned near entry for longer than the
// phase allows. Elapsed time comes from the snapshot timestamp, not wall
// clock, to stay replayable.
func fireChurnTimeout(p config.PhaseParams, pos PositionView, snap feature.Snapshot) bool {
	if p.ChurnTimeoutSec <= 0 || pos.EntryPrice <= 0 {
		return false
	}
	if snap.At.Sub(pos.OpenedAt) < time.Duration(p.ChurnTimeoutSec)*time.Second {
		return false
	}
	flat := math.Abs(snap.Price-pos.EntryPrice) / pos.EntryPrice
	return flat <= p.ChurnFlatPct
}

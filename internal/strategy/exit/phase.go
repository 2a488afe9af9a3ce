package exit

import (
	"time"

	"raysniper/internal/config"
)

// Phase is the coarse lifecycle stage of an open position. It selects which
// parameter bundle the rule table reads.
type Phase string

const (
	PhaseChaos     Phase = "chaos"
	PhaseDiscovery Phase = "discovery"
	PhaseTrending  Phase = "trending"
	PhaseMature    Phase = "mature"
)

// Progress returns the next phase for a position. Movement is forward only
// (Discovery → Trending → Mature), with one exception: a severe reversal
// drops Trending/Mature back to Chaos so exits tighten, and Chaos recovers
// to Discovery after the configured settle time.
func Progress(cfg config.ExitConfig, current Phase, runupPct, drawdownPct float64, heldFor, inPhaseFor time.Duration) Phase {
	switch current {
	case PhaseChaos:
		if inPhaseFor >= time.Duration(cfg.DiscoveryAfterSec)*time.Second {
			return PhaseDiscovery
		}
		return PhaseChaos
	case PhaseDiscovery:
		if runupPct >= cfg.MatureRunupPct {
			return PhaseMature
		}
		if runupPct >= cfg.TrendingRunupPct {
			return PhaseTrending
		}
		return PhaseDiscovery
	case PhaseTrending:
		if drawdownPct >= cfg.ReversalDemotePct {
			return PhaseChaos
		}
		if runupPct >= cfg.MatureRunupPct || heldFor >= time.Duration(cfg.MatureAfterSec)*time.Second {
			return PhaseMature
		}
		return PhaseTrending
	case PhaseMature:
		if drawdownPct >= cfg.ReversalDemotePct {
			return PhaseChaos
		}
		return PhaseMature
	default:
		return PhaseDiscovery
	}
}

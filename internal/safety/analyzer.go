// Package safety screens migration candidates before any capital is
// committed. All checks run concurrently; any check that errors or times out
// fails the candidate closed.
package safety

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"raysniper/internal/config"
	"raysniper/internal/logger"
	"raysniper/internal/store"
)

// Candidate is a deduplicated migration event handed over by the watcher.
type Candidate struct {
	Mint       string
	Creator    string
	Slot       uint64
	MigratedAt time.Time
	PriceSOL   float64
}

// Verdict is the analyzer's decision. A failed verdict carries the first
// reason that rejected the candidate.
type Verdict struct {
	Passed        bool
	Reason        string
	HoneypotScore float64
	ContractScore float64
}

// CreatorIntel answers whether a creator wallet is on the operator's
// flagged list.
type CreatorIntel interface {
	Flagged(wallet string) bool
}

type Analyzer struct {
	cfg       config.SafetyConfig
	checksOff bool
	honeypot  Check
	contract  Check
	intel     CreatorIntel
	reps      store.Caches
}

func NewAnalyzer(cfg config.SafetyConfig, checksOff bool, intel CreatorIntel, reps store.Caches) *Analyzer {
	return &Analyzer{
		cfg:       cfg,
		checksOff: checksOff,
		honeypot:  newHTTPCheck("honeypot", cfg.HoneypotURL, cfg.CheckTimeout()),
		contract:  newHTTPCheck("contract", cfg.ContractURL, cfg.CheckTimeout()),
		intel:     intel,
		reps:      reps,
	}
}

// WithChecks swaps in alternative check implementations. Test hook.
func (a *Analyzer) WithChecks(honeypot, contract Check) *Analyzer {
	a.honeypot = honeypot
	a.contract = contract
	return a
}

// Analyze screens one candidate. The returned verdict is final: a rejected
// mint is dropped, never retried.
func (a *Analyzer) Analyze(ctx context.Context, c Candidate) Verdict {
	if a.checksOff {
		logger.Warnf("safety checks bypassed for %s", c.Mint)
		return Verdict{Passed: true, Reason: "checks_off"}
	}

	if c.Creator != "" && a.intel != nil && a.intel.Flagged(c.Creator) {
		return Verdict{Reason: "creator_flagged"}
	}
	if rep := a.creatorReputation(ctx, c.Creator); rep != nil && rep.Rugs > 0 {
		return Verdict{Reason: "creator_flagged"}
	}

	var honeypotScore, contractScore float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, a.cfg.CheckTimeout())
		defer cancel()
		score, err := a.honeypot.Run(cctx, c.Mint)
		if err != nil {
			return err
		}
		honeypotScore = score
		return nil
	})
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, a.cfg.CheckTimeout())
		defer cancel()
		score, err := a.contract.Run(cctx, c.Mint)
		if err != nil {
			return err
		}
		contractScore = score
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Warnf("safety check unavailable for %s: %v", c.Mint, err)
		return Verdict{Reason: "check_unavailable"}
	}

	v := Verdict{HoneypotScore: honeypotScore, ContractScore: contractScore}
	if honeypotScore < a.cfg.MinHoneypotScore {
		v.Reason = "honeypot_risk"
		return v
	}
	if contractScore < a.cfg.MinContractScore {
		v.Reason = "contract_risk"
		return v
	}
	v.Passed = true
	return v
}

// creatorReputation reads the persisted reputation cache. Best effort: a
// store error never blocks the decision, the HTTP checks still run.
func (a *Analyzer) creatorReputation(ctx context.Context, wallet string) *store.CreatorReputation {
	if a.reps == nil || wallet == "" {
		return nil
	}
	rep, err := a.reps.GetCreatorReputation(ctx, wallet)
	if err != nil {
		logger.Warnf("creator reputation lookup for %s: %v", wallet, err)
		return nil
	}
	return rep
}

// RecordLaunch bumps the creator's launch counter after a candidate is
// observed. Called off the hot path.
func (a *Analyzer) RecordLaunch(ctx context.Context, wallet string) {
	if a.reps == nil || wallet == "" {
		return
	}
	rep, err := a.reps.GetCreatorReputation(ctx, wallet)
	if err != nil {
		return
	}
	next := store.CreatorReputation{Wallet: wallet, Launches: 1, UpdatedAt: time.Now()}
	if rep != nil {
		next.Launches = rep.Launches + 1
		next.Rugs = rep.Rugs
		next.Score = rep.Score
	}
	if err := a.reps.UpsertCreatorReputation(ctx, next); err != nil {
		logger.Warnf("creator reputation upsert for %s: %v", wallet, err)
	}
}

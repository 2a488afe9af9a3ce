// Package replay runs captured feed traffic through the exact derivation
// and exit rules the live path uses. Because snapshots and rule evaluation
// depend only on the update history, a replayed capture reproduces live
// decisions bit for bit; only order execution is simulated.
package replay

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"raysniper/internal/config"
	"raysniper/internal/feature"
	"raysniper/internal/logger"
	"raysniper/internal/strategy/exit"
	"raysniper/internal/watcher"
)

// Trade is one simulated entry/exit pair.
type Trade struct {
	Mint       string
	EntryPrice float64
	ExitPrice  float64
	Reason     string
	Phase      exit.Phase
	OpenedAt   time.Time
	ClosedAt   time.Time
	ReturnPct  float64
}

type Report struct {
	Candidates int
	Entries    int
	Trades     []Trade
}

func (r *Report) Print() {
	wins, losses := 0, 0
	total := 0.0
	for _, t := range r.Trades {
		if t.ReturnPct > 0 {
			wins++
		} else {
			losses++
		}
		total += t.ReturnPct
	}
	logger.Infof("replay: %d candidates, %d entries, %d closed", r.Candidates, r.Entries, len(r.Trades))
	for _, t := range r.Trades {
		logger.Infof("  %s %s held=%s return=%+.1f%% (%s)",
			t.Mint, t.Reason, t.ClosedAt.Sub(t.OpenedAt).Round(time.Second), t.ReturnPct*100, t.Phase)
	}
	logger.Infof("replay: wins=%d losses=%d total return=%+.1f%%", wins, losses, total*100)
}

// simPosition mirrors the live position fields the exit rules read.
type simPosition struct {
	entryPrice float64
	openedAt   time.Time
	phase      exit.Phase
	phaseSince time.Time
	peak       float64
	runup      float64
}

type Runner struct {
	entry config.EntryConfig
	exit  config.ExitConfig
}

func NewRunner(entry config.EntryConfig, exitCfg config.ExitConfig) *Runner {
	return &Runner{entry: entry, exit: exitCfg}
}

// Run consumes a JSONL capture file, one feed frame per line.
func (r *Runner) Run(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	th := feature.Thresholds{
		WhaleDumpSOL:      r.exit.WhaleDumpSOL,
		PanicOutflowCount: r.exit.PanicOutflowCount,
		PanicOutflowSOL:   r.exit.PanicOutflowSOL,
		PanicWindow:       time.Duration(r.exit.PanicOutflowWindow) * time.Second,
	}

	report := &Report{}
	trackers := make(map[string]*feature.Tracker)
	observing := make(map[string]time.Time)
	positions := make(map[string]*simPosition)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		fr, ok := watcher.ParseFrame(scanner.Bytes())
		if !ok {
			continue
		}
		switch fr.Kind {
		case watcher.FrameMigration:
			mint := fr.Candidate.Mint
			if _, seen := trackers[mint]; seen {
				continue
			}
			report.Candidates++
			trackers[mint] = feature.NewTracker(mint, th, nil)
			observing[mint] = fr.Candidate.MigratedAt
		case watcher.FrameSwap:
			tr, ok := trackers[fr.Update.Mint]
			if !ok {
				continue
			}
			snap := tr.Apply(fr.Update)
			r.step(report, observing, positions, snap)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line, err)
	}
	return report, nil
}

// step advances one mint by one snapshot: the same gate, phase progression,
// and rule table the live engine applies.
func (r *Runner) step(report *Report, observing map[string]time.Time, positions map[string]*simPosition, snap feature.Snapshot) {
	mint := snap.Mint
	if since, ok := observing[mint]; ok {
		timeout := time.Duration(r.entry.ObserverTimeoutSec) * time.Second
		if timeout > 0 && snap.At.Sub(since) >= timeout {
			delete(observing, mint)
			return
		}
		if !r.gatePasses(snap) {
			return
		}
		delete(observing, mint)
		positions[mint] = &simPosition{
			entryPrice: snap.Price,
			openedAt:   snap.At,
			phase:      exit.PhaseDiscovery,
			phaseSince: snap.At,
			peak:       snap.Price,
		}
		report.Entries++
		return
	}

	pos, ok := positions[mint]
	if !ok {
		return
	}
	if snap.Price > pos.peak {
		pos.peak = snap.Price
	}
	if pos.entryPrice > 0 && pos.peak > pos.entryPrice {
		pos.runup = (pos.peak - pos.entryPrice) / pos.entryPrice
	}
	drawdown := 0.0
	if pos.peak > 0 && snap.Price < pos.peak {
		drawdown = (pos.peak - snap.Price) / pos.peak
	}
	snap.PeakPrice = pos.peak
	snap.DrawdownPct = drawdown

	next := exit.Progress(r.exit, pos.phase, pos.runup, drawdown,
		snap.At.Sub(pos.openedAt), snap.At.Sub(pos.phaseSince))
	if next != pos.phase {
		pos.phase = next
		pos.phaseSince = snap.At
	}

	view := exit.PositionView{
		Mint:       mint,
		EntryPrice: pos.entryPrice,
		OpenedAt:   pos.openedAt,
		Phase:      pos.phase,
		RunupPct:   pos.runup,
	}
	reason, fired := exit.Evaluate(r.exit.Params(string(pos.phase)), view, snap)
	if !fired {
		return
	}
	delete(positions, mint)
	report.Trades = append(report.Trades, Trade{
		Mint:       mint,
		EntryPrice: pos.entryPrice,
		ExitPrice:  snap.Price,
		Reason:     reason,
		Phase:      pos.phase,
		OpenedAt:   pos.openedAt,
		ClosedAt:   snap.At,
		ReturnPct:  (snap.Price - pos.entryPrice) / pos.entryPrice,
	})
}

func (r *Runner) gatePasses(snap feature.Snapshot) bool {
	if r.entry.MinVolumeRatio > 0 && snap.VolumeRatio < r.entry.MinVolumeRatio {
		return false
	}
	if r.entry.MinMomentumPct > 0 && snap.MomentumPct < r.entry.MinMomentumPct {
		return false
	}
	return snap.Price > 0
}

// Package feature derives per-mint microstructure signals from raw pool
// updates. Everything here is pure with respect to the update history: the
// same sequence of PoolUpdate values always produces the same snapshots,
// which is what lets the offline simulator replay live decisions exactly.
package feature

import (
	"sync"
	"time"
)

// PoolUpdate is one observed swap or vault change for a mint.
type PoolUpdate struct {
	Mint      string
	Price     float64
	AmountSOL float64 // traded size in SOL
	IsSell    bool
	Wallet    string
	IsCreator bool
	Slot      uint64
	At        time.Time
}

// Snapshot is the derived tick bundle handed to exit evaluation. It is
// read-only and never persisted as canonical state.
type Snapshot struct {
	Mint         string
	Seq          uint64
	Price        float64
	PeakPrice    float64
	VolumeRatio  float64 // short-window volume over long-window average
	MomentumPct  float64 // price change across the short window
	ShockDropPct float64 // single-update collapse, positive when dropping
	DrawdownPct  float64 // from peak, positive when below peak
	RedStreak    int     // consecutive down updates
	WhaleDump    bool
	CreatorExit  bool
	PanicFlow    bool
	At           time.Time
}

// Thresholds are the flag cutoffs shared by every tracker. They come from the
// exit section of the parameter file.
type Thresholds struct {
	WhaleDumpSOL      float64
	PanicOutflowCount int
	PanicOutflowSOL   float64
	PanicWindow       time.Duration
}

// WhaleList reports operator-tagged whale wallets. Sells from a tagged
// wallet flag as whale dumps regardless of size. nil disables the lookup.
type WhaleList interface {
	Whale(wallet string) bool
}

const (
	shortSpan = 10 * time.Second
	longSpan  = 60 * time.Second
)

// Tracker accumulates one mint's update history.
type Tracker struct {
	mint       string
	thresholds Thresholds
	whales     WhaleList

	seq        uint64
	lastPrice  float64
	peakPrice  float64
	redStreak  int
	shortVol   *rollingWindow
	longVol    *rollingWindow
	shortPrice *rollingWindow
	outflows   *rollingWindow
}

func NewTracker(mint string, th Thresholds, whales WhaleList) *Tracker {
	if th.PanicWindow <= 0 {
		th.PanicWindow = 20 * time.Second
	}
	return &Tracker{
		mint:       mint,
		thresholds: th,
		whales:     whales,
		shortVol:   newRollingWindow(shortSpan),
		longVol:    newRollingWindow(longSpan),
		shortPrice: newRollingWindow(shortSpan),
		outflows:   newRollingWindow(th.PanicWindow),
	}
}

// Apply folds one update into the tracker and returns the derived snapshot.
func (t *Tracker) Apply(u PoolUpdate) Snapshot {
	t.seq++
	prev := t.lastPrice
	t.lastPrice = u.Price
	if u.Price > t.peakPrice {
		t.peakPrice = u.Price
	}
	if prev > 0 && u.Price < prev {
		t.redStreak++
	} else if u.Price > prev {
		t.redStreak = 0
	}

	t.shortVol.push(u.At, u.AmountSOL)
	t.longVol.push(u.At, u.AmountSOL)
	t.shortPrice.push(u.At, u.Price)
	if u.IsSell {
		t.outflows.push(u.At, u.AmountSOL)
	}

	snap := Snapshot{
		Mint:      t.mint,
		Seq:       t.seq,
		Price:     u.Price,
		PeakPrice: t.peakPrice,
		RedStreak: t.redStreak,
		At:        u.At,
	}
	if prev > 0 && u.Price < prev {
		snap.ShockDropPct = (prev - u.Price) / prev
	}
	if t.peakPrice > 0 && u.Price < t.peakPrice {
		snap.DrawdownPct = (t.peakPrice - u.Price) / t.peakPrice
	}
	if first, ok := t.shortPrice.first(); ok && first.val > 0 {
		snap.MomentumPct = (u.Price - first.val) / first.val
	}
	longAvg := t.longVol.sum() / (longSpan.Seconds() / shortSpan.Seconds())
	if longAvg > 0 {
		snap.VolumeRatio = t.shortVol.sum() / longAvg
	}
	overSize := t.thresholds.WhaleDumpSOL > 0 && u.AmountSOL >= t.thresholds.WhaleDumpSOL
	tagged := t.whales != nil && u.Wallet != "" && t.whales.Whale(u.Wallet)
	snap.WhaleDump = u.IsSell && (overSize || tagged)
	snap.CreatorExit = u.IsSell && u.IsCreator
	snap.PanicFlow = t.panicFlow()
	return snap
}

func (t *Tracker) panicFlow() bool {
	if t.thresholds.PanicOutflowCount <= 0 {
		return false
	}
	large := 0
	for _, s := range t.outflows.samples {
		if s.val >= t.thresholds.PanicOutflowSOL {
			large++
		}
	}
	return large >= t.thresholds.PanicOutflowCount
}

// Engine fans pool updates into per-mint trackers and forwards snapshots to
// the sink. Subscriptions are explicit: updates for unsubscribed mints are
// dropped so the engine only pays for open positions and observers.
type Engine struct {
	mu         sync.Mutex
	trackers   map[string]*Tracker
	thresholds Thresholds
	whales     WhaleList
	sink       func(Snapshot)
}

func NewEngine(th Thresholds, whales WhaleList, sink func(Snapshot)) *Engine {
	return &Engine{
		trackers:   make(map[string]*Tracker),
		thresholds: th,
		whales:     whales,
		sink:       sink,
	}
}

func (e *Engine) Subscribe(mint string) {
	e.mu.Lock()
	if _, ok := e.trackers[mint]; !ok {
		e.trackers[mint] = NewTracker(mint, e.thresholds, e.whales)
	}
	e.mu.Unlock()
}

// SetThresholds swaps the flag cutoffs on the engine and every live tracker.
// Window spans stay as built; only the cutoff values move.
func (e *Engine) SetThresholds(th Thresholds) {
	if th.PanicWindow <= 0 {
		th.PanicWindow = 20 * time.Second
	}
	e.mu.Lock()
	e.thresholds = th
	for _, tr := range e.trackers {
		tr.thresholds = th
	}
	e.mu.Unlock()
}

func (e *Engine) Unsubscribe(mint string) {
	e.mu.Lock()
	delete(e.trackers, mint)
	e.mu.Unlock()
}

func (e *Engine) Subscribed(mint string) bool {
	e.mu.Lock()
	_, ok := e.trackers[mint]
	e.mu.Unlock()
	return ok
}

// Offer applies an update if the mint is subscribed. The lock covers the
// tracker mutation so updates for one mint fold in one at a time.
func (e *Engine) Offer(u PoolUpdate) {
	e.mu.Lock()
	tr, ok := e.trackers[u.Mint]
	if !ok {
		e.mu.Unlock()
		return
	}
	snap := tr.Apply(u)
	e.mu.Unlock()
	if e.sink != nil {
		e.sink(snap)
	}
}

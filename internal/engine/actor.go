// Package engine owns all Observer and Position records. It is the system's
// single writer: every mutation arrives as a Command on one queue and is
// applied by one goroutine, in arrival order. Other components only send
// commands or read deep-copied snapshots.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"raysniper/internal/config"
	"raysniper/internal/logger"
	"raysniper/internal/observability"
	"raysniper/internal/store"
)

// EntryRequest is handed to the trade signal processor when the entry gate
// passes for an observer.
type EntryRequest struct {
	Mint          string
	ObservedPrice float64
	TraceID       string
}

// EntrySink submits buys. Must not block; outcomes come back as commands.
type EntrySink interface {
	RequestEntry(req EntryRequest)
}

// SellSink submits sells. Must not block; outcomes come back as commands.
type SellSink interface {
	RequestSell(order SellOrder)
}

// Telemetry re-arms and releases per-mint feature subscriptions.
type Telemetry interface {
	Subscribe(mint string)
	Unsubscribe(mint string)
}

type Engine struct {
	entry   config.EntryConfig
	exitCfg config.ExitConfig

	ledger    store.Ledger
	entrySink EntrySink
	sellSink  SellSink
	telemetry Telemetry

	registry *registry

	cmdCh  chan Command
	stopCh chan struct{}
	wg     sync.WaitGroup

	state *State

	stateSnapshot    atomic.Value
	snapshotThrottle time.Duration
	lastSnapshot     time.Time
}

func New(entry config.EntryConfig, exitCfg config.ExitConfig, ledger store.Ledger, entrySink EntrySink, sellSink SellSink, telemetry Telemetry) *Engine {
	e := &Engine{
		entry:            entry,
		exitCfg:          exitCfg,
		ledger:           ledger,
		entrySink:        entrySink,
		sellSink:         sellSink,
		telemetry:        telemetry,
		registry:         newRegistry(),
		cmdCh:            make(chan Command, 256),
		stopCh:           make(chan struct{}),
		state:            NewState(),
		snapshotThrottle: 50 * time.Millisecond,
	}
	e.refreshSnapshot(true)
	return e
}

// BindSinks attaches the entry and sell processors after construction; the
// processors need the engine for command delivery, so wiring happens in two
// steps. Must be called before Start.
func (e *Engine) BindSinks(entry EntrySink, sell SellSink, telemetry Telemetry) {
	e.entrySink = entry
	e.sellSink = sell
	e.telemetry = telemetry
}

func (e *Engine) Start() {
	e.wg.Add(1)
	go e.runLoop()
}

func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) Send(cmd Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}
	select {
	case e.cmdCh <- cmd:
		return nil
	case <-e.stopCh:
		return fmt.Errorf("engine is stopped")
	}
}

func (e *Engine) SendSync(ctx context.Context, cmd Command) error {
	if cmd.ReplyCh == nil {
		cmd.ReplyCh = make(chan error, 1)
	}
	if err := e.Send(cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.ReplyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		return fmt.Errorf("engine stopped during sync call")
	}
}

// Command builds an envelope from a payload; marshal failures are a
// programming error and panic early.
func NewCommand(t CommandType, mint string, payload any) Command {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("engine: marshal %s payload: %v", t, err))
	}
	return Command{
		ID:        uuid.NewString(),
		Type:      t,
		Mint:      mint,
		Payload:   raw,
		CreatedAt: time.Now(),
	}
}

func (e *Engine) runLoop() {
	defer e.wg.Done()
	logger.Infof("engine actor started")
	for {
		select {
		case cmd := <-e.cmdCh:
			e.handleCommand(cmd)
		case <-e.stopCh:
			logger.Infof("engine actor stopping")
			return
		}
	}
}

func (e *Engine) handleCommand(cmd Command) {
	var err error
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("engine panic handling %s for %s: %v", cmd.Type, cmd.Mint, r)
			debug.PrintStack()
			err = fmt.Errorf("panic: %v", r)
		}
		if cmd.ReplyCh != nil {
			cmd.ReplyCh <- err
			close(cmd.ReplyCh)
		}
		dur := time.Since(start)
		observability.Default.CommandLatency.WithLabelValues(string(cmd.Type)).Observe(dur.Seconds())
		if dur > 100*time.Millisecond {
			logger.Warnf("slow command %s took %v", cmd.Type, dur)
		}
	}()

	handler, ok := e.registry.get(cmd.Type)
	if !ok {
		logger.Warnf("no handler for command type %s", cmd.Type)
		return
	}
	err = handler(e, cmd)
	if err != nil {
		logger.Errorf("engine failed to apply %s for %s: %v", cmd.Type, cmd.Mint, err)
	}
	e.refreshSnapshot(false)
}

// Snapshot returns the last published deep copy of the state. Safe for
// concurrent readers; never a live reference.
func (e *Engine) Snapshot() *State {
	val := e.stateSnapshot.Load()
	if val == nil {
		return NewState()
	}
	return val.(*State)
}

func (e *Engine) refreshSnapshot(force bool) {
	if !force && e.snapshotThrottle > 0 && !e.lastSnapshot.IsZero() {
		if time.Since(e.lastSnapshot) < e.snapshotThrottle {
			return
		}
	}
	next := NewState()
	for mint, obs := range e.state.Observers {
		cp := *obs
		next.Observers[mint] = &cp
	}
	for mint, pos := range e.state.Positions {
		cp := *pos
		next.Positions[mint] = &cp
	}
	next.RealizedPnL = e.state.RealizedPnL
	next.Wins = e.state.Wins
	next.Losses = e.state.Losses
	next.ClosedCount = e.state.ClosedCount
	e.stateSnapshot.Store(next)
	e.lastSnapshot = time.Now()
}

// Summary condenses the snapshot into the status artifact fields.
func (e *Engine) Summary() Summary {
	s := e.Snapshot()
	return Summary{
		OpenPositions:   s.openCount(),
		Observers:       len(s.Observers),
		ActiveTelemetry: len(s.Observers) + len(s.Positions),
		RealizedPnL:     s.RealizedPnL,
		Wins:            s.Wins,
		Losses:          s.Losses,
		ClosedCount:     s.ClosedCount,
	}
}

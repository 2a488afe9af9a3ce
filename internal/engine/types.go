package engine

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"raysniper/internal/config"
	"raysniper/internal/feature"
	"raysniper/internal/strategy/exit"
)

// CommandType names the only mutation vectors into canonical state.
type CommandType string

const (
	CmdCandidateVerified CommandType = "CANDIDATE_VERIFIED"
	CmdTickUpdate        CommandType = "TICK_UPDATE"
	CmdBuyConfirmed      CommandType = "BUY_CONFIRMED"
	CmdBuyFailed         CommandType = "BUY_FAILED"
	CmdSellRequested     CommandType = "SELL_REQUESTED"
	CmdSellConfirmed     CommandType = "SELL_CONFIRMED"
	CmdSellFailed        CommandType = "SELL_FAILED"
	CmdSweep             CommandType = "SWEEP"
	CmdExitParams        CommandType = "EXIT_PARAMS"
)

// Command is the envelope the actor consumes. Commands are applied strictly
// serially in arrival order; nothing outside the actor loop mutates state.
type Command struct {
	ID        string
	Type      CommandType
	Mint      string
	Payload   json.RawMessage
	CreatedAt time.Time

	// ReplyCh unblocks synchronous senders once the command was applied.
	ReplyCh chan error `json:"-"`
}

// CandidateVerifiedPayload enters a mint into observation after the safety
// analyzer passed it.
type CandidateVerifiedPayload struct {
	Mint          string    `json:"mint"`
	Slot          uint64    `json:"slot"`
	MigratedAt    time.Time `json:"migrated_at"`
	PriceSOL      float64   `json:"price_sol"`
	HoneypotScore float64   `json:"honeypot_score"`
	ContractScore float64   `json:"contract_score"`
}

// TickPayload carries one derived snapshot from the feature engine.
type TickPayload struct {
	Snapshot feature.Snapshot `json:"snapshot"`
}

type BuyConfirmedPayload struct {
	Mint      string          `json:"mint"`
	Price     float64         `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Stake     decimal.Decimal `json:"stake"`
	Signature string          `json:"signature"`
}

type BuyFailedPayload struct {
	Mint   string `json:"mint"`
	Reason string `json:"reason"`
}

// SellRequestedPayload is the externally injected forced exit (manual or
// circuit breaker).
type SellRequestedPayload struct {
	Mint   string `json:"mint"`
	Reason string `json:"reason"`
}

type SellConfirmedPayload struct {
	Mint      string          `json:"mint"`
	Proceeds  decimal.Decimal `json:"proceeds"`
	Fees      decimal.Decimal `json:"fees"`
	Reason    string          `json:"reason"`
	Signature string          `json:"signature"`
	Attempts  int             `json:"attempts"`
}

type SellFailedPayload struct {
	Mint     string `json:"mint"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// SweepPayload drives time-based housekeeping (observer expiry) through the
// same serial queue as everything else.
type SweepPayload struct {
	At time.Time `json:"at"`
}

// ExitParamsPayload swaps the exit parameter bundle in. Delivered through
// the queue so the single-writer rule covers configuration too.
type ExitParamsPayload struct {
	Exit config.ExitConfig `json:"exit"`
}

// Lifecycle is the persisted stage of a position.
type Lifecycle string

const (
	LifecycleEntering    Lifecycle = "entering"
	LifecycleOpen        Lifecycle = "open"
	LifecycleClosingSell Lifecycle = "closing_sell"
	LifecycleClosed      Lifecycle = "closed"
)

// Observer is a mint being watched for entry but not yet positioned.
type Observer struct {
	Mint       string
	CreatedAt  time.Time
	FirstPrice float64
	Ticks      int
	LastSnap   feature.Snapshot
}

// Position is the canonical unit of capital at risk. Only the actor mutates it.
type Position struct {
	Mint      string
	Lifecycle Lifecycle
	Phase     exit.Phase

	EntryPrice float64
	Stake      decimal.Decimal
	Size       decimal.Decimal
	OpenedAt   time.Time
	PhaseSince time.Time

	PeakPrice   float64
	LastPrice   float64
	LastTickAt  time.Time
	RunupPct    float64
	DrawdownPct float64

	SellInFlight bool
	SellAttempts int
	ExitReason   string
}

// SellOrder is handed to the sell processor when an exit fires.
type SellOrder struct {
	Mint    string
	Size    decimal.Decimal
	Stake   decimal.Decimal
	Reason  string
	TraceID string
}

// State is the actor-owned record map. No locks: single goroutine access,
// external readers get deep-copied snapshots.
type State struct {
	Observers map[string]*Observer
	Positions map[string]*Position

	RealizedPnL decimal.Decimal
	Wins        int
	Losses      int
	ClosedCount int
}

func NewState() *State {
	return &State{
		Observers: make(map[string]*Observer),
		Positions: make(map[string]*Position),
	}
}

// openCount is every position holding or about to hold capital. Entering
// counts: a burst of gate passes must not overshoot the cap while the buys
// are still in flight.
func (s *State) openCount() int {
	n := 0
	for _, p := range s.Positions {
		switch p.Lifecycle {
		case LifecycleEntering, LifecycleOpen, LifecycleClosingSell:
			n++
		}
	}
	return n
}

// Summary is the read-only status surface consumed by the rollout manager.
type Summary struct {
	OpenPositions   int             `json:"open_positions"`
	Observers       int             `json:"observers"`
	ActiveTelemetry int             `json:"active_telemetry"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl_sol"`
	Wins            int             `json:"wins"`
	Losses          int             `json:"losses"`
	ClosedCount     int             `json:"closed"`
}

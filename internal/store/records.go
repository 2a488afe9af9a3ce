// Package store defines the logical read/write contract for the durable
// layer: trade lifecycle, portfolio rollups, breaker history, and the
// acceleration caches. The physical engine behind it lives in gormstore.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LifecycleRecord is one appended trade-lifecycle transition. Every
// transition is written before the in-memory change is acknowledged, so a
// crash can never observe a committed-but-unrecorded state.
type LifecycleRecord struct {
	Mint       string
	Lifecycle  string // entering | open | closing_sell | closed
	Phase      string
	EntryPrice float64
	Stake      decimal.Decimal
	Size       decimal.Decimal
	Reason     string
	Proceeds   decimal.Decimal
	Fees       decimal.Decimal
	PnL        decimal.Decimal
	At         time.Time
}

// OperationRecord is the audit trail of buy/sell outcomes and rejections.
type OperationRecord struct {
	Mint    string
	Op      string
	Reason  string
	Context map[string]any
	At      time.Time
}

// BreakerEvent records a circuit-breaker trip or reset.
type BreakerEvent struct {
	Event    string // trip | reset
	Cause    string
	Failures int
	Drawdown decimal.Decimal
	At       time.Time
}

// Rollup is the aggregate view updated transactionally on every close.
type Rollup struct {
	RealizedPnL decimal.Decimal
	Wins        int
	Losses      int
	Closed      int
	WinRate     float64
	UpdatedAt   time.Time
}

// CreatorReputation is a persisted acceleration cache entry.
type CreatorReputation struct {
	Wallet    string
	Launches  int
	Rugs      int
	Score     float64
	UpdatedAt time.Time
}

// MintMetadata caches token facts that never change after mint.
type MintMetadata struct {
	Mint      string
	Symbol    string
	Name      string
	Creator   string
	Decimals  int
	UpdatedAt time.Time
}

// LookupTable caches a resolved address-lookup-table for fast tx building.
type LookupTable struct {
	Address      string
	AccountsJSON string
	UpdatedAt    time.Time
}

// Store is the full durable contract.
type Store interface {
	Ledger
	Caches

	AppendBreakerEvent(ctx context.Context, ev BreakerEvent) error
	LoadRollup(ctx context.Context) (Rollup, error)
	Close() error
}

// Ledger is the slice of the store the position engine writes through.
type Ledger interface {
	AppendLifecycle(ctx context.Context, rec LifecycleRecord) error
	// CloseLifecycle appends the closed record and folds it into the rollup
	// in one transaction.
	CloseLifecycle(ctx context.Context, rec LifecycleRecord) error
	// ListUnfinished returns the latest lifecycle per mint where that latest
	// record is open or closing_sell; the recovery path replays these.
	ListUnfinished(ctx context.Context) ([]LifecycleRecord, error)
	AppendOperation(ctx context.Context, rec OperationRecord) error
}

// Caches is the acceleration-cache surface. Staleness is tolerated.
type Caches interface {
	UpsertCreatorReputation(ctx context.Context, rec CreatorReputation) error
	GetCreatorReputation(ctx context.Context, wallet string) (*CreatorReputation, error)
	UpsertMintMetadata(ctx context.Context, rec MintMetadata) error
	GetMintMetadata(ctx context.Context, mint string) (*MintMetadata, error)
	UpsertLookupTable(ctx context.Context, rec LookupTable) error
	GetLookupTable(ctx context.Context, address string) (*LookupTable, error)
}

package model

import "gorm.io/datatypes"

// TradeLifecycleModel is the append-only trade lifecycle log. Decimal
// amounts are stored as strings to avoid float drift in PnL accounting.
type TradeLifecycleModel struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Mint          string `gorm:"column:mint;index"`
	Lifecycle     string `gorm:"column:lifecycle;index"`
	Phase         string `gorm:"column:phase"`
	EntryPrice    float64
	Stake         string `gorm:"column:stake"`
	Size          string `gorm:"column:size"`
	Reason        string `gorm:"column:reason"`
	Proceeds      string `gorm:"column:proceeds"`
	Fees          string `gorm:"column:fees"`
	PnL           string `gorm:"column:pnl"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
}

func (TradeLifecycleModel) TableName() string { return "trade_lifecycles" }

type TradeOperationModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Mint          string         `gorm:"column:mint;index"`
	Op            string         `gorm:"column:op"`
	Reason        string         `gorm:"column:reason"`
	Context       datatypes.JSON `gorm:"column:context"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (TradeOperationModel) TableName() string { return "trade_operations" }

type BreakerEventModel struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Event         string `gorm:"column:event"`
	Cause         string `gorm:"column:cause"`
	Failures      int    `gorm:"column:failures"`
	Drawdown      string `gorm:"column:drawdown"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
}

func (BreakerEventModel) TableName() string { return "breaker_events" }

// RollupModel is a single-row aggregate, updated in the same transaction as
// the closed lifecycle record it reflects.
type RollupModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	RealizedPnL   string `gorm:"column:realized_pnl"`
	Wins          int    `gorm:"column:wins"`
	Losses        int    `gorm:"column:losses"`
	Closed        int    `gorm:"column:closed"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (RollupModel) TableName() string { return "portfolio_rollup" }

type CreatorReputationModel struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Wallet        string  `gorm:"column:wallet;uniqueIndex"`
	Launches      int     `gorm:"column:launches"`
	Rugs          int     `gorm:"column:rugs"`
	Score         float64 `gorm:"column:score"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (CreatorReputationModel) TableName() string { return "creator_reputation" }

type MintMetadataModel struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Mint          string `gorm:"column:mint;uniqueIndex"`
	Symbol        string `gorm:"column:symbol"`
	Name          string `gorm:"column:name"`
	Creator       string `gorm:"column:creator"`
	Decimals      int    `gorm:"column:decimals"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (MintMetadataModel) TableName() string { return "mint_metadata" }

type LookupTableModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Address       string         `gorm:"column:address;uniqueIndex"`
	Accounts      datatypes.JSON `gorm:"column:accounts"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (LookupTableModel) TableName() string { return "lookup_tables" }

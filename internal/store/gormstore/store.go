// Package gormstore implements the store contract on SQLite through Gorm.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"raysniper/internal/store"
	storemodel "raysniper/internal/store/model"
)

// GormStore implements store.Store on a single SQLite file in WAL mode.
type GormStore struct {
	db *gorm.DB
}

func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.TradeLifecycleModel{},
		&storemodel.TradeOperationModel{},
		&storemodel.BreakerEventModel{},
		&storemodel.RollupModel{},
		&storemodel.CreatorReputationModel{},
		&storemodel.MintMetadataModel{},
		&storemodel.LookupTableModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads, low lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func lifecycleToModel(rec store.LifecycleRecord) storemodel.TradeLifecycleModel {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	return storemodel.TradeLifecycleModel{
		Mint:          rec.Mint,
		Lifecycle:     rec.Lifecycle,
		Phase:         rec.Phase,
		EntryPrice:    rec.EntryPrice,
		Stake:         rec.Stake.String(),
		Size:          rec.Size.String(),
		Reason:        rec.Reason,
		Proceeds:      rec.Proceeds.String(),
		Fees:          rec.Fees.String(),
		PnL:           rec.PnL.String(),
		CreatedAtUnix: at.UnixMilli(),
	}
}

func lifecycleFromModel(m storemodel.TradeLifecycleModel) store.LifecycleRecord {
	return store.LifecycleRecord{
		Mint:       m.Mint,
		Lifecycle:  m.Lifecycle,
		Phase:      m.Phase,
		EntryPrice: m.EntryPrice,
		Stake:      parseDecimal(m.Stake),
		Size:       parseDecimal(m.Size),
		Reason:     m.Reason,
		Proceeds:   parseDecimal(m.Proceeds),
		Fees:       parseDecimal(m.Fees),
		PnL:        parseDecimal(m.PnL),
		At:         time.UnixMilli(m.CreatedAtUnix),
	}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (s *GormStore) AppendLifecycle(ctx context.Context, rec store.LifecycleRecord) error {
	m := lifecycleToModel(rec)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append lifecycle %s/%s: %w", rec.Mint, rec.Lifecycle, err)
	}
	return nil
}

// CloseLifecycle appends the closed record and folds realized PnL into the
// rollup row inside one transaction, so a closed position is never visible
// without its aggregate effect.
func (s *GormStore) CloseLifecycle(ctx context.Context, rec store.LifecycleRecord) error {
	rec.Lifecycle = "closed"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := lifecycleToModel(rec)
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("append closed lifecycle %s: %w", rec.Mint, err)
		}
		var roll storemodel.RollupModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", 1).First(&roll).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			roll = storemodel.RollupModel{ID: 1, RealizedPnL: "0"}
		} else if err != nil {
			return err
		}
		total := parseDecimal(roll.RealizedPnL).Add(rec.PnL)
		roll.RealizedPnL = total.String()
		roll.Closed++
		if rec.PnL.IsPositive() {
			roll.Wins++
		} else {
			roll.Losses++
		}
		roll.UpdatedAtUnix = time.Now().UnixMilli()
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&roll).Error
	})
}

func (s *GormStore) ListUnfinished(ctx context.Context) ([]store.LifecycleRecord, error) {
	var models []storemodel.TradeLifecycleModel
	err := s.db.WithContext(ctx).Raw(`
		SELECT t.* FROM trade_lifecycles t
		JOIN (SELECT mint, MAX(id) AS max_id FROM trade_lifecycles GROUP BY mint) latest
		  ON t.mint = latest.mint AND t.id = latest.max_id
		WHERE t.lifecycle IN ('open', 'closing_sell')
		ORDER BY t.id ASC`).Scan(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list unfinished lifecycles: %w", err)
	}
	out := make([]store.LifecycleRecord, 0, len(models))
	for _, m := range models {
		out = append(out, lifecycleFromModel(m))
	}
	return out, nil
}

func (s *GormStore) AppendOperation(ctx context.Context, rec store.OperationRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	var ctxJSON []byte
	if len(rec.Context) > 0 {
		b, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("encode operation context: %w", err)
		}
		ctxJSON = b
	}
	m := storemodel.TradeOperationModel{
		Mint:          rec.Mint,
		Op:            rec.Op,
		Reason:        rec.Reason,
		Context:       ctxJSON,
		CreatedAtUnix: at.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) AppendBreakerEvent(ctx context.Context, ev store.BreakerEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	m := storemodel.BreakerEventModel{
		Event:         ev.Event,
		Cause:         ev.Cause,
		Failures:      ev.Failures,
		Drawdown:      ev.Drawdown.String(),
		CreatedAtUnix: at.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) LoadRollup(ctx context.Context) (store.Rollup, error) {
	var roll storemodel.RollupModel
	err := s.db.WithContext(ctx).Where("id = ?", 1).First(&roll).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Rollup{RealizedPnL: decimal.Zero}, nil
	}
	if err != nil {
		return store.Rollup{}, err
	}
	out := store.Rollup{
		RealizedPnL: parseDecimal(roll.RealizedPnL),
		Wins:        roll.Wins,
		Losses:      roll.Losses,
		Closed:      roll.Closed,
		UpdatedAt:   time.UnixMilli(roll.UpdatedAtUnix),
	}
	if roll.Closed > 0 {
		out.WinRate = float64(roll.Wins) / float64(roll.Closed)
	}
	return out, nil
}

package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"raysniper/internal/store"
	storemodel "raysniper/internal/store/model"
)

// Acceleration caches use atomic upserts keyed by their natural key; stale
// reads are fine, a later refresh covers them.

func (s *GormStore) UpsertCreatorReputation(ctx context.Context, rec store.CreatorReputation) error {
	m := storemodel.CreatorReputationModel{
		Wallet:        rec.Wallet,
		Launches:      rec.Launches,
		Rugs:          rec.Rugs,
		Score:         rec.Score,
		UpdatedAtUnix: unixOrNow(rec.UpdatedAt),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *GormStore) GetCreatorReputation(ctx context.Context, wallet string) (*store.CreatorReputation, error) {
	var m storemodel.CreatorReputationModel
	err := s.db.WithContext(ctx).Where("wallet = ?", wallet).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &store.CreatorReputation{
		Wallet:    m.Wallet,
		Launches:  m.Launches,
		Rugs:      m.Rugs,
		Score:     m.Score,
		UpdatedAt: time.UnixMilli(m.UpdatedAtUnix),
	}, nil
}

func (s *GormStore) UpsertMintMetadata(ctx context.Context, rec store.MintMetadata) error {
	m := storemodel.MintMetadataModel{
		Mint:          rec.Mint,
		Symbol:        rec.Symbol,
		Name:          rec.Name,
		Creator:       rec.Creator,
		Decimals:      rec.Decimals,
		UpdatedAtUnix: unixOrNow(rec.UpdatedAt),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mint"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *GormStore) GetMintMetadata(ctx context.Context, mint string) (*store.MintMetadata, error) {
	var m storemodel.MintMetadataModel
	err := s.db.WithContext(ctx).Where("mint = ?", mint).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &store.MintMetadata{
		Mint:      m.Mint,
		Symbol:    m.Symbol,
		Name:      m.Name,
		Creator:   m.Creator,
		Decimals:  m.Decimals,
		UpdatedAt: time.UnixMilli(m.UpdatedAtUnix),
	}, nil
}

func (s *GormStore) UpsertLookupTable(ctx context.Context, rec store.LookupTable) error {
	m := storemodel.LookupTableModel{
		Address:       rec.Address,
		Accounts:      []byte(rec.AccountsJSON),
		UpdatedAtUnix: unixOrNow(rec.UpdatedAt),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *GormStore) GetLookupTable(ctx context.Context, address string) (*store.LookupTable, error) {
	var m storemodel.LookupTableModel
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &store.LookupTable{
		Address:      m.Address,
		AccountsJSON: string(m.Accounts),
		UpdatedAt:    time.UnixMilli(m.UpdatedAtUnix),
	}, nil
}

func unixOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}

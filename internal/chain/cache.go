package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// VaultState is the cached view of a mint's pool accounts. Staleness is
// tolerable here: readers that hit ErrStaleCache on submission trigger a
// Refresh and retry, and canonical position state never depends on it.
type VaultState struct {
	Mint       string
	PriceSOL   decimal.Decimal
	BaseVault  decimal.Decimal
	QuoteVault decimal.Decimal
	Creator    string
	UpdatedAt  time.Time
}

// Cache is a concurrently-read, single-writer-per-key map of mint to vault
// state. Writes go through Upsert only.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]VaultState
	fetch   func(ctx context.Context, mint string) (VaultState, error)
}

func NewCache(fetch func(ctx context.Context, mint string) (VaultState, error)) *Cache {
	return &Cache{
		entries: make(map[string]VaultState),
		fetch:   fetch,
	}
}

func (c *Cache) Get(mint string) (VaultState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.entries[mint]
	return st, ok
}

func (c *Cache) Upsert(st VaultState) {
	if st.Mint == "" {
		return
	}
	c.mu.Lock()
	prev, ok := c.entries[st.Mint]
	// Keep the newest write; concurrent refreshers may race.
	if !ok || !st.UpdatedAt.Before(prev.UpdatedAt) {
		c.entries[st.Mint] = st
	}
	c.mu.Unlock()
}

func (c *Cache) Drop(mint string) {
	c.mu.Lock()
	delete(c.entries, mint)
	c.mu.Unlock()
}

// Refresh re-fetches one mint and upserts the result.
func (c *Cache) Refresh(ctx context.Context, mint string) (VaultState, error) {
	if c.fetch == nil {
		return VaultState{}, fmt.Errorf("cache has no fetcher")
	}
	st, err := c.fetch(ctx, mint)
	if err != nil {
		return VaultState{}, fmt.Errorf("refresh %s: %w", mint, err)
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	st.Mint = mint
	c.Upsert(st)
	return st, nil
}

// Prewarm is the best-effort cold-start fill used by the migration watcher.
// Errors are returned for counting but must not block the candidate path.
func (c *Cache) Prewarm(ctx context.Context, mint string) error {
	_, err := c.Refresh(ctx, mint)
	return err
}

// FetchVaultState builds a cache fetcher backed by the RPC endpoint.
func FetchVaultState(rpc *RPCClient) func(ctx context.Context, mint string) (VaultState, error) {
	return func(ctx context.Context, mint string) (VaultState, error) {
		if err := ValidateMint(mint); err != nil {
			return VaultState{}, err
		}
		body, err := rpc.call(ctx, "getVaultState", map[string]any{"mint": mint})
		if err != nil {
			return VaultState{}, err
		}
		price, err := decimal.NewFromString(gjson.GetBytes(body, "result.price_sol").String())
		if err != nil {
			return VaultState{}, fmt.Errorf("vault state missing price for %s: %w", mint, err)
		}
		base, _ := decimal.NewFromString(gjson.GetBytes(body, "result.base_vault").String())
		quote, _ := decimal.NewFromString(gjson.GetBytes(body, "result.quote_vault").String())
		return VaultState{
			Mint:       mint,
			PriceSOL:   price,
			BaseVault:  base,
			QuoteVault: quote,
			Creator:    gjson.GetBytes(body, "result.creator").String(),
			UpdatedAt:  time.Now(),
		}, nil
	}
}

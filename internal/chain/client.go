// Package chain talks to the trading RPC endpoint and keeps the per-mint
// vault/price cache warm. It owns no position state; callers turn its
// results into commands for the engine.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"raysniper/internal/observability"
)

// Failure classes the sell retry policy dispatches on.
var (
	ErrSlippageExceeded = errors.New("slippage exceeded")
	ErrStaleCache       = errors.New("stale account cache")
)

type BuyRequest struct {
	Mint        string
	StakeSOL    decimal.Decimal
	SlippagePct float64
}

type BuyResult struct {
	Price     decimal.Decimal
	Size      decimal.Decimal
	Signature string
}

type SellRequest struct {
	Mint        string
	Size        decimal.Decimal
	SlippagePct float64
}

type SellResult struct {
	Proceeds  decimal.Decimal
	Fees      decimal.Decimal
	Signature string
}

// TradeClient submits swap transactions and waits for confirmation.
type TradeClient interface {
	Buy(ctx context.Context, req BuyRequest) (*BuyResult, error)
	Sell(ctx context.Context, req SellRequest) (*SellResult, error)
}

// ValidateMint rejects anything that is not a well-formed base58 pubkey.
func ValidateMint(mint string) error {
	mint = strings.TrimSpace(mint)
	if mint == "" {
		return fmt.Errorf("empty mint")
	}
	raw, err := base58.Decode(mint)
	if err != nil {
		return fmt.Errorf("mint %q is not base58: %w", mint, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("mint %q decodes to %d bytes, want 32", mint, len(raw))
	}
	return nil
}

// RPCClient is a thin JSON-RPC client for the swap service. One request per
// call, no session state; safe for concurrent use.
type RPCClient struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	reqID    atomic.Uint64
}

func NewRPCClient(endpoint string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCClient{
		endpoint: endpoint,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *RPCClient) Buy(ctx context.Context, req BuyRequest) (*BuyResult, error) {
	if err := ValidateMint(req.Mint); err != nil {
		return nil, err
	}
	body, err := c.call(ctx, "swapBuy", map[string]any{
		"mint":         req.Mint,
		"amount_sol":   req.StakeSOL.String(),
		"slippage_pct": req.SlippagePct,
	})
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(gjson.GetBytes(body, "result.price_sol").String())
	if err != nil {
		return nil, fmt.Errorf("buy response missing price: %w", err)
	}
	size, err := decimal.NewFromString(gjson.GetBytes(body, "result.size").String())
	if err != nil {
		return nil, fmt.Errorf("buy response missing size: %w", err)
	}
	return &BuyResult{
		Price:     price,
		Size:      size,
		Signature: gjson.GetBytes(body, "result.signature").String(),
	}, nil
}

func (c *RPCClient) Sell(ctx context.Context, req SellRequest) (*SellResult, error) {
	if err := ValidateMint(req.Mint); err != nil {
		return nil, err
	}
	body, err := c.call(ctx, "swapSell", map[string]any{
		"mint":         req.Mint,
		"size":         req.Size.String(),
		"slippage_pct": req.SlippagePct,
	})
	if err != nil {
		return nil, err
	}
	proceeds, err := decimal.NewFromString(gjson.GetBytes(body, "result.proceeds_sol").String())
	if err != nil {
		return nil, fmt.Errorf("sell response missing proceeds: %w", err)
	}
	fees, _ := decimal.NewFromString(gjson.GetBytes(body, "result.fees_sol").String())
	return &SellResult{
		Proceeds:  proceeds,
		Fees:      fees,
		Signature: gjson.GetBytes(body, "result.signature").String(),
	}, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params any) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      c.reqID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	defer func() { observability.RecordRPCLatency(method, time.Since(start).Seconds()) }()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: http %d", method, resp.StatusCode)
	}
	if errVal := gjson.GetBytes(body, "error"); errVal.Exists() {
		return nil, classifyRPCError(method, errVal.Get("message").String())
	}
	return body, nil
}

func classifyRPCError(method, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "slippage"):
		return fmt.Errorf("%s: %s: %w", method, msg, ErrSlippageExceeded)
	case strings.Contains(lower, "stale"), strings.Contains(lower, "account not found"):
		return fmt.Errorf("%s: %s: %w", method, msg, ErrStaleCache)
	default:
		return fmt.Errorf("%s failed: %s", method, msg)
	}
}

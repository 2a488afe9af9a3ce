package watcher

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"raysniper/internal/feature"
	"raysniper/internal/safety"
)

type FrameKind int

const (
	FrameMigration FrameKind = iota + 1
	FrameSwap
)

// Frame is one decoded feed message. The replay runner consumes the same
// format from capture files, which is what keeps offline analysis aligned
// with the live path.
type Frame struct {
	Kind      FrameKind
	Candidate safety.Candidate
	Update    feature.PoolUpdate
}

// ParseFrame decodes one feed frame. Unknown or malformed frames report
// false: the feed multiplexes message types we do not care about.
func ParseFrame(raw []byte) (Frame, bool) {
	if !gjson.ValidBytes(raw) {
		return Frame{}, false
	}
	switch gjson.GetBytes(raw, "type").String() {
	case "migration":
		mint := gjson.GetBytes(raw, "mint").String()
		if mint == "" {
			return Frame{}, false
		}
		return Frame{
			Kind: FrameMigration,
			Candidate: safety.Candidate{
				Mint:       mint,
				Creator:    gjson.GetBytes(raw, "creator").String(),
				Slot:       gjson.GetBytes(raw, "slot").Uint(),
				MigratedAt: eventTime(raw),
				PriceSOL:   gjson.GetBytes(raw, "price_sol").Float(),
			},
		}, true
	case "swap":
		mint := gjson.GetBytes(raw, "mint").String()
		price := gjson.GetBytes(raw, "price").Float()
		if mint == "" || price <= 0 {
			return Frame{}, false
		}
		return Frame{
			Kind: FrameSwap,
			Update: feature.PoolUpdate{
				Mint:      mint,
				Price:     price,
				AmountSOL: gjson.GetBytes(raw, "amount_sol").Float(),
				IsSell:    gjson.GetBytes(raw, "is_sell").Bool(),
				Wallet:    gjson.GetBytes(raw, "wallet").String(),
				IsCreator: gjson.GetBytes(raw, "is_creator").Bool(),
				Slot:      gjson.GetBytes(raw, "slot").Uint(),
				At:        eventTime(raw),
			},
		}, true
	default:
		return Frame{}, false
	}
}

// eventTime prefers the feed's own timestamp so replay stays deterministic;
// frames without one get wall-clock time.
func eventTime(raw []byte) time.Time {
	if ms := gjson.GetBytes(raw, "ts_ms").Int(); ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Now()
}

func dedupKey(mint string, slot uint64) string {
	return fmt.Sprintf("%s:%d", mint, slot)
}

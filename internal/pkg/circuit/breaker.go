package circuit

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"raysniper/internal/logger"
)

type State int

const (
	StateArmed State = iota
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "ARMED"
	case StateHalted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}

// lossSample is one realized loss inside the rolling drawdown window.
type lossSample struct {
	at   time.Time
	loss decimal.Decimal
}

// Breaker halts new entries when the account is bleeding: either too many
// consecutive failed trades, or too much realized drawdown inside the rolling
// window. A halted breaker re-arms after the cooldown or on a manual reset.
// Open positions are never affected; only new entries are gated.
type Breaker struct {
	mu sync.Mutex

	state       State
	failures    int
	threshold   int
	drawdownCap decimal.Decimal
	window      time.Duration
	cooldown    time.Duration

	losses   []lossSample
	haltedAt time.Time
	cause    string

	onStateChange func(from, to State, cause string, failures int, drawdown decimal.Decimal)

	now func() time.Time
}

func NewBreaker(threshold int, drawdownCapSOL float64, window, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:       StateArmed,
		threshold:   threshold,
		drawdownCap: decimal.NewFromFloat(drawdownCapSOL),
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// SetStateChangeHandler registers the persistence hook for trip/reset events.
func (b *Breaker) SetStateChangeHandler(handler func(from, to State, cause string, failures int, drawdown decimal.Decimal)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = handler
}

// Allow reports whether a new entry may proceed. A halted breaker whose
// cooldown has elapsed re-arms on the first Allow call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalted {
		if b.cooldown > 0 && b.now().Sub(b.haltedAt) > b.cooldown {
			b.transition(StateArmed, "cooldown_elapsed")
			return true
		}
		return false
	}
	return true
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordWin clears the consecutive-failure count. Wins do not shrink the
// rolling drawdown; only time does.
func (b *Breaker) RecordWin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// RecordFailure feeds one failed order into the consecutive-failure
// condition. No loss amount is booked: the stake is still exposed, not
// realized. Exhausted sell retries land here.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state != StateArmed {
		return
	}
	if b.threshold > 0 && b.failures >= b.threshold {
		b.transition(StateHalted, "consecutive_failures")
	}
}

// RecordLoss feeds one losing trade (loss is a positive SOL amount) into
// both trip conditions.
func (b *Breaker) RecordLoss(loss decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if loss.IsPositive() {
		b.losses = append(b.losses, lossSample{at: b.now(), loss: loss})
	}
	b.evict()

	if b.state != StateArmed {
		return
	}
	if b.threshold > 0 && b.failures >= b.threshold {
		b.transition(StateHalted, "consecutive_failures")
		return
	}
	if b.drawdownCap.IsPositive() && b.rollingDrawdown().GreaterThanOrEqual(b.drawdownCap) {
		b.transition(StateHalted, "drawdown_cap")
	}
}

// Reset manually re-arms a halted breaker and clears the failure count.
func (b *Breaker) Reset() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateHalted {
		return false
	}
	b.failures = 0
	b.losses = nil
	b.transition(StateArmed, "manual_reset")
	return true
}

// Drawdown returns the realized loss sum inside the current window.
func (b *Breaker) Drawdown() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evict()
	return b.rollingDrawdown()
}

func (b *Breaker) evict() {
	if b.window <= 0 {
		return
	}
	cutoff := b.now().Add(-b.window)
	kept := b.losses[:0]
	for _, s := range b.losses {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	b.losses = kept
}

func (b *Breaker) rollingDrawdown() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range b.losses {
		sum = sum.Add(s.loss)
	}
	return sum
}

func (b *Breaker) transition(to State, cause string) {
	from := b.state
	b.state = to
	b.cause = cause
	if to == StateHalted {
		b.haltedAt = b.now()
	}
	drawdown := b.rollingDrawdown()
	logger.Warnf("breaker %s -> %s (%s, failures=%d/%d, drawdown=%s/%s)",
		from, to, cause, b.failures, b.threshold, drawdown, b.drawdownCap)
	if b.onStateChange != nil {
		go b.onStateChange(from, to, cause, b.failures, drawdown)
	}
}

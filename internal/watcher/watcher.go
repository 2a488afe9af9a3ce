// Package watcher consumes the liquidity-event feed: it detects migration
// events for the configured program, deduplicates them, and forwards both
// candidates and raw pool updates downstream. The feed is lossy by design:
// when the bounded queue is full the oldest event is dropped and counted,
// never the connection blocked.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"raysniper/internal/chain"
	"raysniper/internal/config"
	"raysniper/internal/feature"
	"raysniper/internal/logger"
	"raysniper/internal/observability"
	"raysniper/internal/safety"
)

// Sink receives the watcher's two output streams.
type Sink interface {
	OnMigration(c safety.Candidate)
	OnPoolUpdate(u feature.PoolUpdate)
}

type Watcher struct {
	cfg   config.FeedConfig
	sink  Sink
	cache *chain.Cache

	queue chan Frame

	dedupMu   sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
	maxSeen   int

	wg sync.WaitGroup
}

func New(cfg config.FeedConfig, sink Sink, cache *chain.Cache) *Watcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	return &Watcher{
		cfg:     cfg,
		sink:    sink,
		cache:   cache,
		queue:   make(chan Frame, size),
		seen:    make(map[string]struct{}),
		maxSeen: 4096,
	}
}

// Run blocks until ctx is cancelled. It maintains the feed connection with
// exponential backoff and drives the dispatch loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.wg.Add(1)
	go w.dispatchLoop(ctx)

	delay := w.cfg.ReconnectMin()
	for {
		if ctx.Err() != nil {
			break
		}
		err := w.readOnce(ctx)
		if ctx.Err() != nil {
			break
		}
		observability.RecordFeedReconnect()
		logger.Warnf("feed disconnected: %v, reconnecting in %v", err, delay)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		delay *= 2
		if delay > w.cfg.ReconnectMax() {
			delay = w.cfg.ReconnectMax()
		}
	}
	w.wg.Wait()
	return ctx.Err()
}

// readOnce dials, subscribes, and reads until the connection breaks.
func (w *Watcher) readOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	sub := map[string]any{
		"op":      "subscribe",
		"program": w.cfg.MigrationProgram,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	logger.Infof("feed connected, watching program %s", w.cfg.MigrationProgram)

	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		observability.RecordFeedEvent()
		fr, ok := ParseFrame(raw)
		if !ok {
			continue
		}
		if fr.Kind == FrameMigration && w.duplicate(fr.Candidate.Mint, fr.Candidate.Slot) {
			observability.RecordFeedDuplicate()
			continue
		}
		w.enqueue(fr)
	}
}

// enqueue pushes the event, evicting the oldest when the queue is full. The
// feed reader never blocks on slow consumers.
func (w *Watcher) enqueue(fr Frame) {
	for {
		select {
		case w.queue <- fr:
			observability.SetFeedQueueDepth(len(w.queue))
			return
		default:
		}
		select {
		case <-w.queue:
			observability.RecordFeedDrop()
		default:
		}
	}
}

// duplicate records (mint, slot) and reports whether it was already seen.
// The set is pruned FIFO; re-emission of very old events is acceptable, the
// engine rejects those on its own invariants.
func (w *Watcher) duplicate(mint string, slot uint64) bool {
	key := dedupKey(mint, slot)
	w.dedupMu.Lock()
	defer w.dedupMu.Unlock()
	if _, ok := w.seen[key]; ok {
		return true
	}
	w.seen[key] = struct{}{}
	w.seenOrder = append(w.seenOrder, key)
	if len(w.seenOrder) > w.maxSeen {
		oldest := w.seenOrder[0]
		w.seenOrder = w.seenOrder[1:]
		delete(w.seen, oldest)
	}
	return false
}

func (w *Watcher) dispatchLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fr := <-w.queue:
			observability.SetFeedQueueDepth(len(w.queue))
			switch fr.Kind {
			case FrameMigration:
				w.handleMigration(ctx, fr.Candidate)
			case FrameSwap:
				w.sink.OnPoolUpdate(fr.Update)
			}
		}
	}
}

func (w *Watcher) handleMigration(ctx context.Context, c safety.Candidate) {
	if err := chain.ValidateMint(c.Mint); err != nil {
		logger.Warnf("migration event with bad mint %q: %v", c.Mint, err)
		return
	}
	// Warm the vault cache while the safety checks run; a miss here only
	// costs a refresh at order time.
	if w.cache != nil {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := w.cache.Prewarm(pctx, c.Mint); err != nil {
			logger.Debugf("cache prewarm for %s: %v", c.Mint, err)
		}
		cancel()
	}
	w.sink.OnMigration(c)
}

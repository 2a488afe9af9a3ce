// Package wallets tracks the operator-maintained wallet lists: flagged
// creators whose launches are auto-rejected, and whales whose single-wallet
// dumps weight the exit rules.
package wallets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"raysniper/internal/logger"
)

type fileFormat struct {
	Flagged []string `yaml:"flagged"`
	Whales  []string `yaml:"whales"`
}

// Book is the in-memory view of the wallet file. Reads vastly outnumber
// reloads; a RWMutex is enough.
type Book struct {
	mu      sync.RWMutex
	flagged map[string]struct{}
	whales  map[string]struct{}
}

func NewBook() *Book {
	return &Book{
		flagged: make(map[string]struct{}),
		whales:  make(map[string]struct{}),
	}
}

// Load reads the wallet file. A missing file yields an empty book rather
// than an error: the lists are optional.
func Load(path string) (*Book, error) {
	b := NewBook()
	if path == "" {
		return b, nil
	}
	if err := b.reload(path); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("wallet file %s missing, starting with empty lists", path)
			return b, nil
		}
		return nil, err
	}
	return b, nil
}

func (b *Book) reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse wallet file: %w", err)
	}
	flagged := make(map[string]struct{}, len(f.Flagged))
	for _, w := range f.Flagged {
		flagged[w] = struct{}{}
	}
	whales := make(map[string]struct{}, len(f.Whales))
	for _, w := range f.Whales {
		whales[w] = struct{}{}
	}
	b.mu.Lock()
	b.flagged = flagged
	b.whales = whales
	b.mu.Unlock()
	logger.Infof("wallet lists loaded: %d flagged, %d whales", len(flagged), len(whales))
	return nil
}

func (b *Book) Flagged(wallet string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.flagged[wallet]
	return ok
}

func (b *Book) Whale(wallet string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.whales[wallet]
	return ok
}

// Watch reloads the wallet file on change. Same directory-watch pattern as
// the parameter file: editors replace the inode.
func (b *Book) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}
	go func() {
		defer w.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != abs {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(250 * time.Millisecond)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warnf("wallet watch error: %v", err)
			case <-pending:
				pending = nil
				if err := b.reload(abs); err != nil {
					logger.Warnf("wallet reload rejected: %v", err)
				}
			}
		}
	}()
	return nil
}

// Package status publishes the machine-readable health artifact the rollout
// manager polls. The file is always replaced atomically so a reader never
// sees a torn write.
package status

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"raysniper/internal/config"
	"raysniper/internal/engine"
	"raysniper/internal/logger"
	"raysniper/internal/pkg/circuit"
)

// Summarizer exposes the engine's condensed state.
type Summarizer interface {
	Summary() engine.Summary
}

// Artifact is the on-disk document.
type Artifact struct {
	engine.Summary
	Breaker       string    `json:"breaker"`
	UpdatePending bool      `json:"update_pending"`
	WrittenAt     time.Time `json:"written_at"`
}

type Writer struct {
	cfg     config.StatusConfig
	source  Summarizer
	breaker *circuit.Breaker
}

func NewWriter(cfg config.StatusConfig, source Summarizer, breaker *circuit.Breaker) *Writer {
	return &Writer{cfg: cfg, source: source, breaker: breaker}
}

// Run writes the artifact on the configured interval until ctx is done. A
// final write happens on shutdown so the artifact reflects the last state.
func (w *Writer) Run(ctx context.Context) {
	interval := time.Duration(w.cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.writeOnce()
			return
		case <-ticker.C:
			w.writeOnce()
		}
	}
}

func (w *Writer) writeOnce() {
	if w.cfg.Path == "" {
		return
	}
	art := Artifact{
		Summary:       w.source.Summary(),
		Breaker:       w.breaker.State().String(),
		UpdatePending: w.updatePending(),
		WrittenAt:     time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		logger.Errorf("status marshal: %v", err)
		return
	}
	if err := atomicWrite(w.cfg.Path, raw); err != nil {
		logger.Warnf("status write: %v", err)
	}
}

// updatePending reports whether a staged parameter set is waiting. The
// engine only reports the marker; the rollout manager acts on it.
func (w *Writer) updatePending() bool {
	if w.cfg.UpdateMarker == "" {
		return false
	}
	_, err := os.Stat(w.cfg.UpdateMarker)
	return err == nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

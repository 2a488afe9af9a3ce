package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raysniper/internal/config"
	"raysniper/internal/engine"
	"raysniper/internal/pkg/circuit"
)

type fixedSummary engine.Summary

func (f fixedSummary) Summary() engine.Summary { return engine.Summary(f) }

func TestWriteOnce_Artifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	w := NewWriter(config.StatusConfig{Path: path}, fixedSummary{
		OpenPositions: 2,
		RealizedPnL:   decimal.NewFromFloat(1.25),
	}, circuit.NewBreaker(3, 2.5, time.Hour, time.Hour))

	w.writeOnce()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var art Artifact
	require.NoError(t, json.Unmarshal(raw, &art))
	assert.Equal(t, 2, art.OpenPositions)
	assert.Equal(t, "ARMED", art.Breaker)
	assert.False(t, art.UpdatePending)
	assert.False(t, art.WrittenAt.IsZero())
}

func TestWriteOnce_ReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	w := NewWriter(config.StatusConfig{Path: path}, fixedSummary{},
		circuit.NewBreaker(3, 2.5, time.Hour, time.Hour))
	w.writeOnce()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestUpdatePendingMarker(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "update.pending")
	path := filepath.Join(dir, "status.json")
	w := NewWriter(config.StatusConfig{Path: path, UpdateMarker: marker}, fixedSummary{},
		circuit.NewBreaker(3, 2.5, time.Hour, time.Hour))

	w.writeOnce()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var art Artifact
	require.NoError(t, json.Unmarshal(raw, &art))
	assert.False(t, art.UpdatePending)

	require.NoError(t, os.WriteFile(marker, nil, 0o644))
	w.writeOnce()
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &art))
	assert.True(t, art.UpdatePending)
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
app:
  env: dev
  mode: live
feed:
  url: wss://feed.example.com/stream
chain:
  rpc_url: https://rpc.example.com
entry:
  stake_sol: 0.5
exit:
  chaos: &phase
    shock_drop_pct: 0.15
    drawdown_cap_pct: 0.20
    churn_timeout_sec: 90
    trail_activate_pct: 0.20
    trail_pct: 0.12
    trail_min_pct: 0.05
  discovery: *phase
  trending: *phase
  mature: *phase
sell:
  slippage_pct: 0.01
breaker:
  drawdown_cap_sol: 2.5
store:
  path: data/test.db
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ValidFileAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.App.Mode)
	assert.Equal(t, ":8787", cfg.App.HTTPAddr)
	assert.Equal(t, 256, cfg.Feed.QueueSize)
	assert.Equal(t, 3, cfg.Entry.MaxOpenPositions)
	assert.Equal(t, 120, cfg.Entry.ObserverTimeoutSec)
	assert.Equal(t, 3, cfg.Sell.MaxAttempts)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 0.15, cfg.Exit.Chaos.ShockDropPct)
	assert.Equal(t, 0.15, cfg.Exit.Mature.ShockDropPct)
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]struct {
		mutate func(string) string
		want   string
	}{
		"bad mode": {
			func(s string) string { return strings.Replace(s, "mode: live", "mode: turbo", 1) },
			"app.mode",
		},
		"checks_off in prod": {
			func(s string) string {
				s = strings.Replace(s, "env: dev", "env: prod", 1)
				return strings.Replace(s, "mode: live", "mode: live\n  checks_off: true", 1)
			},
			"checks_off",
		},
		"missing feed url": {
			func(s string) string { return strings.Replace(s, "url: wss://feed.example.com/stream", `url: ""`, 1) },
			"feed.url",
		},
		"zero stake": {
			func(s string) string { return strings.Replace(s, "stake_sol: 0.5", "stake_sol: 0", 1) },
			"stake_sol",
		},
		"slippage out of range": {
			func(s string) string { return strings.Replace(s, "slippage_pct: 0.01", "slippage_pct: 0.9", 1) },
			"slippage_pct",
		},
		"trail above activation": {
			func(s string) string { return strings.Replace(s, "trail_pct: 0.12", "trail_pct: 0.25", 1) },
			"trail_pct",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.mutate(validYAML)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

package safety

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"raysniper/internal/config"
)

type fixedCheck struct {
	name  string
	score float64
	err   error
}

func (c fixedCheck) Name() string { return c.name }

func (c fixedCheck) Run(context.Context, string) (float64, error) {
	return c.score, c.err
}

type flaggedSet map[string]bool

func (f flaggedSet) Flagged(wallet string) bool { return f[wallet] }

func safetyConfig() config.SafetyConfig {
	return config.SafetyConfig{
		MinHoneypotScore: 0.7,
		MinContractScore: 0.6,
		CheckTimeoutMs:   1000,
	}
}

func newTestAnalyzer(honeypot, contract Check) *Analyzer {
	return NewAnalyzer(safetyConfig(), false, flaggedSet{"rugger": true}, nil).
		WithChecks(honeypot, contract)
}

func TestAnalyze_Pass(t *testing.T) {
	a := newTestAnalyzer(
		fixedCheck{name: "honeypot", score: 0.9},
		fixedCheck{name: "contract", score: 0.8},
	)

	v := a.Analyze(context.Background(), Candidate{Mint: "m", Creator: "honest"})
	assert.True(t, v.Passed)
	assert.Empty(t, v.Reason)
	assert.Equal(t, 0.9, v.HoneypotScore)
	assert.Equal(t, 0.8, v.ContractScore)
}

func TestAnalyze_HoneypotRisk(t *testing.T) {
	a := newTestAnalyzer(
		fixedCheck{name: "honeypot", score: 0.4},
		fixedCheck{name: "contract", score: 0.9},
	)

	v := a.Analyze(context.Background(), Candidate{Mint: "m"})
	assert.False(t, v.Passed)
	assert.Equal(t, "honeypot_risk", v.Reason)
}

func TestAnalyze_ContractRisk(t *testing.T) {
	a := newTestAnalyzer(
		fixedCheck{name: "honeypot", score: 0.9},
		fixedCheck{name: "contract", score: 0.2},
	)

	v := a.Analyze(context.Background(), Candidate{Mint: "m"})
	assert.False(t, v.Passed)
	assert.Equal(t, "contract_risk", v.Reason)
}

func TestAnalyze_CheckErrorFailsClosed(t *testing.T) {
	a := newTestAnalyzer(
		fixedCheck{name: "honeypot", err: errors.New("connection refused")},
		fixedCheck{name: "contract", score: 0.9},
	)

	v := a.Analyze(context.Background(), Candidate{Mint: "m"})
	assert.False(t, v.Passed)
	assert.Equal(t, "check_unavailable", v.Reason)
}

func TestAnalyze_FlaggedCreatorSkipsChecks(t *testing.T) {
	a := newTestAnalyzer(
		fixedCheck{name: "honeypot", err: errors.New("must not run")},
		fixedCheck{name: "contract", err: errors.New("must not run")},
	)

	v := a.Analyze(context.Background(), Candidate{Mint: "m", Creator: "rugger"})
	assert.False(t, v.Passed)
	assert.Equal(t, "creator_flagged", v.Reason)
}

func TestAnalyze_ChecksOffBypass(t *testing.T) {
	a := NewAnalyzer(safetyConfig(), true, nil, nil).WithChecks(
		fixedCheck{name: "honeypot", err: errors.New("must not run")},
		fixedCheck{name: "contract", err: errors.New("must not run")},
	)

	v := a.Analyze(context.Background(), Candidate{Mint: "m"})
	assert.True(t, v.Passed)
	assert.Equal(t, "checks_off", v.Reason)
}

package config

import "time"

// Config is the top-level parameter carrier for the engine. It is loaded once
// at startup from the strategy parameter file; the exit section may be
// hot-reloaded while running (see Watch).
type Config struct {
	App     AppConfig     `yaml:"app"`
	Feed    FeedConfig    `yaml:"feed"`
	Chain   ChainConfig   `yaml:"chain"`
	Safety  SafetyConfig  `yaml:"safety"`
	Entry   EntryConfig   `yaml:"entry"`
	Exit    ExitConfig    `yaml:"exit"`
	Sell    SellConfig    `yaml:"sell"`
	Breaker BreakerConfig `yaml:"breaker"`
	Store   StoreConfig   `yaml:"store"`
	Status  StatusConfig  `yaml:"status"`
	Wallets WalletsConfig `yaml:"wallets"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
	HTTPAddr string `yaml:"http_addr"`
	// Mode selects "live" (migration watch) or "analyze" (batch, no capital).
	Mode string `yaml:"mode"`
	// ChecksOff bypasses the safety analyzer. Never valid when Env is "prod".
	ChecksOff bool `yaml:"checks_off"`
	// ReplayPath is the capture file consumed in analyze mode.
	ReplayPath string `yaml:"replay_path"`
}

type FeedConfig struct {
	URL string `yaml:"url"`
	// MigrationProgram is the on-chain program whose logs signal a migration.
	MigrationProgram string `yaml:"migration_program"`
	QueueSize        int    `yaml:"queue_size"`
	ReconnectMinMs   int    `yaml:"reconnect_min_ms"`
	ReconnectMaxMs   int    `yaml:"reconnect_max_ms"`
}

type ChainConfig struct {
	RPCURL           string `yaml:"rpc_url"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
}

type SafetyConfig struct {
	HoneypotURL      string  `yaml:"honeypot_url"`
	ContractURL      string  `yaml:"contract_url"`
	CheckTimeoutMs   int     `yaml:"check_timeout_ms"`
	MinHoneypotScore float64 `yaml:"min_honeypot_score"`
	MinContractScore float64 `yaml:"min_contract_score"`
}

type EntryConfig struct {
	StakeSOL         float64 `yaml:"stake_sol"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
	// ObserverTimeoutSec drops an observer that never passes the gate.
	ObserverTimeoutSec int     `yaml:"observer_timeout_sec"`
	MinVolumeRatio     float64 `yaml:"min_volume_ratio"`
	MinMomentumPct     float64 `yaml:"min_momentum_pct"`
	// RatePerMin caps new entries per minute. 0 disables the limiter.
	RatePerMin float64 `yaml:"rate_per_min"`
}

// PhaseParams carries the exit-rule numbers for one lifecycle phase.
type PhaseParams struct {
	ShockDropPct      float64 `yaml:"shock_drop_pct"`
	DrawdownCapPct    float64 `yaml:"drawdown_cap_pct"`
	DrawdownTierScale float64 `yaml:"drawdown_tier_scale"`
	ReversalTicks     int     `yaml:"reversal_ticks"`
	ChurnTimeoutSec   int     `yaml:"churn_timeout_sec"`
	ChurnFlatPct      float64 `yaml:"churn_flat_pct"`
	TrailActivatePct  float64 `yaml:"trail_activate_pct"`
	TrailPct          float64 `yaml:"trail_pct"`
	// TrailTightenPer tightens the trail by TrailTightenStep for every
	// TrailTightenPer of unrealized gain, never below TrailMinPct.
	TrailTightenPer  float64 `yaml:"trail_tighten_per"`
	TrailTightenStep float64 `yaml:"trail_tighten_step"`
	TrailMinPct      float64 `yaml:"trail_min_pct"`
}

type ExitConfig struct {
	Chaos     PhaseParams `yaml:"chaos"`
	Discovery PhaseParams `yaml:"discovery"`
	Trending  PhaseParams `yaml:"trending"`
	Mature    PhaseParams `yaml:"mature"`

	// Phase progression thresholds.
	DiscoveryAfterSec  int     `yaml:"discovery_after_sec"`
	TrendingRunupPct   float64 `yaml:"trending_runup_pct"`
	MatureRunupPct     float64 `yaml:"mature_runup_pct"`
	MatureAfterSec     int     `yaml:"mature_after_sec"`
	ReversalDemotePct  float64 `yaml:"reversal_demote_pct"`
	WhaleDumpSOL       float64 `yaml:"whale_dump_sol"`
	PanicOutflowCount  int     `yaml:"panic_outflow_count"`
	PanicOutflowSOL    float64 `yaml:"panic_outflow_sol"`
	PanicOutflowWindow int     `yaml:"panic_outflow_window_sec"`
}

type SellConfig struct {
	SlippagePct       float64 `yaml:"slippage_pct"`
	SlippageWidenStep float64 `yaml:"slippage_widen_step"`
	MaxAttempts       int     `yaml:"max_attempts"`
	RetryBackoffMs    int     `yaml:"retry_backoff_ms"`
	SubmitTimeoutMs   int     `yaml:"submit_timeout_ms"`
}

type BreakerConfig struct {
	FailureThreshold int     `yaml:"failure_threshold"`
	DrawdownCapSOL   float64 `yaml:"drawdown_cap_sol"`
	DrawdownWindow   int     `yaml:"drawdown_window_min"`
	CooldownMin      int     `yaml:"cooldown_min"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type StatusConfig struct {
	Path        string `yaml:"path"`
	IntervalSec int    `yaml:"interval_sec"`
	// UpdateMarker is the path whose presence means a new champion parameter
	// set is staged. The engine only reports it; the rollout manager acts.
	UpdateMarker string `yaml:"update_marker"`
}

type WalletsConfig struct {
	Path string `yaml:"path"`
}

func (f FeedConfig) ReconnectMin() time.Duration {
	if f.ReconnectMinMs <= 0 {
		return time.Second
	}
	return time.Duration(f.ReconnectMinMs) * time.Millisecond
}

func (f FeedConfig) ReconnectMax() time.Duration {
	if f.ReconnectMaxMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(f.ReconnectMaxMs) * time.Millisecond
}

func (c ChainConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (s SafetyConfig) CheckTimeout() time.Duration {
	if s.CheckTimeoutMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(s.CheckTimeoutMs) * time.Millisecond
}

func (s SellConfig) RetryBackoff() time.Duration {
	if s.RetryBackoffMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(s.RetryBackoffMs) * time.Millisecond
}

func (s SellConfig) SubmitTimeout() time.Duration {
	if s.SubmitTimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(s.SubmitTimeoutMs) * time.Millisecond
}

func (b BreakerConfig) Cooldown() time.Duration {
	if b.CooldownMin <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(b.CooldownMin) * time.Minute
}

// Params returns the parameter bundle for the named phase.
func (e ExitConfig) Params(phase string) PhaseParams {
	switch phase {
	case "chaos":
		return e.Chaos
	case "trending":
		return e.Trending
	case "mature":
		return e.Mature
	default:
		return e.Discovery
	}
}

package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	switch strings.ToLower(strings.TrimSpace(c.App.Mode)) {
	case "live", "analyze":
	default:
		return fmt.Errorf("app.mode must be \"live\" or \"analyze\", got %q", c.App.Mode)
	}
	if c.App.ChecksOff && strings.EqualFold(c.App.Env, "prod") {
		return fmt.Errorf("app.checks_off is not allowed when app.env is prod")
	}
	if strings.TrimSpace(c.Feed.URL) == "" {
		return fmt.Errorf("feed.url is required")
	}
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Entry.StakeSOL <= 0 {
		return fmt.Errorf("entry.stake_sol must be > 0")
	}
	if c.Entry.RatePerMin < 0 {
		return fmt.Errorf("entry.rate_per_min must be >= 0")
	}
	if c.Sell.SlippagePct <= 0 || c.Sell.SlippagePct >= 0.5 {
		return fmt.Errorf("sell.slippage_pct must be in (0, 0.5), got %v", c.Sell.SlippagePct)
	}
	if c.Breaker.DrawdownCapSOL <= 0 {
		return fmt.Errorf("breaker.drawdown_cap_sol must be > 0")
	}
	for _, pc := range []struct {
		name   string
		params PhaseParams
	}{
		{"chaos", c.Exit.Chaos},
		{"discovery", c.Exit.Discovery},
		{"trending", c.Exit.Trending},
		{"mature", c.Exit.Mature},
	} {
		if err := validatePhase(pc.name, pc.params); err != nil {
			return err
		}
	}
	return nil
}

func validatePhase(name string, p PhaseParams) error {
	if p.ShockDropPct <= 0 || p.ShockDropPct >= 1 {
		return fmt.Errorf("exit.%s.shock_drop_pct must be in (0,1)", name)
	}
	if p.DrawdownCapPct <= 0 || p.DrawdownCapPct >= 1 {
		return fmt.Errorf("exit.%s.drawdown_cap_pct must be in (0,1)", name)
	}
	if p.ChurnTimeoutSec <= 0 {
		return fmt.Errorf("exit.%s.churn_timeout_sec must be > 0", name)
	}
	if p.TrailPct <= 0 || p.TrailPct >= p.TrailActivatePct {
		return fmt.Errorf("exit.%s.trail_pct must be > 0 and below trail_activate_pct", name)
	}
	if p.TrailMinPct > 0 && p.TrailMinPct > p.TrailPct {
		return fmt.Errorf("exit.%s.trail_min_pct must not exceed trail_pct", name)
	}
	return nil
}

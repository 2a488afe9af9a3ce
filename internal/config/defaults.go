package config

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Mode == "" {
		c.App.Mode = "live"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8787"
	}
	if c.Feed.QueueSize <= 0 {
		c.Feed.QueueSize = 256
	}
	if c.Entry.MaxOpenPositions <= 0 {
		c.Entry.MaxOpenPositions = 3
	}
	if c.Entry.ObserverTimeoutSec <= 0 {
		c.Entry.ObserverTimeoutSec = 120
	}
	if c.Sell.MaxAttempts <= 0 {
		c.Sell.MaxAttempts = 3
	}
	if c.Sell.SlippagePct <= 0 {
		c.Sell.SlippagePct = 0.02
	}
	if c.Sell.SlippageWidenStep <= 0 {
		c.Sell.SlippageWidenStep = 0.01
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.DrawdownWindow <= 0 {
		c.Breaker.DrawdownWindow = 60
	}
	if c.Status.IntervalSec <= 0 {
		c.Status.IntervalSec = 10
	}
	if c.Exit.DiscoveryAfterSec <= 0 {
		c.Exit.DiscoveryAfterSec = 45
	}
	if c.Exit.TrendingRunupPct <= 0 {
		c.Exit.TrendingRunupPct = 0.5
	}
	if c.Exit.MatureRunupPct <= 0 {
		c.Exit.MatureRunupPct = 2.0
	}
	if c.Exit.MatureAfterSec <= 0 {
		c.Exit.MatureAfterSec = 900
	}
	if c.Exit.ReversalDemotePct <= 0 {
		c.Exit.ReversalDemotePct = 0.4
	}
	if c.Exit.PanicOutflowCount <= 0 {
		c.Exit.PanicOutflowCount = 3
	}
	if c.Exit.PanicOutflowWindow <= 0 {
		c.Exit.PanicOutflowWindow = 20
	}
}

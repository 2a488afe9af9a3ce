// Package app wires the pipeline together and owns process lifecycle:
// recovery before intake, ordered startup, and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"raysniper/internal/config"
	"raysniper/internal/engine"
	"raysniper/internal/feature"
	"raysniper/internal/logger"
	"raysniper/internal/observability"
	"raysniper/internal/pkg/circuit"
	"raysniper/internal/replay"
	"raysniper/internal/status"
	"raysniper/internal/store"
	apihttp "raysniper/internal/transport/http"
	"raysniper/internal/wallets"
	"raysniper/internal/watcher"
)

type App struct {
	cfg      string // parameter file path, watched for exit hot-reload
	conf     *config.Config
	store    store.Store
	engine   *engine.Engine
	features *feature.Engine
	breaker  *circuit.Breaker
	book     *wallets.Book
	watcher  *watcher.Watcher
	httpSrv  *apihttp.Server
	statusW  *status.Writer
}

// NewApp builds the application from a loaded config. Nothing starts here.
func NewApp(conf *config.Config, cfgPath string) (*App, error) {
	if conf == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(conf.App.LogLevel)
	a, err := build(conf)
	if err != nil {
		return nil, err
	}
	a.cfg = cfgPath
	return a, nil
}

// Run executes the selected mode until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	if a.conf.App.Mode == "analyze" {
		return a.runAnalyze()
	}
	return a.runLive(ctx)
}

// runLive is the capital-at-risk path. Recovery completes before the feed
// connects: no new event may observe pre-crash state half-rebuilt.
func (a *App) runLive(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := a.engine.Recover(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}

	a.engine.Start()
	defer a.engine.Stop()

	if err := config.Watch(ctx, a.cfg, func(exit config.ExitConfig) {
		a.features.SetThresholds(featureThresholds(exit))
		cmd := engine.NewCommand(engine.CmdExitParams, "", engine.ExitParamsPayload{Exit: exit})
		_ = a.engine.Send(cmd)
	}); err != nil {
		logger.Warnf("parameter watch not started: %v", err)
	}
	if a.conf.Wallets.Path != "" {
		if err := a.book.Watch(ctx, a.conf.Wallets.Path); err != nil {
			logger.Warnf("wallet watch not started: %v", err)
		}
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("feed watcher: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := a.httpSrv.Start(gctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		a.statusW.Run(gctx)
		return nil
	})
	group.Go(func() error {
		a.sweepLoop(gctx)
		return nil
	})
	group.Go(func() error {
		a.gaugeLoop(gctx)
		return nil
	})

	logger.Infof("live pipeline running (env=%s)", a.conf.App.Env)
	return group.Wait()
}

// runAnalyze replays a capture file through the same derivation and exit
// rules the live path uses. No orders, no persistence.
func (a *App) runAnalyze() error {
	if a.conf.App.ReplayPath == "" {
		return fmt.Errorf("analyze mode requires app.replay_path")
	}
	runner := replay.NewRunner(a.conf.Entry, a.conf.Exit)
	report, err := runner.Run(a.conf.App.ReplayPath)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	report.Print()
	return nil
}

// sweepLoop drives observer expiry through the command queue.
func (a *App) sweepLoop(ctx context.Context) {
	interval := time.Duration(a.conf.Entry.ObserverTimeoutSec) * time.Second / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cmd := engine.NewCommand(engine.CmdSweep, "", engine.SweepPayload{At: time.Now()})
			_ = a.engine.Send(cmd)
		}
	}
}

// gaugeLoop mirrors the condensed state onto the metrics surface.
func (a *App) gaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := a.engine.Summary()
			m := observability.Default
			m.OpenPositions.Set(float64(s.OpenPositions))
			m.Observers.Set(float64(s.Observers))
			m.ActiveTelemetry.Set(float64(s.ActiveTelemetry))
			m.RealizedPnLSOL.Set(s.RealizedPnL.InexactFloat64())
			if a.breaker.State() == circuit.StateHalted {
				m.BreakerHalted.Set(1)
			} else {
				m.BreakerHalted.Set(0)
			}
		}
	}
}

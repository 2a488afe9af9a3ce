package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"raysniper/internal/chain"
	"raysniper/internal/config"
	"raysniper/internal/engine"
	"raysniper/internal/feature"
	"raysniper/internal/logger"
	"raysniper/internal/observability"
	"raysniper/internal/pkg/circuit"
	"raysniper/internal/safety"
	"raysniper/internal/seller"
	"raysniper/internal/signal"
	"raysniper/internal/status"
	"raysniper/internal/store"
	"raysniper/internal/store/gormstore"
	apihttp "raysniper/internal/transport/http"
	"raysniper/internal/wallets"
	"raysniper/internal/watcher"
)

// build assembles the full live pipeline. Construction order matters only in
// one place: the engine and its processors reference each other, so the
// sinks are bound in a second step before anything starts.
func build(cfg *config.Config) (*App, error) {
	st, err := gormstore.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rpc := chain.NewRPCClient(cfg.Chain.RPCURL, cfg.Chain.RequestTimeout())
	cache := chain.NewCache(chain.FetchVaultState(rpc))

	book, err := wallets.Load(cfg.Wallets.Path)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load wallet lists: %w", err)
	}

	analyzer := safety.NewAnalyzer(cfg.Safety, cfg.App.ChecksOff, book, st)

	breaker := circuit.NewBreaker(
		cfg.Breaker.FailureThreshold,
		cfg.Breaker.DrawdownCapSOL,
		time.Duration(cfg.Breaker.DrawdownWindow)*time.Minute,
		cfg.Breaker.Cooldown(),
	)
	breaker.SetStateChangeHandler(persistBreakerEvents(st))

	var eng *engine.Engine
	features := feature.NewEngine(featureThresholds(cfg.Exit), book, func(snap feature.Snapshot) {
		cmd := engine.NewCommand(engine.CmdTickUpdate, snap.Mint, engine.TickPayload{Snapshot: snap})
		cmd.CreatedAt = snap.At
		_ = eng.Send(cmd)
	})

	eng = engine.New(cfg.Entry, cfg.Exit, st, nil, nil, features)

	sellProc := seller.NewProcessor(cfg.Sell, rpc, cache, eng, breaker)
	sigProc := signal.NewProcessor(cfg.Entry, cfg.Sell, analyzer, features, rpc, breaker, eng)
	eng.BindSinks(sigProc, sellProc, features)

	return &App{
		conf:     cfg,
		store:    st,
		engine:   eng,
		features: features,
		breaker:  breaker,
		book:     book,
		watcher:  watcher.New(cfg.Feed, sigProc, cache),
		httpSrv:  apihttp.NewServer(cfg.App.HTTPAddr, eng, breaker),
		statusW:  status.NewWriter(cfg.Status, eng, breaker),
	}, nil
}

func featureThresholds(exit config.ExitConfig) feature.Thresholds {
	return feature.Thresholds{
		WhaleDumpSOL:      exit.WhaleDumpSOL,
		PanicOutflowCount: exit.PanicOutflowCount,
		PanicOutflowSOL:   exit.PanicOutflowSOL,
		PanicWindow:       time.Duration(exit.PanicOutflowWindow) * time.Second,
	}
}

// persistBreakerEvents writes every trip and reset to the durable history
// and mirrors the state on the gauge.
func persistBreakerEvents(st store.Store) func(from, to circuit.State, cause string, failures int, drawdown decimal.Decimal) {
	return func(from, to circuit.State, cause string, failures int, drawdown decimal.Decimal) {
		event := "reset"
		halted := 0.0
		if to == circuit.StateHalted {
			event = "trip"
			halted = 1.0
		}
		observability.Default.BreakerHalted.Set(halted)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := st.AppendBreakerEvent(ctx, store.BreakerEvent{
			Event:    event,
			Cause:    cause,
			Failures: failures,
			Drawdown: drawdown,
			At:       time.Now(),
		})
		if err != nil {
			logger.Warnf("breaker event not persisted: %v", err)
		}
	}
}

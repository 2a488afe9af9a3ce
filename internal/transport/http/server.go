// Package apihttp exposes the engine's read-only operational surface plus
// the one manual control: resetting a halted circuit breaker. It never
// mutates position state directly; a forced sell goes through the command
// queue like everything else.
package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"raysniper/internal/engine"
	"raysniper/internal/logger"
	"raysniper/internal/observability"
	"raysniper/internal/pkg/circuit"
)

// StateReader is the engine snapshot surface the server renders.
type StateReader interface {
	Snapshot() *engine.State
	Summary() engine.Summary
	Send(cmd engine.Command) error
}

type Server struct {
	addr    string
	router  *gin.Engine
	reader  StateReader
	breaker *circuit.Breaker
}

func NewServer(addr string, reader StateReader, breaker *circuit.Breaker) *Server {
	if addr == "" {
		addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{addr: addr, router: router, reader: reader, breaker: breaker}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(observability.Handler()))
	router.GET("/status", s.handleStatus)
	router.GET("/positions", s.handlePositions)
	router.POST("/admin/breaker/reset", s.handleBreakerReset)
	router.POST("/admin/positions/:mint/sell", s.handleForcedSell)

	return s
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"summary": s.reader.Summary(),
		"breaker": s.breaker.State().String(),
	})
}

type positionView struct {
	Mint        string  `json:"mint"`
	Lifecycle   string  `json:"lifecycle"`
	Phase       string  `json:"phase"`
	EntryPrice  float64 `json:"entry_price"`
	LastPrice   float64 `json:"last_price"`
	RunupPct    float64 `json:"runup_pct"`
	DrawdownPct float64 `json:"drawdown_pct"`
	Stake       string  `json:"stake_sol"`
	Size        string  `json:"size"`
	OpenedAt    string  `json:"opened_at,omitempty"`
}

func (s *Server) handlePositions(c *gin.Context) {
	snap := s.reader.Snapshot()
	out := make([]positionView, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		v := positionView{
			Mint:        p.Mint,
			Lifecycle:   string(p.Lifecycle),
			Phase:       string(p.Phase),
			EntryPrice:  p.EntryPrice,
			LastPrice:   p.LastPrice,
			RunupPct:    p.RunupPct,
			DrawdownPct: p.DrawdownPct,
			Stake:       p.Stake.String(),
			Size:        p.Size.String(),
		}
		if !p.OpenedAt.IsZero() {
			v.OpenedAt = p.OpenedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) handleBreakerReset(c *gin.Context) {
	if s.breaker.Reset() {
		logger.Infof("breaker manually reset via admin endpoint")
		c.JSON(http.StatusOK, gin.H{"result": "reset"})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": "breaker is not halted"})
}

func (s *Server) handleForcedSell(c *gin.Context) {
	mint := c.Param("mint")
	cmd := engine.NewCommand(engine.CmdSellRequested, mint, engine.SellRequestedPayload{
		Mint:   mint,
		Reason: "forced",
	})
	if err := s.reader.Send(cmd); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"result": "requested"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("http server listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

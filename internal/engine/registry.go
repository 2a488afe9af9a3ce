package engine

// handlerFunc applies one command inside the actor loop.
type handlerFunc func(e *Engine, cmd Command) error

// registry maps command types to their apply functions. Built once at
// construction; never mutated afterwards.
type registry struct {
	handlers map[CommandType]handlerFunc
}

func newRegistry() *registry {
	r := &registry{handlers: make(map[CommandType]handlerFunc)}
	r.handlers[CmdCandidateVerified] = (*Engine).applyCandidateVerified
	r.handlers[CmdTickUpdate] = (*Engine).applyTickUpdate
	r.handlers[CmdBuyConfirmed] = (*Engine).applyBuyConfirmed
	r.handlers[CmdBuyFailed] = (*Engine).applyBuyFailed
	r.handlers[CmdSellRequested] = (*Engine).applySellRequested
	r.handlers[CmdSellConfirmed] = (*Engine).applySellConfirmed
	r.handlers[CmdSellFailed] = (*Engine).applySellFailed
	r.handlers[CmdSweep] = (*Engine).applySweep
	r.handlers[CmdExitParams] = (*Engine).applyExitParams
	return r
}

func (r *registry) get(t CommandType) (handlerFunc, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

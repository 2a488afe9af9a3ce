package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raysniper/internal/engine"
	"raysniper/internal/pkg/circuit"
)

type fakeReader struct {
	state   *engine.State
	summary engine.Summary
	sent    []engine.Command
	sendErr error
}

func (f *fakeReader) Snapshot() *engine.State { return f.state }
func (f *fakeReader) Summary() engine.Summary { return f.summary }

func (f *fakeReader) Send(c engine.Command) error {
	f.sent = append(f.sent, c)
	return f.sendErr
}

func newTestServer(reader *fakeReader, breaker *circuit.Breaker) *Server {
	if reader.state == nil {
		reader.state = engine.NewState()
	}
	return NewServer(":0", reader, breaker)
}

func armedBreaker() *circuit.Breaker {
	return circuit.NewBreaker(3, 2.5, time.Hour, time.Hour)
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeReader{}, armedBreaker())
	rec := doRequest(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(&fakeReader{summary: engine.Summary{OpenPositions: 2, Wins: 1}}, armedBreaker())
	rec := doRequest(s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Summary engine.Summary `json:"summary"`
		Breaker string         `json:"breaker"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Summary.OpenPositions)
	assert.Equal(t, "ARMED", body.Breaker)
}

func TestPositionsEndpoint(t *testing.T) {
	state := engine.NewState()
	state.Positions["mintA"] = &engine.Position{
		Mint:       "mintA",
		Lifecycle:  engine.LifecycleOpen,
		Phase:      "trending",
		EntryPrice: 1.1,
		LastPrice:  1.4,
		Stake:      decimal.NewFromFloat(0.5),
		Size:       decimal.NewFromInt(1000),
		OpenedAt:   time.Unix(1_700_000_000, 0),
	}
	s := newTestServer(&fakeReader{state: state}, armedBreaker())

	rec := doRequest(s, http.MethodGet, "/positions")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Positions []positionView `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Positions, 1)
	assert.Equal(t, "mintA", body.Positions[0].Mint)
	assert.Equal(t, "open", body.Positions[0].Lifecycle)
	assert.Equal(t, "0.5", body.Positions[0].Stake)
	assert.NotEmpty(t, body.Positions[0].OpenedAt)
}

func TestBreakerReset(t *testing.T) {
	b := armedBreaker()
	s := newTestServer(&fakeReader{}, b)

	// Armed breaker: nothing to reset.
	rec := doRequest(s, http.MethodPost, "/admin/breaker/reset")
	assert.Equal(t, http.StatusConflict, rec.Code)

	b.RecordLoss(decimal.NewFromFloat(0.1))
	b.RecordLoss(decimal.NewFromFloat(0.1))
	b.RecordLoss(decimal.NewFromFloat(0.1))
	require.Equal(t, circuit.StateHalted, b.State())

	rec = doRequest(s, http.MethodPost, "/admin/breaker/reset")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, circuit.StateArmed, b.State())
}

func TestForcedSell(t *testing.T) {
	reader := &fakeReader{}
	s := newTestServer(reader, armedBreaker())

	rec := doRequest(s, http.MethodPost, "/admin/positions/mintA/sell")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, reader.sent, 1)
	assert.Equal(t, engine.CmdSellRequested, reader.sent[0].Type)
	assert.Equal(t, "mintA", reader.sent[0].Mint)

	var payload engine.SellRequestedPayload
	require.NoError(t, json.Unmarshal(reader.sent[0].Payload, &payload))
	assert.Equal(t, "forced", payload.Reason)
}

func TestForcedSell_QueueUnavailable(t *testing.T) {
	reader := &fakeReader{sendErr: errors.New("queue full")}
	s := newTestServer(reader, armedBreaker())

	rec := doRequest(s, http.MethodPost, "/admin/positions/mintA/sell")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

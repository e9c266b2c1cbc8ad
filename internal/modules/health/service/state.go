package service

import (
	"math"
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected   atomic.Bool
	lastTickUnix  atomic.Int64 // unix seconds
	instruments   atomic.Int64
	sessionProfit atomic.Uint64 // float64 bits
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// SetWSConnected — состояние websocket шлюза ордеров.
func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) SetInstruments(n int) { s.instruments.Store(int64(n)) }
func (s *State) Instruments() int     { return int(s.instruments.Load()) }

func (s *State) SetSessionProfit(v float64) { s.sessionProfit.Store(math.Float64bits(v)) }
func (s *State) SessionProfit() float64     { return math.Float64frombits(s.sessionProfit.Load()) }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

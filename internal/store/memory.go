package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"zone_bot/internal/models"
)

// Memory — хранилище без БД. Отдаёт копии, чтобы снаружи не портили состояние.
type Memory struct {
	mu     sync.RWMutex
	states map[string]*models.InstrumentState
}

func NewMemory() *Memory {
	return &Memory{states: make(map[string]*models.InstrumentState)}
}

func (m *Memory) Get(_ context.Context, symbol string) (*models.InstrumentState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[symbol]
	if !ok {
		return nil, false, nil
	}
	return clone(st), true, nil
}

func (m *Memory) Save(_ context.Context, st *models.InstrumentState) error {
	cp := clone(st)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}

	m.mu.Lock()
	m.states[st.Symbol] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) All(_ context.Context) ([]*models.InstrumentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.InstrumentState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, clone(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func clone(st *models.InstrumentState) *models.InstrumentState {
	cp := *st
	cp.Prices = append([]float64(nil), st.Prices...)
	cp.Timestamps = append([]time.Time(nil), st.Timestamps...)
	cp.Volumes = append([]float64(nil), st.Volumes...)
	cp.Long = append([]models.PositionLeg(nil), st.Long...)
	cp.Short = append([]models.PositionLeg(nil), st.Short...)
	if st.PrevRSI != nil {
		v := *st.PrevRSI
		cp.PrevRSI = &v
	}
	return &cp
}

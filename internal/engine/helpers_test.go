package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	"risk_go/internal/domain"
)

// fakeBroker records calls and returns scripted results.
type fakeBroker struct {
	mu sync.Mutex

	placed    []domain.OrderRequest
	modified  []domain.ModifyRequest
	cancelled []string

	placeErr  error
	modifyErr error
	cancelErr error

	positions []domain.NetPosition
	orders    []domain.WorkingOrder
	trades    []domain.Trade
	listErr   error

	nextOrderID string
}

func (f *fakeBroker) PlaceOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed = append(f.placed, req)
	if f.nextOrderID == "" {
		return "ORD-1", nil
	}
	return f.nextOrderID, nil
}

func (f *fakeBroker) ModifyOrder(_ context.Context, req domain.ModifyRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modifyErr != nil {
		return f.modifyErr
	}
	f.modified = append(f.modified, req)
	return nil
}

func (f *fakeBroker) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeBroker) GetNetPositions(_ context.Context) ([]domain.NetPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.positions, nil
}

func (f *fakeBroker) GetOrderBook(_ context.Context) ([]domain.WorkingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.orders, nil
}

func (f *fakeBroker) GetTradeBook(_ context.Context) ([]domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.trades, nil
}

var errScripted = errors.New("scripted failure")

// memJournal is an in-memory journal store for all three journal kinds.
type memJournal struct {
	mu       sync.Mutex
	orders   map[string][]domain.OrderTrackEntry
	targets  map[string][]domain.TargetTrackEntry
	timeExit map[string]*domain.TimeExitState
}

func newMemJournal() *memJournal {
	return &memJournal{
		orders:   make(map[string][]domain.OrderTrackEntry),
		targets:  make(map[string][]domain.TargetTrackEntry),
		timeExit: make(map[string]*domain.TimeExitState),
	}
}

func (m *memJournal) ReadOrderTrack(orderID string) ([]domain.OrderTrackEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderTrackEntry(nil), m.orders[orderID]...), nil
}

func (m *memJournal) AppendOrderTrack(orderID string, e domain.OrderTrackEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID] = append(m.orders[orderID], e)
	return nil
}

func (m *memJournal) ReadTargetTrack(token, entryOrderID string) ([]domain.TargetTrackEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TargetTrackEntry(nil), m.targets[token+"_"+entryOrderID]...), nil
}

func (m *memJournal) AppendTargetTrack(token, entryOrderID string, e domain.TargetTrackEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := token + "_" + entryOrderID
	m.targets[key] = append(m.targets[key], e)
	return nil
}

func (m *memJournal) LoadTimeExit(token, entryOrderID string) (*domain.TimeExitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.timeExit[token+"_"+entryOrderID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *memJournal) SaveTimeExit(st *domain.TimeExitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	m.timeExit[st.Token+"_"+st.EntryOrderID] = &cp
	return nil
}

func (m *memJournal) DeleteTimeExit(token, entryOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timeExit, token+"_"+entryOrderID)
	return nil
}

func (m *memJournal) DeleteTimeExitsForToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.timeExit {
		if strings.HasPrefix(key, token+"_") {
			delete(m.timeExit, key)
		}
	}
	return nil
}

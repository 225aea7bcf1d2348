package state

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"QuantBench/internal/model"
)

// Manager guards the per-symbol state and saves it whenever a state changes.
type Manager struct {
	mu       sync.Mutex
	file     *File
	filePath string
}

// NewManager creates a Manager, loading state from disk.
func NewManager(filePath string) (*Manager, error) {
	f, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}
	return &Manager{file: f, filePath: filePath}, nil
}

// Get returns the state of symbol; unknown symbols are flat.
func (m *Manager) Get(symbol string) SymbolState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.file.Symbols[symbol]
	if !ok {
		return SymbolState{State: model.Flat}
	}
	return s
}

// Snapshot returns a copy of every symbol's state.
func (m *Manager) Snapshot() map[string]SymbolState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]SymbolState, len(m.file.Symbols))
	for k, v := range m.file.Symbols {
		out[k] = v
	}
	return out
}

// Apply records the latest state and price for symbol. The file is written
// only when the state actually changes; the return value reports that.
// A transition that cannot be saved is not kept, so the next Apply sees it again.
func (m *Manager) Apply(symbol string, state model.PositionState, price float64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.file.Symbols[symbol]
	cur := prev
	if !had {
		cur = SymbolState{State: model.Flat}
	}
	if cur.State == state {
		cur.LastPrice = price
		m.file.Symbols[symbol] = cur
		return false, nil
	}

	cur.State = state
	cur.Since = at
	cur.LastPrice = price
	cur.EntryPrice = 0
	if state == model.Long {
		cur.EntryPrice = price
	}
	m.file.Symbols[symbol] = cur
	if err := SaveState(m.filePath, m.file); err != nil {
		if had {
			m.file.Symbols[symbol] = prev
		} else {
			delete(m.file.Symbols, symbol)
		}
		zap.S().Errorf("failed to save observe state: %v", err)
		return false, err
	}
	return true, nil
}

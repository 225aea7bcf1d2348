// Package state persists per-symbol hysteresis state across observe ticks and restarts.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"QuantBench/internal/model"
)

// SymbolState is the persisted position state of one symbol.
type SymbolState struct {
	State      model.PositionState `json:"state"`
	Since      time.Time           `json:"since"`
	EntryPrice float64             `json:"entry_price,omitempty"`
	LastPrice  float64             `json:"last_price"`
}

// File is the on-disk document.
type File struct {
	Symbols   map[string]SymbolState `json:"symbols"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// LoadState reads the state file. Returns an empty state if the file doesn't exist.
func LoadState(filePath string) (*File, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{Symbols: make(map[string]SymbolState)}, nil
		}
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Symbols == nil {
		f.Symbols = make(map[string]SymbolState)
	}
	return &f, nil
}

// SaveState writes the state file through a temp file and rename.
func SaveState(filePath string, f *File) error {
	f.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}

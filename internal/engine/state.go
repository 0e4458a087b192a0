package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"SupplySentinel/internal/model"
)

// LoadState reads the engine state from a JSON file. Returns nil if the
// file doesn't exist.
func LoadState(filePath string) (*model.EngineState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state model.EngineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveState writes the engine state to a JSON file.
func SaveState(filePath string, state *model.EngineState) error {
	state.UpdatedAt = time.Now()
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

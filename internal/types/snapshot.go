package types

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EngineStatus represents the current state of the live trading engine.
type EngineStatus string

const (
	// EngineStatusBackfilling indicates the engine is downloading
	// historical candles before trading starts.
	EngineStatusBackfilling EngineStatus = "backfilling"

	// EngineStatusRunning indicates the engine is processing live signals.
	EngineStatusRunning EngineStatus = "running"

	// EngineStatusStopped indicates the engine has stopped.
	EngineStatusStopped EngineStatus = "stopped"
)

// StateSnapshot is the engine state persisted after every mutation.
// SchemaVersion gates loading: snapshots written by an incompatible
// release are refused rather than silently reinterpreted.
type StateSnapshot struct {
	SchemaVersion     string              `json:"schema_version"`
	IsRunning         bool                `json:"is_running"`
	ActiveInstruments []string            `json:"active_instruments"`
	Trades            []Trade             `json:"trades"`
	Cooldowns         map[string]Cooldown `json:"cooldowns"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// WriteStateSnapshot writes the snapshot atomically: the JSON is written
// to a temp file in the same directory and renamed over the target, so a
// crash mid-write never leaves a torn state file.
func WriteStateSnapshot(path string, snapshot StateSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state snapshot: %w", err)
	}

	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// ReadStateSnapshot reads a snapshot previously written by
// WriteStateSnapshot. The caller is responsible for checking
// SchemaVersion compatibility.
func ReadStateSnapshot(path string) (StateSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StateSnapshot{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var snapshot StateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return StateSnapshot{}, fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	return snapshot, nil
}

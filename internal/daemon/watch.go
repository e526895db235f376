package daemon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// WatchState tracks a watched file's modification time and content hash.
type WatchState struct {
	Path     string `json:"path"`
	ModTime  string `json:"mod_time"`
	Hash     string `json:"hash"`
	LastSeen string `json:"last_seen"`
}

// watchFile checks whether a single file has changed since the last check.
func watchFile(store *Store, filePath, kvKey string) (bool, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			stateJSON, err := store.GetKV(kvKey)
			if err != nil {
				return false, fmt.Errorf("get watch state: %w", err)
			}
			if stateJSON == "" {
				// Never existed, no change.
				return false, nil
			}
			// File was deleted; that counts as a change.
			return true, nil
		}
		return false, err
	}

	hash, err := hashFile(filePath)
	if err != nil {
		return false, fmt.Errorf("hash file: %w", err)
	}

	stateJSON, err := store.GetKV(kvKey)
	if err != nil {
		return false, fmt.Errorf("get watch state: %w", err)
	}

	var prevState WatchState
	if stateJSON != "" {
		if err := json.Unmarshal([]byte(stateJSON), &prevState); err != nil {
			return false, fmt.Errorf("parse watch state: %w", err)
		}
	}

	// On the first observation record the state without reporting a change,
	// otherwise daemon startup would trigger a spurious cycle.
	changed := stateJSON != "" && prevState.Hash != hash

	newState := WatchState{
		Path:     filePath,
		ModTime:  info.ModTime().UTC().Format(time.RFC3339),
		Hash:     hash,
		LastSeen: time.Now().UTC().Format(time.RFC3339),
	}
	newStateJSON, err := json.Marshal(newState)
	if err != nil {
		return false, fmt.Errorf("marshal watch state: %w", err)
	}
	if err := store.SetKV(kvKey, string(newStateJSON)); err != nil {
		return false, fmt.Errorf("save watch state: %w", err)
	}

	return changed, nil
}

// hashFile computes the SHA256 hash of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

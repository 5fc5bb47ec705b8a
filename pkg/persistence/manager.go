package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// StateManager handles persistent key-value storage in a JSON file.
// Values are stored as raw JSON so callers can persist arbitrary records.
type StateManager struct {
	fs       afero.Fs
	filePath string
	data     map[string]json.RawMessage
	mu       sync.RWMutex
}

// NewManager loads (or creates) the state file under dataDir.
func NewManager(fs afero.Fs, dataDir string) (*StateManager, error) {
	m := &StateManager{
		fs:       fs,
		filePath: filepath.Join(dataDir, "state.json"),
		data:     make(map[string]json.RawMessage),
	}

	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	return m, nil
}

func (m *StateManager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := afero.ReadFile(m.fs, m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, &m.data)
}

// Save writes the current state to disk.
func (m *StateManager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked()
}

func (m *StateManager) saveLocked() error {
	if err := m.fs.MkdirAll(filepath.Dir(m.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return err
	}

	return afero.WriteFile(m.fs, m.filePath, data, 0644)
}

// Get retrieves data for a key and unmarshals it into target.
func (m *StateManager) Get(key string, target interface{}) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return true, err
	}

	return true, nil
}

// Set stores data for a key and saves to disk.
func (m *StateManager) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()

	return m.Save()
}

// Delete removes a key and saves to disk. Deleting a missing key is a no-op.
func (m *StateManager) Delete(key string) error {
	m.mu.Lock()
	_, ok := m.data[key]
	if ok {
		delete(m.data, key)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.Save()
}

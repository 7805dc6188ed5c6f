package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brickops/fieldsync/internal/events"
)

// JSONStore implements file-based state storage, one file per key.
type JSONStore struct {
	baseDir string
	logger  *events.Logger

	mu sync.RWMutex
}

// NewJSONStore creates a JSON-based state store.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_state_store"),
	}, nil
}

// Get reads and verifies the entry for key.
func (s *JSONStore) Get(key string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.entryPath(key)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrKeyNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		// Fall back to the backup written before the last overwrite.
		if env, err = s.loadBackup(key); err != nil {
			return ErrStateCorrupt
		}
		s.logger.WithField("key", key).Warn("Loaded state entry from backup due to corruption")
	}

	if env.SchemaVersion != CurrentSchemaVersion {
		s.logger.WithFields(map[string]any{
			"key":     key,
			"version": env.SchemaVersion,
		}).Warn("State schema version mismatch")
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("unmarshal state value: %w", err)
	}
	return nil
}

// Put writes the entry atomically, keeping a backup of the previous version.
func (s *JSONStore) Put(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal state value: %w", err)
	}

	hash := sha256.Sum256(raw)
	env := envelope{
		SchemaVersion: CurrentSchemaVersion,
		SavedAt:       time.Now().UTC(),
		Checksum:      hex.EncodeToString(hash[:]),
		Data:          raw,
	}

	jsonData, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state entry: %w", err)
	}

	path := s.entryPath(key)

	if _, err := os.Stat(path); err == nil {
		if err := s.copyFile(path, path+".backup"); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Failed to create backup")
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonData, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// Delete removes the entry and its backup.
func (s *JSONStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.entryPath(key)
	_ = os.Remove(path)
	_ = os.Remove(path + ".backup")
	return nil
}

// Keys returns all stored keys with the given prefix, sorted.
func (s *JSONStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) entryPath(key string) string {
	return filepath.Join(s.baseDir, url.PathEscape(key)+".json")
}

func (s *JSONStore) loadBackup(key string) (*envelope, error) {
	data, err := os.ReadFile(s.entryPath(key) + ".backup")
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(data)
}

func decodeEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrStateCorrupt
	}

	if env.Checksum != "" {
		hash := sha256.Sum256(env.Data)
		if hex.EncodeToString(hash[:]) != env.Checksum {
			return nil, ErrStateCorrupt
		}
	}

	return &env, nil
}

func (s *JSONStore) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

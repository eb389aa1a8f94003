// Package session keeps id of the active fine-tuning task between runs
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
)

// DefaultTTL for persisted task id, older entries are ignored
const DefaultTTL = 24 * time.Hour

const fileName = "active.task"

// FileStore keeps task id in a file inside location directory
type FileStore struct {
	location string
	ttl      time.Duration
	now      func() time.Time
}

// NewFileStore makes file store for given location. Location is created if missing, ttl 0 means DefaultTTL.
func NewFileStore(location string, ttl time.Duration) *FileStore {
	if err := os.MkdirAll(location, 0o700); err != nil {
		log.Printf("[DEBUG] can't make %s, %s", location, err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FileStore{location: location, ttl: ttl, now: time.Now}
}

// Save writes task id, replaces previous one
func (f *FileStore) Save(taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return errors.New("empty task id")
	}
	fname := f.path()
	log.Printf("[DEBUG] save session %s to %s", taskID, fname)
	tmp := fname + ".tmp"
	if err := os.WriteFile(tmp, []byte(taskID), 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, fname); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Load returns persisted task id, empty string if nothing saved or the entry is too old
func (f *FileStore) Load() (string, error) {
	fname := f.path()
	finfo, err := os.Stat(fname)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("can't get session info: %w", err)
	}

	// skip old entry
	if finfo.ModTime().Add(f.ttl).Before(f.now()) {
		log.Printf("[DEBUG] session file %s too old", fname)
		if err := os.Remove(fname); err != nil {
			log.Printf("[WARN] can't delete %s, %s", fname, err)
		}
		return "", nil
	}

	data, err := os.ReadFile(fname) // nolint gosec
	if err != nil {
		return "", fmt.Errorf("failed to read session file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Clear removes persisted task id, no error if nothing saved
func (f *FileStore) Clear() error {
	fname := f.path()
	log.Printf("[DEBUG] clear session %s", fname)
	if err := os.Remove(fname); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func (f *FileStore) path() string { return filepath.Join(f.location, fileName) }

func (f *FileStore) String() string {
	return fmt.Sprintf("location:%s, ttl:%v", f.location, f.ttl)
}

// MemStore keeps task id in memory, used when session persistence is disabled
type MemStore struct {
	mu     sync.Mutex
	taskID string
}

// Save task id
func (m *MemStore) Save(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskID = strings.TrimSpace(taskID)
	return nil
}

// Load task id
func (m *MemStore) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskID, nil
}

// Clear task id
func (m *MemStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskID = ""
	return nil
}

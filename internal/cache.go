package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const indexVersion = "1.0"

// FileStore is a KVStore keeping one JSON file per key plus a YAML index
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// IndexMetadata stores metadata about the store
type IndexMetadata struct {
	Version   string    `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// IndexEntry describes one stored key
type IndexEntry struct {
	Key         string `yaml:"key"`
	File        string `yaml:"file"`
	SessionID   string `yaml:"session_id,omitempty"`
	RecordCount int    `yaml:"record_count"`
	UpdatedAt   string `yaml:"updated_at"`
}

// StoreIndex is the YAML index of every key in a FileStore
type StoreIndex struct {
	Entries  []IndexEntry  `yaml:"entries"`
	Metadata IndexMetadata `yaml:"metadata"`
}

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// EnsureDir ensures the store directory exists
func (fs *FileStore) EnsureDir() error {
	return os.MkdirAll(fs.dir, 0755)
}

// Dir returns the store directory
func (fs *FileStore) Dir() string {
	return fs.dir
}

// GetIndexPath returns the path to the YAML index
func (fs *FileStore) GetIndexPath() string {
	return filepath.Join(fs.dir, "sessions.yaml")
}

// GetValuePath returns the path of the file holding key
func (fs *FileStore) GetValuePath(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", string(filepath.Separator), "_").Replace(key)
	return filepath.Join(fs.dir, name+".json")
}

// LoadIndex loads the index; a missing index is empty
func (fs *FileStore) LoadIndex() (*StoreIndex, error) {
	data, err := os.ReadFile(fs.GetIndexPath())
	if errors.Is(err, os.ErrNotExist) {
		now := time.Now()
		return &StoreIndex{
			Entries:  make([]IndexEntry, 0),
			Metadata: IndexMetadata{Version: indexVersion, CreatedAt: now, UpdatedAt: now},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var index StoreIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}
	return &index, nil
}

// SaveIndex saves the index
func (fs *FileStore) SaveIndex(index *StoreIndex) error {
	if err := fs.EnsureDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	return os.WriteFile(fs.GetIndexPath(), data, 0644)
}

// Put writes value to its file and updates the index entry for key
func (fs *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.EnsureDir(); err != nil {
		return &StorageError{Path: fs.dir, Op: "put", Err: err}
	}
	path := fs.GetValuePath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return &StorageError{Path: path, Op: "put", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &StorageError{Path: path, Op: "put", Err: err}
	}

	index, err := fs.LoadIndex()
	if err != nil {
		return &StorageError{Path: fs.GetIndexPath(), Op: "put", Err: err}
	}
	entry := IndexEntry{
		Key:       key,
		File:      filepath.Base(path),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	var summary struct {
		SessionID      string `json:"sessionId"`
		CollectedCount int    `json:"collectedCount"`
	}
	if json.Unmarshal(value, &summary) == nil {
		entry.SessionID = summary.SessionID
		entry.RecordCount = summary.CollectedCount
	}

	found := false
	for i := range index.Entries {
		if index.Entries[i].Key == key {
			index.Entries[i] = entry
			found = true
			break
		}
	}
	if !found {
		index.Entries = append(index.Entries, entry)
	}
	index.Metadata.UpdatedAt = time.Now()

	if err := fs.SaveIndex(index); err != nil {
		return &StorageError{Path: fs.GetIndexPath(), Op: "put", Err: err}
	}
	return nil
}

// Get reads the value stored under key
func (fs *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	path := fs.GetValuePath(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StorageError{Path: path, Op: "get", Err: err}
	}
	return data, true, nil
}

// List returns every indexed pair whose key starts with prefix
func (fs *FileStore) List(ctx context.Context, prefix string) ([]KeyValuePair, error) {
	fs.mu.Lock()
	index, err := fs.LoadIndex()
	fs.mu.Unlock()
	if err != nil {
		return nil, &StorageError{Path: fs.GetIndexPath(), Op: "list", Err: err}
	}

	var pairs []KeyValuePair
	for _, entry := range index.Entries {
		if !strings.HasPrefix(entry.Key, prefix) {
			continue
		}
		data, ok, err := fs.Get(ctx, entry.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			LogWarn("Index entry %s has no file, skipping", entry.Key)
			continue
		}
		pairs = append(pairs, KeyValuePair{Key: entry.Key, Value: string(data)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs, nil
}

// Clear removes every indexed file and the index
func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	index, err := fs.LoadIndex()
	if err == nil {
		for _, entry := range index.Entries {
			_ = os.Remove(fs.GetValuePath(entry.Key))
		}
	}
	if err := os.Remove(fs.GetIndexPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op; files are written synchronously
func (fs *FileStore) Close() error {
	return nil
}

// OpenStore opens the backend named by backend ("sqlite" or "file") at path
func OpenStore(backend, path string) (KVStore, error) {
	switch strings.ToLower(backend) {
	case "", "sqlite":
		return OpenStorage(path)
	case "file", "files":
		fs := NewFileStore(path)
		if err := fs.EnsureDir(); err != nil {
			return nil, &StorageError{Path: path, Op: "open", Err: err}
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}

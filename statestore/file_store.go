package statestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

var _ Store = (*FileStore)(nil)

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	path     string
	dirPerm  os.FileMode
	filePerm os.FileMode
}

func defaultFileStoreConfig() fileStoreConfig {
	return fileStoreConfig{
		path:     DefaultPath(),
		dirPerm:  0o755,
		filePerm: 0o600,
	}
}

// DefaultPath is where the FileStore keeps state unless configured otherwise.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".finguard", "state.yaml")
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*fileStoreConfig)

// WithPath sets the path to the state file.
func WithPath(path string) FileStoreOption {
	return func(c *fileStoreConfig) {
		if path != "" {
			c.path = path
		}
	}
}

// FileStore keeps all keys in a single YAML document. Writes go to a
// temporary file that is renamed over the old one, so a crash leaves either
// the previous or the new state on disk.
type FileStore struct {
	mu     sync.Mutex
	config fileStoreConfig
}

// NewFileStore creates a new FileStore with the given options.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{config: cfg}
}

// Get reads key from the state file. A missing file reads as empty.
func (s *FileStore) Get(ctx context.Context, key string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, false, err
	}
	ids, ok := doc[key]
	return ids, ok, nil
}

// Set writes key to the state file, keeping all other keys.
func (s *FileStore) Set(ctx context.Context, key string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	doc[key] = slices.Clone(ids)
	return s.save(doc)
}

// Path returns the path to the backing file.
func (s *FileStore) Path() string {
	return s.config.path
}

func (s *FileStore) load() (map[string][]string, error) {
	data, err := os.ReadFile(s.config.path)
	if os.IsNotExist(err) {
		return make(map[string][]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state store: %w", err)
	}

	doc := make(map[string][]string)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse state store: %w", err)
	}
	if doc == nil {
		doc = make(map[string][]string)
	}
	return doc, nil
}

func (s *FileStore) save(doc map[string][]string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.config.path)
	if err := os.MkdirAll(dir, s.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state store: %w", err)
	}
	if err := tmp.Chmod(s.config.filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set state store permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state store: %w", err)
	}
	if err := os.Rename(tmpName, s.config.path); err != nil {
		return fmt.Errorf("failed to replace state store: %w", err)
	}
	return nil
}

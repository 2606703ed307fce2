package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kiranshivaraju/captchaocr/pkg/models"
)

// FileStore keeps the whole id -> record mapping in a single JSON file.
// A single mutex covers every load-mutate-save unit; every write rewrites
// the full file through a temp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string { return s.path }

// Ping verifies the backing file, when present, deserializes cleanly.
func (s *FileStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.load()
	return err
}

func (s *FileStore) Create(_ context.Context, id string, rec models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	if _, exists := jobs[id]; exists {
		return ErrDuplicateKey
	}
	jobs[id] = rec
	return s.save(jobs)
}

func (s *FileStore) Update(_ context.Context, id string, fn UpdateFunc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return false, err
	}
	rec, ok := jobs[id]
	if !ok {
		return false, nil
	}
	fn(&rec)
	jobs[id] = rec
	if err := s.save(jobs); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) Get(_ context.Context, id string) (models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return models.JobRecord{}, err
	}
	rec, ok := jobs[id]
	if !ok {
		return models.JobRecord{}, ErrNotFound
	}
	return rec, nil
}

// load must be called with s.mu held.
func (s *FileStore) load() (map[string]models.JobRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]models.JobRecord), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job store: %w", err)
	}

	var jobs map[string]models.JobRecord
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if jobs == nil {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrCorruptStore)
	}
	for id, rec := range jobs {
		if !validRecord(rec) {
			return nil, fmt.Errorf("%w: job %s has unknown status %q", ErrCorruptStore, id, rec.Status)
		}
	}
	return jobs, nil
}

// save must be called with s.mu held.
func (s *FileStore) save(jobs map[string]models.JobRecord) error {
	data, err := json.MarshalIndent(jobs, "", "    ")
	if err != nil {
		return fmt.Errorf("encode job store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace job store: %w", err)
	}
	return nil
}

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

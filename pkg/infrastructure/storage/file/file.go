// Package file implements the local-file storage strategy: one JSON
// file per record, written durably (temp file + atomic rename) under a
// per-aggregate directory. Reads tolerate a missing directory or file,
// treating both as "not found"/empty.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/repository"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage"
)

func init() {
	storage.Register("file", register)
}

func register(cfg map[string]any) (*storage.Registry, error) {
	baseDir, _ := cfg["base_dir"].(string)
	if baseDir == "" {
		return nil, fmt.Errorf("file storage requires base_dir")
	}
	return &storage.Registry{
		Strategy: "file",
		Requests: New(filepath.Join(baseDir, "requests"), func(r repository.RequestRecord) string { return r.RequestID }),
		Machines: New(filepath.Join(baseDir, "machines"), func(m repository.MachineRecord) string { return m.MachineID }),
		Templates: New(filepath.Join(baseDir, "templates"), func(t repository.TemplateRecord) string { return t.TemplateID }),
	}, nil
}

// Store is a generic per-aggregate file-backed repository: one JSON
// file per record, named "<id>.json", under dir.
type Store[T any] struct {
	mu   sync.Mutex
	dir  string
	idOf func(T) string
}

func New[T any](dir string, idOf func(T) string) *Store[T] {
	return &Store[T]{dir: dir, idOf: idOf}
}

func (s *Store[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store[T]) Save(entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "tmp-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path(s.idOf(entity)))
}

func (s *Store[T]) GetByID(id string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (s *Store[T]) FindAll() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store[T]) FindBy(criteria func(T) bool) ([]T, error) {
	all, err := s.FindAll()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for _, v := range all {
		if criteria(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store[T]) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

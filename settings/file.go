package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileStore persists settings to a YAML file. Values load when the store is
// opened and write back on Save.
type FileStore struct {
	path    string
	values  map[string]string
	lists   map[string][]string
	changed bool
}

// fileDocument is the on-disk shape of a FileStore.
type fileDocument struct {
	Values map[string]string   `yaml:"values,omitempty"`
	Lists  map[string][]string `yaml:"lists,omitempty"`
}

// NewFileStore opens (or prepares to create) a YAML settings file at path.
// A missing file is not an error; it appears on the first Save.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]string),
		lists:  make(map[string][]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	if doc.Values != nil {
		s.values = doc.Values
	}
	if doc.Lists != nil {
		s.lists = doc.Lists
	}
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Value returns the string stored under key.
func (s *FileStore) Value(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// SetValue stores a string under key.
func (s *FileStore) SetValue(key, value string) {
	s.values[key] = value
	s.changed = true
}

// StringList returns the list stored under key.
func (s *FileStore) StringList(key string) []string {
	return s.lists[key]
}

// SetStringList stores a list under key.
func (s *FileStore) SetStringList(key string, values []string) {
	s.lists[key] = values
	s.changed = true
}

// Remove deletes key from both value and list namespaces.
func (s *FileStore) Remove(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.changed = true
	}
	if _, ok := s.lists[key]; ok {
		delete(s.lists, key)
		s.changed = true
	}
}

// Save writes the store back to its file. Unchanged stores skip the write.
func (s *FileStore) Save() error {
	if !s.changed {
		return nil
	}

	doc := fileDocument{}
	if len(s.values) > 0 {
		doc.Values = s.values
	}
	if len(s.lists) > 0 {
		doc.Lists = s.lists
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("settings: create dir for %s: %w", s.path, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	s.changed = false
	return nil
}

// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"ntcpanel/pkg/logger"
)

// Keys of the device settings.
const (
	KeyAPSSID    = "ap_ssid"
	KeyAPPass    = "ap_pass"
	KeySTASSID   = "sta_ssid"
	KeySTAPass   = "sta_pass"
	KeyAPChannel = "ap_channel"
)

var ErrNotFound = errors.New("kvstore: key not found")

// document is the on-disk layout. Values are typed; reading a key with
// the other type reports it as absent.
type document struct {
	Strings map[string]string `yaml:"strings,omitempty"`
	Ints    map[string]int32  `yaml:"ints,omitempty"`
}

// Store is a small typed key-value store persisted as one YAML file.
// Every write rewrites the file atomically.
type Store struct {
	path string
	log  *logger.Logger

	mu  sync.RWMutex
	doc document
}

// Open loads path, starting empty when it does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		log:  logger.New("KVStore"),
		doc:  document{Strings: map[string]string{}, Ints: map[string]int32{}},
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Info("%s not found, starting empty", path)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("failed to parse store %s: %w", path, err)
	}
	if s.doc.Strings == nil {
		s.doc.Strings = map[string]string{}
	}
	if s.doc.Ints == nil {
		s.doc.Ints = map[string]int32{}
	}
	return s, nil
}

func (s *Store) GetString(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.doc.Strings[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func (s *Store) GetInt32(key string) (int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.doc.Ints[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

// String returns the value of key, or def when absent.
func (s *Store) String(key, def string) string {
	v, err := s.GetString(key)
	if err != nil {
		return def
	}
	return v
}

// Int32 returns the value of key, or def when absent.
func (s *Store) Int32(key string, def int32) int32 {
	v, err := s.GetInt32(key)
	if err != nil {
		return def
	}
	return v
}

func (s *Store) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Strings[key] = value
	return s.saveLocked()
}

func (s *Store) SetInt32(key string, value int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Ints[key] = value
	return s.saveLocked()
}

// EnsureString returns the stored value, writing def first when absent.
func (s *Store) EnsureString(key, def string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.doc.Strings[key]; ok {
		return v, nil
	}
	s.log.Info("%s not set, storing default", key)
	s.doc.Strings[key] = def
	return def, s.saveLocked()
}

// EnsureInt32 returns the stored value, writing def first when absent.
func (s *Store) EnsureInt32(key string, def int32) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.doc.Ints[key]; ok {
		return v, nil
	}
	s.log.Info("%s not set, storing default %d", key, def)
	s.doc.Ints[key] = def
	return def, s.saveLocked()
}

// Delete removes key of either type.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Strings, key)
	delete(s.doc.Ints, key)
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".kvstore-*")
	if err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}
